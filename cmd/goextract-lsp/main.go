package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/mamaar/goextract/internal/cli"
	"github.com/mamaar/goextract/internal/log"
	"github.com/mamaar/goextract/internal/lsp"
	"github.com/mamaar/goextract/pkg/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "goextract-lsp: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		port       = pflag.Int("port", 0, "Port to listen on (0 for stdio)")
		debug      = pflag.Bool("debug", false, "Enable debug logging")
		logFile    = pflag.String("logfile", "", "Log file path (default: stderr)")
		configPath = pflag.String("config", "", "Path to .goextract.yaml (default: nearest to the working directory)")
		version    = pflag.Bool("version", false, "Show version information")
	)
	pflag.Parse()

	if *version {
		fmt.Printf("goextract-lsp version %s\n", cli.Version)
		return nil
	}

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		var wd string
		if wd, err = os.Getwd(); err == nil {
			cfg, err = config.LoadFor(wd)
		}
	}
	if err != nil {
		return err
	}

	var out io.Writer = os.Stderr
	if *logFile != "" {
		if err := os.MkdirAll(filepath.Dir(*logFile), 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer f.Close()
		out = f
	}
	logCfg := log.FromEnv(cfg.Logging())
	logCfg.Output = out
	if *debug {
		logCfg.Level = "debug"
	}
	logger := log.WithComponent(log.New(logCfg), "lsp")
	logger.Info("starting", "version", cli.Version, "pid", os.Getpid(), "port", *port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := lsp.NewServer(logger, cfg.Engine())
	if err := server.Start(ctx, *port); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
