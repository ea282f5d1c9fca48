package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/pflag"

	"github.com/mamaar/goextract/internal/cli"
	"github.com/mamaar/goextract/internal/log"
	"github.com/mamaar/goextract/internal/mcp"
	"github.com/mamaar/goextract/pkg/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "goextract-mcp: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		workspace  = pflag.StringP("workspace", "w", "", "Workspace to load on startup (default: wait for load_workspace)")
		configPath = pflag.String("config", "", "Path to .goextract.yaml (default: nearest to the workspace)")
		logLevel   = pflag.String("log-level", "", "Log level: debug, info, warn or error")
		noWatch    = pflag.Bool("no-watch", false, "Do not watch the workspace for file changes")
		version    = pflag.Bool("version", false, "Show version information")
	)
	pflag.Parse()

	if *version {
		fmt.Printf("goextract-mcp version %s\n", cli.Version)
		return nil
	}

	dir := *workspace
	if dir == "" {
		dir = "."
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	var cfg *config.Config
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadFor(dir)
	}
	if err != nil {
		return err
	}

	// stdout carries the protocol
	logCfg := log.FromEnv(cfg.Logging())
	logCfg.Output = os.Stderr
	if *logLevel != "" {
		logCfg.Level = *logLevel
	}
	if _, err := log.ParseLevel(logCfg.Level); err != nil {
		return err
	}
	logger := log.WithComponent(log.New(logCfg), "mcp")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []mcp.Option
	if *noWatch {
		opts = append(opts, mcp.WithoutWatcher())
	}
	state := mcp.NewMCPServer(logger, cfg.Engine(), opts...)
	defer state.Close()

	if *workspace != "" {
		if _, err := state.LoadWorkspace(ctx, dir); err != nil {
			return err
		}
	}

	server := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "goextract-mcp", Version: cli.Version}, nil)
	mcp.RegisterAllTools(server, state)

	logger.Info("serving MCP on stdio", "workspace", *workspace)
	if err := server.Run(ctx, &mcpsdk.StdioTransport{}); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
