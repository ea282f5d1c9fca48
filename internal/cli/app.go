// Package cli holds the state shared by the goextract commands: flags,
// configuration, logger and engine.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mamaar/goextract/internal/log"
	"github.com/mamaar/goextract/pkg/config"
	"github.com/mamaar/goextract/pkg/refactor"
	"github.com/mamaar/goextract/pkg/types"
)

// App represents the goextract application.
type App struct {
	Flags  Flags
	Config *config.Config
	Logger *slog.Logger

	engine *refactor.DefaultEngine
}

// NewApp creates a new application instance.
func NewApp() *App {
	return &App{}
}

// NewRootCmd returns the root command. Subcommands are added by the caller.
func (app *App) NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "goextract",
		Short: "Extract Go statements and expressions into new functions",
		Long: `goextract turns a selection of statements or an expression into a new
function, method or local closure. Variables are classified by how the
selection and the code around it use them, and become parameters, results
or pointers accordingly.

Ranges are written as LINE, LINE-LINE or LINE:COL-LINE:COL.`,
		Version:           Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return app.setup(cmd) },
	}
	app.Flags.Register(cmd.PersistentFlags())
	return cmd
}

// setup loads configuration and builds the logger and engine.
func (app *App) setup(cmd *cobra.Command) error {
	root, err := filepath.Abs(app.Flags.Workspace)
	if err != nil {
		return err
	}
	app.Flags.Workspace = root

	var cfg *config.Config
	if app.Flags.Config != "" {
		cfg, err = config.Load(app.Flags.Config)
	} else {
		cfg, err = config.LoadFor(root)
	}
	if err != nil {
		return err
	}
	app.Config = cfg

	logCfg := log.FromEnv(cfg.Logging())
	logCfg.Output = cmd.ErrOrStderr()
	if app.Flags.LogLevel != "" {
		logCfg.Level = app.Flags.LogLevel
	}
	if app.Flags.LogFormat != "" {
		if logCfg.Format, err = log.ParseFormat(app.Flags.LogFormat); err != nil {
			return err
		}
	}
	if _, err := log.ParseLevel(logCfg.Level); err != nil {
		return err
	}
	app.Logger = log.New(logCfg)

	engineCfg := cfg.Engine()
	engineCfg.SkipCompilation = app.Flags.SkipCompilation
	engineCfg.AllowBreaking = app.Flags.AllowBreaking
	app.engine = refactor.CreateEngineWithConfig(app.Logger, engineCfg)
	if cfg.Path != "" {
		app.Logger.Debug("configuration loaded", "path", cfg.Path)
	}
	return nil
}

// Engine returns the engine built for the current invocation.
func (app *App) Engine() *refactor.DefaultEngine {
	return app.engine
}

// LoadWorkspace parses the workspace named by --workspace.
func (app *App) LoadWorkspace(ctx context.Context) (*types.Workspace, error) {
	ws, err := app.engine.LoadWorkspace(ctx, app.Flags.Workspace)
	if err != nil {
		return nil, fmt.Errorf("loading workspace: %w", err)
	}
	return ws, nil
}
