// Package commands implements the goextract subcommands.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/mamaar/goextract/internal/cli"
)

// NewRootCmd returns the goextract command tree for app.
func NewRootCmd(app *cli.App) *cobra.Command {
	cmd := app.NewRootCmd()
	cmd.AddCommand(
		NewExtractCmd(app),
		NewAnalyzeCmd(app),
		NewCandidatesCmd(app),
		NewVersionCmd(),
	)
	return cmd
}
