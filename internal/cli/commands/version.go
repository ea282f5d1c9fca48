package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mamaar/goextract/internal/cli"
)

// NewVersionCmd returns the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the goextract version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "goextract version %s\n", cli.Version)
		},
	}
}
