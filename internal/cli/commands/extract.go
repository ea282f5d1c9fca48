package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mamaar/goextract/internal/cli"
	"github.com/mamaar/goextract/pkg/types"
)

type extractFlags struct {
	name       string
	mode       string
	dryRun     bool
	bestEffort bool
}

// NewExtractCmd returns the extract command.
func NewExtractCmd(app *cli.App) *cobra.Command {
	var f extractFlags
	cmd := &cobra.Command{
		Use:   "extract <file> <range>",
		Short: "Extract a selection into a new function",
		Example: `  goextract extract service.go 42-57 --name validateOrder
  goextract extract service.go 42:9-42:31 --mode local --dry-run`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := newRequest(args, f)
			if err != nil {
				return err
			}
			ws, err := app.LoadWorkspace(cmd.Context())
			if err != nil {
				return err
			}
			plan, err := app.Engine().ExtractMethod(cmd.Context(), ws, req)
			if err != nil {
				return err
			}
			desc := fmt.Sprintf("Extract %s:%s", args[0], req.Range)
			if len(plan.Operations) > 0 {
				desc = plan.Operations[0].Description()
			}
			return processPlan(cmd, app, ws, plan, desc, f.dryRun)
		},
	}
	cmd.Flags().StringVarP(&f.name, "name", "n", "", "name of the new function (default: a fresh newFunction or newMethod)")
	cmd.Flags().StringVarP(&f.mode, "mode", "m", "auto", "function, method, local or auto")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "print the diff without writing it")
	cmd.Flags().BoolVar(&f.bestEffort, "best-effort", false, "pass unclassifiable variables as plain parameters")
	return cmd
}

// newRequest builds the request for a <file> <range> pair. Files are taken
// relative to the working directory when they exist there, otherwise
// relative to the workspace root.
func newRequest(args []string, f extractFlags) (types.ExtractMethodRequest, error) {
	rng, err := types.ParseSourceRange(args[1])
	if err != nil {
		return types.ExtractMethodRequest{}, err
	}
	mode, ok := types.ParseExtractMode(f.mode)
	if !ok {
		return types.ExtractMethodRequest{}, fmt.Errorf("unknown mode %q (want function, method, local or auto)", f.mode)
	}
	file := args[0]
	if abs, err := filepath.Abs(file); err == nil {
		if _, err := os.Stat(abs); err == nil {
			file = abs
		}
	}
	return types.ExtractMethodRequest{
		SourceFile: file,
		Range:      rng,
		NewName:    f.name,
		Mode:       mode,
		BestEffort: f.bestEffort,
	}, nil
}
