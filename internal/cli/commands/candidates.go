package commands

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/tools/go/analysis"

	"github.com/mamaar/goextract/internal/cli"
	"github.com/mamaar/goextract/pkg/analyzers"
	"github.com/mamaar/goextract/pkg/analyzers/extractcandidate"
)

type candidatesFlags struct {
	minLines      int
	minStatements int
	apply         int
	dryRun        bool
}

// NewCandidatesCmd returns the candidates command.
func NewCandidatesCmd(app *cli.App) *cobra.Command {
	var f candidatesFlags
	cmd := &cobra.Command{
		Use:   "candidates [package]",
		Short: "List statement runs in long functions that can be extracted",
		Long: `candidates scans functions of at least --min-lines lines for runs of
statements separated by blank lines and lists those that extract cleanly.
--apply N extracts the N-th candidate.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pkg string
			if len(args) == 1 {
				pkg = args[0]
			}
			ws, err := app.LoadWorkspace(cmd.Context())
			if err != nil {
				return err
			}
			engine := app.Engine()
			a := extractcandidate.NewAnalyzer(
				extractcandidate.WithMinFuncLines(f.minLines),
				extractcandidate.WithMinStatements(f.minStatements),
				extractcandidate.WithExtractor(engine.Extractor()),
			)
			rr, err := analyzers.Run(ws, engine.Parser(), a, pkg)
			if err != nil {
				return err
			}
			var found []*extractcandidate.Result
			for _, r := range rr.Results {
				found = append(found, r.([]*extractcandidate.Result)...)
			}

			if f.apply > 0 {
				if f.apply > len(rr.Diagnostics) {
					return fmt.Errorf("there are only %d candidates", len(rr.Diagnostics))
				}
				d := rr.Diagnostics[f.apply-1]
				plan := analyzers.ChangesToPlan(analyzers.DiagnosticsToChanges(ws.FileSet, []analysis.Diagnostic{d}))
				return processPlan(cmd, app, ws, plan, d.SuggestedFixes[0].Message, f.dryRun)
			}
			if app.Flags.JSON {
				return outputJSON(cmd.OutOrStdout(), found)
			}
			printCandidates(cmd.OutOrStdout(), found)
			return nil
		},
	}
	cmd.Flags().IntVar(&f.minLines, "min-lines", 30, "only inspect functions with at least this many lines")
	cmd.Flags().IntVar(&f.minStatements, "min-statements", 4, "shortest statement run to report")
	cmd.Flags().IntVar(&f.apply, "apply", 0, "extract the candidate with this number")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "with --apply, print the diff without writing it")
	return cmd
}

func printCandidates(w io.Writer, found []*extractcandidate.Result) {
	if len(found) == 0 {
		fmt.Fprintln(w, "No extraction candidates found")
		return
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Location", "Function", "Statements", "Extract As"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	for i, r := range found {
		table.Append([]string{
			strconv.Itoa(i + 1),
			fmt.Sprintf("%s:%d-%d", r.File, r.StartLine, r.EndLine),
			r.Function,
			strconv.Itoa(r.Statements),
			fmt.Sprintf("%s(%s)", r.Name, strings.Join(r.Parameters, ", ")),
		})
	}
	table.Render()
}
