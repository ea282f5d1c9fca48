package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/mamaar/goextract/internal/cli"
	"github.com/mamaar/goextract/pkg/refactor"
)

var errNotExtractable = errors.New("selection cannot be extracted")

// NewAnalyzeCmd returns the analyze command.
func NewAnalyzeCmd(app *cli.App) *cobra.Command {
	var f extractFlags
	cmd := &cobra.Command{
		Use:   "analyze <file> <range>",
		Short: "Show how an extraction would classify each variable",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := newRequest(args, f)
			if err != nil {
				return err
			}
			ws, err := app.LoadWorkspace(cmd.Context())
			if err != nil {
				return err
			}
			report, err := app.Engine().AnalyzeExtraction(cmd.Context(), ws, req)
			if err != nil {
				return err
			}
			if app.Flags.JSON {
				if err := outputJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
			} else {
				printReport(cmd.OutOrStdout(), report)
			}
			if !report.Succeeded {
				return errNotExtractable
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&f.name, "name", "n", "", "name of the new function")
	cmd.Flags().StringVarP(&f.mode, "mode", "m", "auto", "function, method, local or auto")
	cmd.Flags().BoolVar(&f.bestEffort, "best-effort", false, "pass unclassifiable variables as plain parameters")
	return cmd
}

func printReport(w io.Writer, r *refactor.ExtractionReport) {
	st := newStyles(w)
	fmt.Fprintln(w, st.title.Render(fmt.Sprintf("Extraction Analysis: %s:%s", r.File, r.Range)))
	if r.Succeeded {
		fmt.Fprintf(w, "%s %s %s\n", st.success.Render("OK"), r.Mode, r.Name)
	} else {
		fmt.Fprintln(w, st.failure.Render("NOT EXTRACTABLE"))
	}
	for _, reason := range r.Reasons {
		fmt.Fprintf(w, "  - %s\n", reason)
	}

	if len(r.Variables) > 0 {
		fmt.Fprintln(w)
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"Variable", "Kind", "Type", "Flags", "Parameter", "Return", "Pointer"})
		table.SetBorder(false)
		table.SetAutoWrapText(false)
		table.SetAutoFormatHeaders(false)
		for _, v := range r.Variables {
			ptr := ""
			if v.Pointer {
				ptr = "yes"
			}
			table.Append([]string{v.Name, v.Kind, v.Type, v.Flags, v.Parameter, v.Return, ptr})
		}
		table.Render()
	}

	if len(r.Results) > 0 {
		fmt.Fprintf(w, "\nResults: %s\n", strings.Join(r.Results, ", "))
	}
	if len(r.Flow) > 0 {
		fmt.Fprintf(w, "Exits:   %s", strings.Join(r.Flow, ", "))
		if r.FlowEncoding != "" {
			fmt.Fprintf(w, " (%s)", r.FlowEncoding)
		}
		fmt.Fprintln(w)
	}
}
