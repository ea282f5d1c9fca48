package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mamaar/goextract/internal/cli"
	"github.com/mamaar/goextract/pkg/types"
)

// planView is the JSON form of a processed plan.
type planView struct {
	Description   string        `json:"description"`
	AffectedFiles []string      `json:"affected_files"`
	Issues        []types.Issue `json:"issues,omitempty"`
	Diff          string        `json:"diff"`
	Applied       bool          `json:"applied"`
}

// processPlan prints plan and either previews it (dryRun) or writes it.
func processPlan(cmd *cobra.Command, app *cli.App, ws *types.Workspace, plan *types.RefactoringPlan, description string, dryRun bool) error {
	engine := app.Engine()
	out := cmd.OutOrStdout()
	st := newStyles(out)

	preview, err := engine.PreviewPlan(ws, plan)
	if err != nil {
		return fmt.Errorf("generating preview: %w", err)
	}

	if !dryRun {
		if err := engine.ExecutePlan(ws, plan); err != nil {
			var verr *types.ValidationError
			if errors.As(err, &verr) && !app.Flags.JSON {
				fmt.Fprintln(out, st.failure.Render("The result does not compile:"))
				for _, issue := range verr.Issues {
					st.issue(out, issue)
				}
			}
			return err
		}
	}

	if app.Flags.JSON {
		return outputJSON(out, planView{
			Description:   description,
			AffectedFiles: plan.AffectedFiles,
			Issues:        plan.Issues,
			Diff:          preview,
			Applied:       !dryRun,
		})
	}

	fmt.Fprintln(out, st.title.Render("Refactoring Plan: "+description))
	if len(plan.AffectedFiles) > 0 {
		fmt.Fprintf(out, "\nAffected Files (%d):\n", len(plan.AffectedFiles))
		for _, file := range plan.AffectedFiles {
			fmt.Fprintf(out, "  - %s\n", file)
		}
	}
	if app.Flags.Verbose {
		fmt.Fprintf(out, "\nChanges (%d):\n", len(plan.Changes))
		for i, change := range plan.Changes {
			fmt.Fprintf(out, "  %d. %s\n", i+1, change.Description)
			fmt.Fprintf(out, "     File: %s [%d:%d]\n", change.File, change.Start, change.End)
		}
	}
	if len(plan.Issues) > 0 {
		fmt.Fprintln(out, "\nIssues Found:")
		for _, issue := range plan.Issues {
			st.issue(out, issue)
		}
	}

	if dryRun {
		fmt.Fprintf(out, "\n%s\n", st.faint.Render("Dry run mode - no changes will be applied"))
		fmt.Fprintf(out, "\n%s", preview)
		return nil
	}
	fmt.Fprintf(out, "\n%s\n", st.success.Render(fmt.Sprintf("Applied %d change(s) to %d file(s)", len(plan.Changes), len(plan.AffectedFiles))))
	return nil
}
