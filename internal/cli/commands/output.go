package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/mamaar/goextract/pkg/types"
)

type styles struct {
	title   lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
	warning lipgloss.Style
	faint   lipgloss.Style
}

// newStyles renders for w, so output that is not a terminal stays plain.
func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		title:   r.NewStyle().Bold(true),
		success: r.NewStyle().Foreground(lipgloss.Color("10")),
		failure: r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		warning: r.NewStyle().Foreground(lipgloss.Color("11")),
		faint:   r.NewStyle().Faint(true),
	}
}

func (s styles) issue(w io.Writer, issue types.Issue) {
	var prefix string
	switch issue.Severity {
	case types.Error:
		prefix = s.failure.Render("ERROR:")
	case types.Warning:
		prefix = s.warning.Render("WARN: ")
	default:
		prefix = s.faint.Render("INFO: ")
	}
	fmt.Fprintf(w, "  %s %s\n", prefix, issue.Description)
	if issue.File != "" {
		fmt.Fprintf(w, "         at %s:%d\n", issue.File, issue.Line)
	}
}

func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
