package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fyrsmithlabs/plains/internal/orchestrator"
	"github.com/fyrsmithlabs/plains/internal/task"
	"go.uber.org/multierr"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	taskStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226"))

	locationStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	reportStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

// renderFailure formats a failed run: one section per rejected phase, with
// the file:line:col of every entry error the task reported and any other
// cause on its own line.
func renderFailure(err error) string {
	var b strings.Builder
	b.WriteString(errorStyle.Render("✗ build failed"))
	b.WriteString("\n")

	var missing *orchestrator.MissingSubscriptionError
	if errors.As(err, &missing) {
		fmt.Fprintf(&b, "\nno task subscribes to hook %s\n", taskStyle.Render(string(missing.Hook)))
		return reportStyle.Render(strings.TrimRight(b.String(), "\n")) + "\n"
	}

	rejections := orchestrator.Rejections(err)
	if len(rejections) == 0 {
		fmt.Fprintf(&b, "\n%s\n", err)
		return reportStyle.Render(strings.TrimRight(b.String(), "\n")) + "\n"
	}

	for _, pe := range rejections {
		fmt.Fprintf(&b, "\n%s %s\n", taskStyle.Render(pe.Name), dimStyle.Render(string(pe.Phase)))
		for _, cause := range multierr.Errors(pe.Err) {
			entryErrs := task.AsEntryErrors(cause)
			if len(entryErrs) == 0 {
				fmt.Fprintf(&b, "  %s\n", cause)
				continue
			}
			for _, ee := range entryErrs {
				fmt.Fprintf(&b, "  %s %s\n", locationStyle.Render(location(ee)), ee.Message)
			}
		}
	}
	return reportStyle.Render(strings.TrimRight(b.String(), "\n")) + "\n"
}

func location(e task.EntryError) string {
	switch {
	case e.Line > 0 && e.Column > 0:
		return fmt.Sprintf("%s:%d:%d", e.File, e.Line, e.Column)
	case e.Line > 0:
		return fmt.Sprintf("%s:%d", e.File, e.Line)
	}
	return e.File
}
