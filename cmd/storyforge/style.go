package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/danielpatrickdp/storyforge/internal/batch"
	"github.com/danielpatrickdp/storyforge/internal/collab"
)

// #region styles

var (
	headStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	okStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#3FB950"))
	warnStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#D29922"))
	failStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F85149"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8B949E"))
	textStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#5B8DEF")).
			Padding(0, 1).
			Width(88)
)

// #endregion styles

// #region lines

func statusBadge(s batch.Status) string {
	switch s {
	case batch.StatusCompleted:
		return okStyle.Render("done")
	case batch.StatusCanceled:
		return warnStyle.Render("canceled")
	default:
		return failStyle.Render("failed")
	}
}

func progressLine(p batch.Progress) string {
	return fmt.Sprintf("%s %s %s",
		dimStyle.Render(fmt.Sprintf("[%d/%d]", p.Current, p.Total)),
		statusBadge(p.Status),
		p.JobID)
}

func roundLine(r collab.Round, f collab.Facilitation) string {
	line := fmt.Sprintf("round %d %s -> %s actions=%d consensus=%.2f",
		r.Number, r.Phase, f.NextPhase, len(r.Actions), f.ConsensusScore)
	if r.Degraded {
		line += " (degraded)"
	}
	return line
}

// progressTo prints one line per finished job to w. run sends it to stderr
// so stdout carries only the result.
func progressTo(w io.Writer) func(batch.Progress) {
	return func(p batch.Progress) {
		fmt.Fprintln(w, progressLine(p))
	}
}

// writeBatchResult prints res to w as JSON or as a styled summary.
func writeBatchResult(w io.Writer, res batch.Result, asJSON bool) error {
	if asJSON {
		return printJSON(w, res)
	}
	printBatchSummary(w, res)
	return nil
}

func printBatchSummary(w io.Writer, res batch.Result) {
	fmt.Fprintln(w, headStyle.Render("batch "+res.BatchID))
	for _, j := range res.Jobs {
		theme := j.Theme
		if j.Status != batch.StatusCompleted {
			theme = j.Error
		}
		fmt.Fprintf(w, "  %-3d %-10s %-38s %s\n", j.Index, statusBadge(j.Status), j.JobID, dimStyle.Render(theme))
	}
	fmt.Fprintf(w, "%s completed, %s failed, %s canceled, %d tokens in %s\n",
		okStyle.Render(fmt.Sprint(res.Completed)),
		failStyle.Render(fmt.Sprint(res.Failed)),
		warnStyle.Render(fmt.Sprint(res.Canceled)),
		res.TotalTokensUsed,
		res.Duration.Round(time.Millisecond))
}

// #endregion lines

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
