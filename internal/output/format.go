// Package output provides formatters for CLI output.
package output

import (
	"fmt"
	"io"
	"strings"

	"slidetasks/internal/engine"
	"slidetasks/internal/store"
)

// FormatTask formats one task line for the add/done commands.
// Format: "{N:>4}  [{X}] {TITLE}{MARKER}" where X is a space or x, and
// MARKER is " *" for pending or " !" for conflicted tasks.
func FormatTask(w io.Writer, num int, t engine.TaskView) {
	box := " "
	if t.Completed {
		box = "x"
	}
	marker := ""
	switch {
	case t.Conflict:
		marker = " !"
	case t.Pending:
		marker = " *"
	}
	indent := ""
	if t.ParentID != "" {
		indent = "  "
	}
	fmt.Fprintf(w, "%4d  [%s] %s%s%s\n", num, box, indent, NormalizeTitle(t.Title), marker)
}

// FormatHistory writes per-day completion rows, newest first.
// Format: "{DATE}  {DONE:>3}/{TOTAL:<3}  {RATE:5.1f}%"
func FormatHistory(w io.Writer, logs []store.DailyLog) {
	for _, l := range logs {
		fmt.Fprintf(w, "%s  %3d/%-3d  %5.1f%%\n", l.Date, l.DoneCount, l.TotalCount, l.AchievementRate)
	}
}

// NormalizeTitle normalizes a task title for display.
// Empty or whitespace-only titles become "(untitled)"; newlines become
// spaces.
func NormalizeTitle(title string) string {
	title = strings.ReplaceAll(title, "\r", " ")
	title = strings.ReplaceAll(title, "\n", " ")
	if strings.TrimSpace(title) == "" {
		return "(untitled)"
	}
	return title
}
