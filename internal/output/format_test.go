package output

import (
	"bytes"
	"strings"
	"testing"

	"slidetasks/internal/engine"
	"slidetasks/internal/store"
)

func TestFormatTask(t *testing.T) {
	tests := []struct {
		name string
		num  int
		task engine.TaskView
		want string
	}{
		{"open", 1, engine.TaskView{Title: "buy milk"}, "   1  [ ] buy milk\n"},
		{"completed", 2, engine.TaskView{Title: "buy milk", Completed: true}, "   2  [x] buy milk\n"},
		{"pending", 3, engine.TaskView{Title: "buy milk", Pending: true}, "   3  [ ] buy milk *\n"},
		{"conflict beats pending", 4, engine.TaskView{Title: "buy milk", Pending: true, Conflict: true}, "   4  [ ] buy milk !\n"},
		{"subtask indented", 5, engine.TaskView{Title: "sub", ParentID: "r1"}, "   5  [ ]   sub\n"},
		{"untitled", 6, engine.TaskView{Title: "  "}, "   6  [ ] (untitled)\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			FormatTask(&buf, tt.num, tt.task)
			if buf.String() != tt.want {
				t.Errorf("got %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestFormatHistory(t *testing.T) {
	var buf bytes.Buffer
	FormatHistory(&buf, []store.DailyLog{
		{Date: "2026-08-24", TotalCount: 5, DoneCount: 3, AchievementRate: 60},
		{Date: "2026-08-23", TotalCount: 2, DoneCount: 2, AchievementRate: 100},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "2026-08-24") || !strings.Contains(lines[0], "3/5") {
		t.Errorf("line = %q", lines[0])
	}
	if !strings.Contains(lines[1], "100.0%") {
		t.Errorf("line = %q", lines[1])
	}
}

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"", "(untitled)"},
		{"  \t ", "(untitled)"},
		{"two\nlines", "two lines"},
		{"cr\r\nlf", "cr  lf"},
	}
	for _, tt := range tests {
		if got := NormalizeTitle(tt.in); got != tt.want {
			t.Errorf("NormalizeTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
