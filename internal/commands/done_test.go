package commands

import (
	"testing"

	"slidetasks/internal/engine"
)

func refView(titles ...string) engine.View {
	v := engine.View{}
	for i, title := range titles {
		v.Tasks = append(v.Tasks, engine.TaskView{ID: "r" + string(rune('1'+i)), Title: title})
	}
	return v
}

func TestResolveRefByNumber(t *testing.T) {
	v := refView("first", "second", "third")

	task, num, err := resolveRef(v, "2")
	if err != nil {
		t.Fatalf("resolveRef: %v", err)
	}
	if task.Title != "second" || num != 2 {
		t.Errorf("got %q #%d, want second #2", task.Title, num)
	}

	if _, _, err := resolveRef(v, "0"); err == nil {
		t.Error("ref 0 accepted")
	}
	if _, _, err := resolveRef(v, "4"); err == nil {
		t.Error("out of range ref accepted")
	}
}

func TestResolveRefByID(t *testing.T) {
	v := refView("first", "second")

	task, _, err := resolveRef(v, "r2")
	if err != nil {
		t.Fatalf("resolveRef: %v", err)
	}
	if task.Title != "second" {
		t.Errorf("got %q, want second", task.Title)
	}
}

func TestResolveRefByTitlePrefix(t *testing.T) {
	v := refView("buy milk", "write report", "water plants")

	task, _, err := resolveRef(v, "WRITE")
	if err != nil {
		t.Fatalf("resolveRef: %v", err)
	}
	if task.Title != "write report" {
		t.Errorf("got %q, want write report", task.Title)
	}

	if _, _, err := resolveRef(v, "w"); err == nil {
		t.Error("ambiguous prefix accepted")
	}
	if _, _, err := resolveRef(v, "zzz"); err == nil {
		t.Error("no-match ref accepted")
	}
}
