// Package gateway defines the backend-agnostic contract for the remote task
// service. All remote calls go through the Gateway interface; the engine
// never imports the Google SDK directly.
package gateway

import (
	"context"
	"time"
)

// Task status values as reported by the remote service.
const (
	StatusOpen      = "needsAction"
	StatusCompleted = "completed"
)

// RemoteTask is a task as the remote service reports it.
type RemoteTask struct {
	ID          string
	Title       string
	Notes       string
	Status      string    // StatusOpen or StatusCompleted
	CompletedAt time.Time // zero unless Status is StatusCompleted
	Due         string    // "YYYY-MM-DD", empty if none
	Parent      string    // parent task id for one level of indentation
	Position    string
}

// TaskList is a remote task list.
type TaskList struct {
	ID       string
	Title    string
	Position int
}

// Snapshot is the result of a full fetch for one list.
// A task absent from a full snapshot has been removed remote-side.
type Snapshot struct {
	ListID string
	Tasks  []RemoteTask
}

// Completion is one remotely recorded task completion, used for history
// reconciliation.
type Completion struct {
	TaskID      string
	Title       string
	CompletedAt time.Time
}

// Gateway is the remote task service contract.
// Implementations must classify failures with the error kinds in errors.go
// so the engine can distinguish transient, auth, and permanent failures.
type Gateway interface {
	// ListLists returns all task lists in remote order.
	ListLists(ctx context.Context) ([]TaskList, error)

	// FetchSnapshot returns the full state of a list: open tasks plus
	// tasks completed within the configured lookback window.
	FetchSnapshot(ctx context.Context, listID string) (Snapshot, error)

	// PushCreate creates a task remote-side and returns the remote id.
	PushCreate(ctx context.Context, listID string, t RemoteTask) (string, error)

	// PushStatus sets a task's completion status remote-side.
	PushStatus(ctx context.Context, listID, taskID, status string) error

	// PushTitle sets a task's title remote-side.
	PushTitle(ctx context.Context, listID, taskID, title string) error

	// FetchHistory returns completions for a list within [from, to].
	FetchHistory(ctx context.Context, listID string, from, to time.Time) ([]Completion, error)
}
