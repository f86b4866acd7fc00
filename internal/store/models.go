package store

import (
	"database/sql"
	"strings"
	"time"
)

// Task status values mirror the remote service wire values.
const (
	StatusOpen      = "needsAction"
	StatusCompleted = "completed"
)

// ProvisionalPrefix marks locally issued task ids that the remote service
// has not acknowledged yet.
const ProvisionalPrefix = "local-"

// IsProvisionalID reports whether id was issued locally.
func IsProvisionalID(id string) bool {
	return strings.HasPrefix(id, ProvisionalPrefix)
}

// TaskList mirrors a remote task list.
type TaskList struct {
	ID       string
	Title    string
	Position int
}

// Task is the cached mirror of one task, plus local sync bookkeeping.
type Task struct {
	ID          string // remote id, or ProvisionalPrefix+uuid before first push
	ListID      string
	ParentID    string
	Title       string
	Notes       string
	Due         string // "YYYY-MM-DD", empty if none
	Status      string // StatusOpen or StatusCompleted
	CompletedAt sql.NullTime
	Position    string
	Revision    int64 // bumped on every local edit
	Archived    bool  // omitted from a full remote snapshot; kept for audit
	Conflict    bool  // a push was permanently rejected
	CreatedAt   time.Time
}

// Completed reports whether the task is completed.
func (t Task) Completed() bool { return t.Status == StatusCompleted }

// MutationKind names the local change a pending mutation carries.
type MutationKind string

const (
	MutationCreate MutationKind = "create"
	MutationTitle  MutationKind = "title"
	MutationStatus MutationKind = "status"
)

// PendingMutation is a local change not yet confirmed by the remote service.
// At most one exists per task; a newer intent supersedes it.
type PendingMutation struct {
	TaskID        string
	ListID        string
	Kind          MutationKind
	Title         string // desired title for create/title mutations
	Status        string // desired status for create/status mutations
	CreatedAt     time.Time
	RetryCount    int
	NextAttemptAt time.Time
}

// Covers reports whether the mutation pins the given task field against
// remote overwrites. A create pins everything until the task exists remotely.
func (m PendingMutation) Covers(field MutationKind) bool {
	return m.Kind == MutationCreate || m.Kind == field
}

// DailyLog is one frozen day of completion stats. Rows are append-only.
type DailyLog struct {
	Date            string // "YYYY-MM-DD" in local time
	TotalCount      int
	DoneCount       int
	AchievementRate float64
}
