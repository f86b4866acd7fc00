package engine

import "slidetasks/internal/store"

// TaskView is one task as the presentation layer sees it.
type TaskView struct {
	ID           string
	Title        string
	Notes        string
	Due          string
	ParentID     string
	Completed    bool
	Pending      bool // a local change is awaiting remote confirmation
	Conflict     bool // the last push was permanently rejected
	UndoEligible bool // a completion toggle can still be reverted
}

// View is the read-only model rendered by the presentation layer.
type View struct {
	State        State
	ActiveListID string
	Lists        []store.TaskList
	Tasks        []TaskView
	TodayTotal   int
	TodayDone    int
}

// Snapshot returns a consistent read-only view of the engine state.
func (e *Engine) Snapshot() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// CanUndo reports whether the task's last completion toggle is still
// revertible.
func (e *Engine) CanUndo(taskID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.undo[taskID]
	return ok
}

// snapshotLocked builds the view model. Caller holds e.mu.
func (e *Engine) snapshotLocked() View {
	v := View{
		State:        e.state,
		ActiveListID: e.activeList,
		Lists:        append([]store.TaskList(nil), e.lists...),
	}

	pendingIDs := make(map[string]bool)
	if muts, err := e.st.ListPendingMutations(); err == nil {
		for _, m := range muts {
			pendingIDs[m.TaskID] = true
		}
	}

	for _, t := range e.view {
		_, undoable := e.undo[t.ID]
		v.Tasks = append(v.Tasks, TaskView{
			ID:           t.ID,
			Title:        t.Title,
			Notes:        t.Notes,
			Due:          t.Due,
			ParentID:     t.ParentID,
			Completed:    t.Completed(),
			Pending:      pendingIDs[t.ID],
			Conflict:     t.Conflict,
			UndoEligible: undoable,
		})
	}

	if total, done, err := e.st.TodayStats(e.activeList, e.now()); err == nil {
		v.TodayTotal, v.TodayDone = total, done
	}
	return v
}
