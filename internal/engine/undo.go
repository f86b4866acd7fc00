package engine

import (
	"time"

	"slidetasks/internal/bus"
	"slidetasks/internal/store"
)

// undoWindow is the in-memory record of one revertible completion toggle.
// Never persisted: a restart forfeits the window, it does not resurrect it.
type undoWindow struct {
	prior    store.Task             // task state before the toggle
	priorMut *store.PendingMutation // outstanding mutation before the toggle, if any
	timer    *time.Timer
}

// beginUndoLocked opens the undo window for a toggle-to-completed.
// A live window for the same task is cancelled and replaced, so at most one
// exists per task. Caller holds e.mu.
func (e *Engine) beginUndoLocked(prior store.Task, priorMut *store.PendingMutation) {
	taskID := prior.ID
	if w, ok := e.undo[taskID]; ok {
		w.timer.Stop()
		delete(e.undo, taskID)
	}

	w := &undoWindow{prior: prior, priorMut: priorMut}
	w.timer = time.AfterFunc(e.settings.UndoWindow(), func() {
		e.expireUndo(taskID)
	})
	e.undo[taskID] = w
}

// cancelUndoLocked drops a live window without reverting anything.
// Caller holds e.mu.
func (e *Engine) cancelUndoLocked(taskID string) {
	if w, ok := e.undo[taskID]; ok {
		w.timer.Stop()
		delete(e.undo, taskID)
	}
}

// expireUndo fires when the window elapses: the toggle becomes irreversible
// through this mechanism. The pending mutation is already queued, so expiry
// only removes undo eligibility.
func (e *Engine) expireUndo(taskID string) {
	e.mu.Lock()
	if _, ok := e.undo[taskID]; !ok {
		e.mu.Unlock()
		return
	}
	delete(e.undo, taskID)
	e.mu.Unlock()

	e.bus.Publish(bus.TopicUndoExpired, bus.UndoEvent{TaskID: taskID})
}

// Undo reverts a completion toggle if its window is still open: the task
// returns to its prior state and the mutation the toggle queued is replaced
// by whatever was outstanding before. After expiry this is a no-op; a
// further edit is a fresh intent, not an undo.
func (e *Engine) Undo(taskID string) (View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	w, ok := e.undo[taskID]
	if !ok {
		return e.snapshotLocked(), nil
	}
	w.timer.Stop()
	delete(e.undo, taskID)

	if err := e.st.PutTaskWithMutation(w.prior, w.priorMut); err != nil {
		return View{}, err
	}
	if err := e.reloadViewLocked(); err != nil {
		return View{}, err
	}

	e.bus.Publish(bus.TopicUndoReverted, bus.UndoEvent{TaskID: taskID})
	return e.snapshotLocked(), nil
}
