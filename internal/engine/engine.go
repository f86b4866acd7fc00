// Package engine is the reconciliation core. It owns the authoritative view
// of the active task list, applies local intents optimistically, merges
// remote snapshots against pending local mutations, and drives the undo
// window and daily rollover. All state mutations are serialized behind one
// mutex; network I/O happens outside it and results are merged back in a
// single step.
package engine

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"slidetasks/internal/bus"
	"slidetasks/internal/config"
	"slidetasks/internal/gateway"
	"slidetasks/internal/store"
)

// State is the sync session state.
type State string

const (
	// StateOffline is the initial state and the landing state after any
	// connectivity loss. The view stays read-write; pushes are deferred.
	StateOffline State = "offline"

	// StateSyncing means a sync cycle is in flight.
	StateSyncing State = "syncing"

	// StateIdle means the last cycle completed and the engine is waiting
	// for the next timer tick or user action.
	StateIdle State = "idle"

	// StateReauthRequired means stored credentials expired. Pushes are
	// paused until a fetch succeeds again.
	StateReauthRequired State = "reauth-required"
)

// IntentKind names a user command forwarded by the presentation layer.
type IntentKind string

const (
	IntentAddTask        IntentKind = "add-task"
	IntentToggleComplete IntentKind = "toggle-complete"
	IntentEditTitle      IntentKind = "edit-title"
	IntentSwitchList     IntentKind = "switch-active-list"
)

// Intent is one user command.
type Intent struct {
	Kind     IntentKind
	TaskID   string // toggle-complete, edit-title
	ListID   string // switch-active-list
	Title    string // add-task, edit-title
	ParentID string // add-task, optional subtask parent
	Due      string // add-task, optional "YYYY-MM-DD"
}

// MergeReport summarizes one sync cycle for the presentation layer.
type MergeReport struct {
	AppliedRemote  int // remote changes folded into the cache
	ConfirmedLocal int // pending mutations acknowledged remote-side
	FailedLocal    int // pending mutations that failed this cycle
	Archived       int // tasks hidden because the snapshot omitted them
	State          State
}

// Options configures a new Engine.
type Options struct {
	Store      *store.Store
	Gateway    gateway.Gateway
	Bus        *bus.Bus
	Logger     *slog.Logger
	Settings   config.Settings
	ActiveList string // defaults to "@default"
}

// Engine is the reconciliation engine. Create with New.
type Engine struct {
	mu  sync.Mutex
	st  *store.Store
	gw  gateway.Gateway
	bus *bus.Bus
	log *slog.Logger

	settings config.Settings

	state      State
	activeList string
	lists      []store.TaskList
	view       []store.Task // active list, loaded from the store

	undo map[string]*undoWindow

	lastDay string // "YYYY-MM-DD", rollover watermark

	// now is swappable in tests.
	now func() time.Time
}

// New creates an Engine and recovers the last committed view from the
// cache store. The engine starts offline until the first successful cycle.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("engine: store is required")
	}
	active := opts.ActiveList
	if active == "" {
		active = "@default"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	b := opts.Bus
	if b == nil {
		b = bus.New()
	}

	e := &Engine{
		st:         opts.Store,
		gw:         opts.Gateway,
		bus:        b,
		log:        logger,
		settings:   opts.Settings,
		state:      StateOffline,
		activeList: active,
		undo:       make(map[string]*undoWindow),
		now:        time.Now,
	}
	e.lastDay = e.now().Format("2006-01-02")

	lists, err := e.st.TaskLists()
	if err != nil {
		return nil, fmt.Errorf("engine: recovering lists: %w", err)
	}
	e.lists = lists

	if err := e.reloadViewLocked(); err != nil {
		return nil, fmt.Errorf("engine: recovering view: %w", err)
	}
	return e, nil
}

// Bus returns the event bus the engine publishes on.
func (e *Engine) Bus() *bus.Bus { return e.bus }

// State returns the current sync state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// reloadViewLocked refreshes the in-memory view from the store.
// Caller holds e.mu.
func (e *Engine) reloadViewLocked() error {
	tasks, err := e.st.ListActiveTasks(e.activeList)
	if err != nil {
		return err
	}
	e.view = tasks
	return nil
}

// setStateLocked transitions the state machine and publishes the change.
// Caller holds e.mu.
func (e *Engine) setStateLocked(next State) {
	if e.state == next {
		return
	}
	old := e.state
	e.state = next
	e.log.Debug("sync state changed", "old", string(old), "new", string(next))
	e.bus.Publish(bus.TopicSyncState, bus.StateChangedEvent{Old: string(old), New: string(next)})
}

// ApplyLocalIntent applies a user command optimistically: the in-memory
// view and the cache store are updated immediately and the pending mutation
// is created or superseded. Never touches the network, never blocks on it.
// The returned view reflects the applied change.
func (e *Engine) ApplyLocalIntent(intent Intent) (View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var err error
	switch intent.Kind {
	case IntentAddTask:
		err = e.addTaskLocked(intent)
	case IntentToggleComplete:
		err = e.toggleLocked(intent.TaskID)
	case IntentEditTitle:
		err = e.editTitleLocked(intent.TaskID, intent.Title)
	case IntentSwitchList:
		e.activeList = intent.ListID
	default:
		return View{}, fmt.Errorf("engine: unknown intent %q", intent.Kind)
	}
	if err != nil {
		return View{}, err
	}

	if err := e.reloadViewLocked(); err != nil {
		return View{}, err
	}
	return e.snapshotLocked(), nil
}

func (e *Engine) addTaskLocked(intent Intent) error {
	now := e.now()
	t := store.Task{
		ID:        store.ProvisionalPrefix + uuid.NewString(),
		ListID:    e.activeList,
		ParentID:  intent.ParentID,
		Title:     intent.Title,
		Due:       intent.Due,
		Status:    store.StatusOpen,
		Revision:  1,
		CreatedAt: now,
	}
	m := &store.PendingMutation{
		TaskID:        t.ID,
		ListID:        t.ListID,
		Kind:          store.MutationCreate,
		Title:         t.Title,
		Status:        t.Status,
		CreatedAt:     now,
		NextAttemptAt: now,
	}
	return e.st.PutTaskWithMutation(t, m)
}

func (e *Engine) toggleLocked(taskID string) error {
	t, err := e.st.GetTask(taskID)
	if err != nil {
		return fmt.Errorf("engine: toggle %s: %w", taskID, err)
	}

	prior := t
	priorMut := e.currentMutation(taskID)
	now := e.now()

	if t.Completed() {
		t.Status = store.StatusOpen
		t.CompletedAt = sql.NullTime{}
	} else {
		t.Status = store.StatusCompleted
		t.CompletedAt = sql.NullTime{Time: now, Valid: true}
	}
	t.Revision++
	t.Conflict = false // a fresh intent supersedes a flagged failure

	m := e.supersedeMutation(t, store.MutationStatus, now)
	if err := e.st.PutTaskWithMutation(t, m); err != nil {
		return err
	}

	if t.Completed() {
		e.beginUndoLocked(prior, priorMut)
	} else {
		e.cancelUndoLocked(taskID)
	}
	return nil
}

func (e *Engine) editTitleLocked(taskID, title string) error {
	t, err := e.st.GetTask(taskID)
	if err != nil {
		return fmt.Errorf("engine: edit %s: %w", taskID, err)
	}

	t.Title = title
	t.Revision++
	t.Conflict = false
	now := e.now()

	m := e.supersedeMutation(t, store.MutationTitle, now)
	return e.st.PutTaskWithMutation(t, m)
}

// currentMutation returns a copy of the task's outstanding mutation, if any.
func (e *Engine) currentMutation(taskID string) *store.PendingMutation {
	m, ok, err := e.st.GetPendingMutation(taskID)
	if err != nil || !ok {
		return nil
	}
	return &m
}

// supersedeMutation builds the pending mutation for a local edit. A task
// the remote service has never seen keeps a single create mutation carrying
// the latest desired fields; otherwise the new mutation replaces whatever
// was outstanding. Retry bookkeeping resets: a fresh intent is a fresh push.
func (e *Engine) supersedeMutation(t store.Task, kind store.MutationKind, now time.Time) *store.PendingMutation {
	if store.IsProvisionalID(t.ID) {
		kind = store.MutationCreate
	}
	return &store.PendingMutation{
		TaskID:        t.ID,
		ListID:        t.ListID,
		Kind:          kind,
		Title:         t.Title,
		Status:        t.Status,
		CreatedAt:     now,
		NextAttemptAt: now,
	}
}
