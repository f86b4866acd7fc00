// Package testutil provides testing utilities.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"slidetasks/internal/gateway"
)

// DefaultListID is the ID used for the default list.
const DefaultListID = "@default"

// Classified error constructors for failure injection.

// TransientErr builds a retryable gateway error.
func TransientErr(op string) error {
	return &gateway.Error{Kind: gateway.KindTransient, Op: op, Err: errors.New("connection reset")}
}

// AuthErr builds an auth-expired gateway error.
func AuthErr(op string) error {
	return &gateway.Error{Kind: gateway.KindAuth, Op: op, Err: errors.New("token expired")}
}

// PermanentErr builds a permanent-rejection gateway error.
func PermanentErr(op string) error {
	return &gateway.Error{Kind: gateway.KindPermanent, Op: op, Err: errors.New("list not found")}
}

// FakeGateway is an in-memory implementation of gateway.Gateway for tests.
type FakeGateway struct {
	mu     sync.Mutex
	lists  []gateway.TaskList
	tasks  map[string][]gateway.RemoteTask // listID -> tasks
	nextID int

	// Error injection
	ListListsErr     error
	FetchSnapshotErr error
	PushCreateErr    error
	PushStatusErr    error
	PushTitleErr     error
	FetchHistoryErr  error

	// Call counters
	CreateCalls int
	StatusCalls int
	TitleCalls  int
}

// NewFakeGateway creates a FakeGateway with an empty default list.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		lists: []gateway.TaskList{{ID: DefaultListID, Title: "My Tasks"}},
		tasks: map[string][]gateway.RemoteTask{DefaultListID: nil},
	}
}

// AddList adds a list.
func (f *FakeGateway) AddList(id, title string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists = append(f.lists, gateway.TaskList{ID: id, Title: title, Position: len(f.lists)})
	if f.tasks[id] == nil {
		f.tasks[id] = nil
	}
}

// AddTask seeds a remote task.
func (f *FakeGateway) AddTask(listID string, t gateway.RemoteTask) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.Status == "" {
		t.Status = gateway.StatusOpen
	}
	f.tasks[listID] = append(f.tasks[listID], t)
}

// SetTitle rewrites a seeded task's title, simulating a remote edit.
func (f *FakeGateway) SetTitle(listID, taskID, title string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, t := range f.tasks[listID] {
		if t.ID == taskID {
			f.tasks[listID][i].Title = title
			return
		}
	}
}

// RemoveTask drops a seeded task, simulating a remote deletion.
func (f *FakeGateway) RemoveTask(listID, taskID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tasks := f.tasks[listID]
	for i, t := range tasks {
		if t.ID == taskID {
			f.tasks[listID] = append(tasks[:i], tasks[i+1:]...)
			return
		}
	}
}

// Task returns a seeded task by id.
func (f *FakeGateway) Task(listID, taskID string) (gateway.RemoteTask, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tasks[listID] {
		if t.ID == taskID {
			return t, true
		}
	}
	return gateway.RemoteTask{}, false
}

// ListLists implements gateway.Gateway.
func (f *FakeGateway) ListLists(ctx context.Context) ([]gateway.TaskList, error) {
	if f.ListListsErr != nil {
		return nil, f.ListListsErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make([]gateway.TaskList, len(f.lists))
	copy(result, f.lists)
	return result, nil
}

// FetchSnapshot implements gateway.Gateway.
func (f *FakeGateway) FetchSnapshot(ctx context.Context, listID string) (gateway.Snapshot, error) {
	if f.FetchSnapshotErr != nil {
		return gateway.Snapshot{}, f.FetchSnapshotErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := gateway.Snapshot{ListID: listID}
	snap.Tasks = append(snap.Tasks, f.tasks[listID]...)
	return snap, nil
}

// PushCreate implements gateway.Gateway. Remote ids are "rt-1", "rt-2", ...
func (f *FakeGateway) PushCreate(ctx context.Context, listID string, t gateway.RemoteTask) (string, error) {
	f.mu.Lock()
	f.CreateCalls++
	f.mu.Unlock()
	if f.PushCreateErr != nil {
		return "", f.PushCreateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	t.ID = fmt.Sprintf("rt-%d", f.nextID)
	if t.Status == "" {
		t.Status = gateway.StatusOpen
	}
	f.tasks[listID] = append(f.tasks[listID], t)
	return t.ID, nil
}

// PushStatus implements gateway.Gateway.
func (f *FakeGateway) PushStatus(ctx context.Context, listID, taskID, status string) error {
	f.mu.Lock()
	f.StatusCalls++
	f.mu.Unlock()
	if f.PushStatusErr != nil {
		return f.PushStatusErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, t := range f.tasks[listID] {
		if t.ID == taskID {
			f.tasks[listID][i].Status = status
			if status == gateway.StatusCompleted {
				f.tasks[listID][i].CompletedAt = time.Now()
			} else {
				f.tasks[listID][i].CompletedAt = time.Time{}
			}
			return nil
		}
	}
	return PermanentErr("status")
}

// PushTitle implements gateway.Gateway.
func (f *FakeGateway) PushTitle(ctx context.Context, listID, taskID, title string) error {
	f.mu.Lock()
	f.TitleCalls++
	f.mu.Unlock()
	if f.PushTitleErr != nil {
		return f.PushTitleErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, t := range f.tasks[listID] {
		if t.ID == taskID {
			f.tasks[listID][i].Title = title
			return nil
		}
	}
	return PermanentErr("title")
}

// FetchHistory implements gateway.Gateway.
func (f *FakeGateway) FetchHistory(ctx context.Context, listID string, from, to time.Time) ([]gateway.Completion, error) {
	if f.FetchHistoryErr != nil {
		return nil, f.FetchHistoryErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []gateway.Completion
	for _, t := range f.tasks[listID] {
		if t.Status != gateway.StatusCompleted || t.CompletedAt.IsZero() {
			continue
		}
		if t.CompletedAt.Before(from) || t.CompletedAt.After(to) {
			continue
		}
		result = append(result, gateway.Completion{TaskID: t.ID, Title: t.Title, CompletedAt: t.CompletedAt})
	}
	return result, nil
}
