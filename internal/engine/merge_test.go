package engine

import (
	"database/sql"
	"testing"
	"time"

	"slidetasks/internal/gateway"
	"slidetasks/internal/store"
)

func TestMergeNewRemoteTask(t *testing.T) {
	now := time.Now()
	res := mergeSnapshot(mergeInput{
		listID:  "@default",
		pending: map[string]store.PendingMutation{},
		remote:  []gateway.RemoteTask{{ID: "r1", Title: "from remote", Status: gateway.StatusOpen}},
		now:     now,
	})

	if len(res.upserts) != 1 || res.upserts[0].ID != "r1" {
		t.Fatalf("upserts = %+v, want one new task r1", res.upserts)
	}
	if res.appliedRemote != 1 {
		t.Errorf("appliedRemote = %d, want 1", res.appliedRemote)
	}
	if res.upserts[0].ListID != "@default" {
		t.Errorf("list id = %q", res.upserts[0].ListID)
	}
}

func TestMergeRemoteWinsWithoutPending(t *testing.T) {
	now := time.Now()
	local := store.Task{
		ID: "r1", ListID: "@default", Title: "old title",
		Status: store.StatusOpen, Conflict: true, CreatedAt: now,
	}
	res := mergeSnapshot(mergeInput{
		listID:  "@default",
		local:   []store.Task{local},
		pending: map[string]store.PendingMutation{},
		remote: []gateway.RemoteTask{{
			ID: "r1", Title: "new title", Notes: "n", Status: gateway.StatusCompleted,
			CompletedAt: now.Add(-time.Hour),
		}},
		now: now,
	})

	if len(res.upserts) != 1 {
		t.Fatalf("upserts = %+v, want 1", res.upserts)
	}
	got := res.upserts[0]
	if got.Title != "new title" || got.Notes != "n" {
		t.Errorf("remote fields not applied: %+v", got)
	}
	if !got.Completed() || !got.CompletedAt.Valid {
		t.Error("remote completion not applied")
	}
	if got.Conflict {
		t.Error("stale conflict flag survived a clean remote merge")
	}
}

func TestMergePendingTitlePinsTitleOnly(t *testing.T) {
	now := time.Now()
	local := store.Task{
		ID: "r1", ListID: "@default", Title: "local title",
		Status: store.StatusOpen, CreatedAt: now,
	}
	pending := map[string]store.PendingMutation{
		"r1": {TaskID: "r1", Kind: store.MutationTitle, Title: "local title"},
	}
	res := mergeSnapshot(mergeInput{
		listID:  "@default",
		local:   []store.Task{local},
		pending: pending,
		remote: []gateway.RemoteTask{{
			ID: "r1", Title: "remote title", Notes: "remote notes",
			Status: gateway.StatusCompleted, CompletedAt: now,
		}},
		now: now,
	})

	if len(res.upserts) != 1 {
		t.Fatalf("upserts = %+v, want 1", res.upserts)
	}
	got := res.upserts[0]
	if got.Title != "local title" {
		t.Errorf("pending title overwritten: %q", got.Title)
	}
	if got.Notes != "remote notes" {
		t.Errorf("untouched field not remote: %q", got.Notes)
	}
	if !got.Completed() {
		t.Error("untouched status not remote")
	}
}

func TestMergePendingStatusPinsStatus(t *testing.T) {
	now := time.Now()
	local := store.Task{
		ID: "r1", ListID: "@default", Title: "t",
		Status:      store.StatusCompleted,
		CompletedAt: sql.NullTime{Time: now, Valid: true},
		CreatedAt:   now,
	}
	pending := map[string]store.PendingMutation{
		"r1": {TaskID: "r1", Kind: store.MutationStatus, Status: store.StatusCompleted},
	}
	res := mergeSnapshot(mergeInput{
		listID:  "@default",
		local:   []store.Task{local},
		pending: pending,
		remote:  []gateway.RemoteTask{{ID: "r1", Title: "t", Status: gateway.StatusOpen}},
		now:     now,
	})

	for _, u := range res.upserts {
		if u.ID == "r1" && !u.Completed() {
			t.Error("pending completion reverted by stale remote status")
		}
	}
}

func TestMergeAbsentTaskArchived(t *testing.T) {
	now := time.Now()
	gone := store.Task{ID: "r1", ListID: "@default", Title: "t", Status: store.StatusOpen, CreatedAt: now}
	provisional := store.Task{ID: "local-x", ListID: "@default", Title: "p", Status: store.StatusOpen, CreatedAt: now}
	claimed := store.Task{ID: "r2", ListID: "@default", Title: "c", Status: store.StatusOpen, CreatedAt: now}

	res := mergeSnapshot(mergeInput{
		listID: "@default",
		local:  []store.Task{gone, provisional, claimed},
		pending: map[string]store.PendingMutation{
			"local-x": {TaskID: "local-x", Kind: store.MutationCreate},
			"r2":      {TaskID: "r2", Kind: store.MutationTitle},
		},
		remote: nil,
		now:    now,
	})

	if len(res.archive) != 1 || res.archive[0] != "r1" {
		t.Errorf("archive = %v, want [r1] only", res.archive)
	}
}

func TestMergeNoChangeNoUpsert(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	local := store.Task{ID: "r1", ListID: "@default", Title: "t", Status: store.StatusOpen, CreatedAt: now}

	res := mergeSnapshot(mergeInput{
		listID:  "@default",
		local:   []store.Task{local},
		pending: map[string]store.PendingMutation{},
		remote:  []gateway.RemoteTask{{ID: "r1", Title: "t", Status: gateway.StatusOpen}},
		now:     now,
	})

	if res.appliedRemote != 0 {
		t.Errorf("appliedRemote = %d for an identical snapshot", res.appliedRemote)
	}
}

func TestCompletedAtIffCompleted(t *testing.T) {
	now := time.Now()

	open := completedAtFromRemote(gateway.RemoteTask{Status: gateway.StatusOpen, CompletedAt: now}, now)
	if open.Valid {
		t.Error("open task carries a completion timestamp")
	}

	done := completedAtFromRemote(gateway.RemoteTask{Status: gateway.StatusCompleted}, now)
	if !done.Valid {
		t.Error("completed task missing a completion timestamp")
	}
}
