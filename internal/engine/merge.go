package engine

import (
	"database/sql"
	"time"

	"slidetasks/internal/gateway"
	"slidetasks/internal/store"
)

// mergeInput is everything the merge rule needs: the cached tasks for one
// list, the outstanding mutations keyed by task id, and a full remote
// snapshot of that list.
type mergeInput struct {
	listID  string
	local   []store.Task
	pending map[string]store.PendingMutation
	remote  []gateway.RemoteTask
	// confirmed holds task ids whose push was acknowledged this cycle.
	// The snapshot predates those pushes, so its omission of them says
	// nothing about remote deletion.
	confirmed map[string]bool
	now       time.Time
}

// mergeResult is what must be persisted to make the cache agree with the
// merge rule.
type mergeResult struct {
	upserts       []store.Task
	archive       []string
	appliedRemote int
}

// mergeSnapshot applies the merge rule. For each remote task: with no
// pending mutation, remote wins outright. With one, remote fields fold in
// except the field(s) the mutation covers, which keep the local value until
// the mutation is confirmed or permanently fails. Cached tasks absent from
// the full snapshot with no pending mutation are archived, not deleted.
func mergeSnapshot(in mergeInput) mergeResult {
	var out mergeResult

	localByID := make(map[string]store.Task, len(in.local))
	for _, t := range in.local {
		localByID[t.ID] = t
	}

	remoteIDs := make(map[string]bool, len(in.remote))
	for _, rt := range in.remote {
		remoteIDs[rt.ID] = true

		local, exists := localByID[rt.ID]
		if !exists {
			out.upserts = append(out.upserts, taskFromRemote(rt, in.listID, in.now))
			out.appliedRemote++
			continue
		}

		merged := foldRemote(local, rt, in.pending[rt.ID], in.now)
		if merged != local {
			out.upserts = append(out.upserts, merged)
			out.appliedRemote++
		}
	}

	for _, t := range in.local {
		if t.Archived || remoteIDs[t.ID] {
			continue
		}
		if _, hasPending := in.pending[t.ID]; hasPending {
			// A pending create or edit still claims this task; it is
			// not remote-confirmed gone, just not pushed yet.
			continue
		}
		if store.IsProvisionalID(t.ID) || in.confirmed[t.ID] {
			continue
		}
		out.archive = append(out.archive, t.ID)
	}

	return out
}

// foldRemote merges one remote task into its cached counterpart.
// Fields covered by the pending mutation keep the local value
// (last-local-writer-wins for the touched field, remote wins otherwise).
func foldRemote(local store.Task, rt gateway.RemoteTask, pending store.PendingMutation, now time.Time) store.Task {
	merged := local
	hasPending := pending.TaskID != ""

	// Remote-authoritative fields regardless of pending edits.
	merged.Notes = rt.Notes
	merged.Due = rt.Due
	merged.ParentID = rt.Parent
	merged.Position = rt.Position
	merged.Archived = false // the remote still has it

	if !hasPending || !pending.Covers(store.MutationTitle) {
		merged.Title = rt.Title
	}
	if !hasPending || !pending.Covers(store.MutationStatus) {
		merged.Status = rt.Status
		merged.CompletedAt = completedAtFromRemote(rt, now)
	}
	if !hasPending {
		// Fully remote-confirmed again; a previous rejection is stale.
		merged.Conflict = false
	}
	return merged
}

// taskFromRemote builds a fresh cache row for a task first seen remotely.
func taskFromRemote(rt gateway.RemoteTask, listID string, now time.Time) store.Task {
	return store.Task{
		ID:          rt.ID,
		ListID:      listID,
		ParentID:    rt.Parent,
		Title:       rt.Title,
		Notes:       rt.Notes,
		Due:         rt.Due,
		Status:      rt.Status,
		CompletedAt: completedAtFromRemote(rt, now),
		Position:    rt.Position,
		CreatedAt:   now,
	}
}

// completedAtFromRemote keeps the invariant: the timestamp is set if and
// only if the task is completed.
func completedAtFromRemote(rt gateway.RemoteTask, now time.Time) sql.NullTime {
	if rt.Status != gateway.StatusCompleted {
		return sql.NullTime{}
	}
	if !rt.CompletedAt.IsZero() {
		return sql.NullTime{Time: rt.CompletedAt, Valid: true}
	}
	return sql.NullTime{Time: now, Valid: true}
}
