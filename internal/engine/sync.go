package engine

import (
	"context"
	"time"

	"slidetasks/internal/bus"
	"slidetasks/internal/gateway"
	"slidetasks/internal/store"
)

// cycleTimeout bounds one whole sync cycle so the engine can never hang in
// the syncing state on gateway latency.
const cycleTimeout = 30 * time.Second

// pushOutcome records what happened to one pushed mutation.
type pushOutcome struct {
	mut    store.PendingMutation
	realID string // set for confirmed creates
	err    error
}

// RunSyncCycle performs one fetch-push-merge round trip. It is safe to call
// concurrently with local intents: network I/O runs outside the state lock
// and the results are merged back atomically. The engine always lands in
// idle, offline, or reauth-required.
func (e *Engine) RunSyncCycle(ctx context.Context) (MergeReport, error) {
	if e.gw == nil {
		return MergeReport{State: StateOffline}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, cycleTimeout)
	defer cancel()

	e.mu.Lock()
	e.setStateLocked(StateSyncing)
	listID := e.activeList
	e.mu.Unlock()

	// Fetch first: in reauth-required this doubles as the connectivity and
	// credential probe, and a failed fetch means pushes stay paused.
	lists, listsErr := e.gw.ListLists(ctx)
	snap, err := e.gw.FetchSnapshot(ctx, listID)
	if err != nil {
		return e.failCycle(err)
	}

	outcomes := e.pushPending(ctx)

	return e.mergeBack(listID, snap, lists, listsErr, outcomes)
}

// failCycle transitions out of syncing after a failed fetch and reports it.
func (e *Engine) failCycle(err error) (MergeReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := StateOffline
	if gateway.IsAuth(err) {
		next = StateReauthRequired
	}
	e.setStateLocked(next)
	e.log.Warn("sync cycle failed", "state", string(next), "err", err)

	report := MergeReport{State: next}
	e.bus.Publish(bus.TopicSyncReport, report)
	return report, err
}

// pushPending pushes every due mutation, oldest first. An auth failure
// aborts the remaining pushes; the engine pauses until credentials recover.
func (e *Engine) pushPending(ctx context.Context) []pushOutcome {
	muts, err := e.st.ListPendingMutations()
	if err != nil {
		e.log.Error("listing pending mutations", "err", err)
		return nil
	}

	now := e.now()
	var outcomes []pushOutcome
	for _, m := range muts {
		if m.NextAttemptAt.After(now) {
			continue // backing off
		}

		out := pushOutcome{mut: m}
		switch m.Kind {
		case store.MutationCreate:
			out.realID, out.err = e.pushCreate(ctx, m)
		case store.MutationStatus:
			out.err = e.gw.PushStatus(ctx, m.ListID, m.TaskID, m.Status)
		case store.MutationTitle:
			out.err = e.gw.PushTitle(ctx, m.ListID, m.TaskID, m.Title)
		}
		outcomes = append(outcomes, out)

		if gateway.IsAuth(out.err) {
			break
		}
	}
	return outcomes
}

// pushCreate pushes a locally created task and returns its remote id.
func (e *Engine) pushCreate(ctx context.Context, m store.PendingMutation) (string, error) {
	t, err := e.st.GetTask(m.TaskID)
	if err != nil {
		return "", err
	}
	realID, err := e.gw.PushCreate(ctx, m.ListID, gateway.RemoteTask{
		Title:  m.Title,
		Notes:  t.Notes,
		Due:    t.Due,
		Parent: t.ParentID,
		Status: m.Status,
	})
	if err != nil {
		return "", err
	}
	// A task created already-completed (toggled while offline) needs the
	// status pushed separately; the insert API ignores completion.
	if m.Status == store.StatusCompleted {
		if err := e.gw.PushStatus(ctx, m.ListID, realID, m.Status); err != nil {
			e.log.Warn("status push after create failed; next cycle reconciles", "task", realID, "err", err)
		}
	}
	return realID, nil
}

// mergeBack folds push results and the remote snapshot into the cache and
// the in-memory view in one serialized step, then publishes the report.
func (e *Engine) mergeBack(listID string, snap gateway.Snapshot, lists []gateway.TaskList, listsErr error, outcomes []pushOutcome) (MergeReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	report := MergeReport{}
	authFailed := false
	confirmed := make(map[string]bool)

	for _, out := range outcomes {
		switch {
		case out.err == nil:
			e.applyConfirmLocked(out)
			report.ConfirmedLocal++
			// The snapshot was fetched before this push landed, so its
			// absence there must not read as a remote deletion.
			if out.realID != "" {
				confirmed[out.realID] = true
			} else {
				confirmed[out.mut.TaskID] = true
			}
		case gateway.IsAuth(out.err):
			authFailed = true
			report.FailedLocal++
		case gateway.IsPermanent(out.err):
			e.rejectMutationLocked(out.mut.TaskID, out.err.Error())
			report.FailedLocal++
		default:
			e.retryMutationLocked(out.mut)
			report.FailedLocal++
		}
	}

	if listsErr == nil && len(lists) > 0 {
		storeLists := make([]store.TaskList, len(lists))
		for i, l := range lists {
			storeLists[i] = store.TaskList{ID: l.ID, Title: l.Title, Position: l.Position}
		}
		if err := e.st.PutTaskLists(storeLists); err != nil {
			e.log.Error("caching task lists", "err", err)
		} else {
			e.lists = storeLists
		}
	}

	local, err := e.st.ListTasks(listID)
	if err != nil {
		e.setStateLocked(StateOffline)
		return report, err
	}
	pending := make(map[string]store.PendingMutation)
	if muts, err := e.st.ListPendingMutations(); err == nil {
		for _, m := range muts {
			pending[m.TaskID] = m
		}
	}

	res := mergeSnapshot(mergeInput{
		listID:    listID,
		local:     local,
		pending:   pending,
		remote:    snap.Tasks,
		confirmed: confirmed,
		now:       e.now(),
	})
	for _, t := range res.upserts {
		if err := e.st.PutTask(t); err != nil {
			e.log.Error("persisting merged task", "task", t.ID, "err", err)
		}
	}
	if err := e.st.ArchiveTasks(res.archive); err != nil {
		e.log.Error("archiving tasks", "err", err)
	}
	report.AppliedRemote = res.appliedRemote
	report.Archived = len(res.archive)

	if authFailed {
		e.setStateLocked(StateReauthRequired)
	} else {
		e.setStateLocked(StateIdle)
	}
	report.State = e.state

	if err := e.reloadViewLocked(); err != nil {
		return report, err
	}

	e.log.Info("sync cycle complete",
		"applied_remote", report.AppliedRemote,
		"confirmed_local", report.ConfirmedLocal,
		"failed_local", report.FailedLocal,
		"archived", report.Archived,
	)
	e.bus.Publish(bus.TopicSyncReport, report)
	return report, nil
}

// applyConfirmLocked resolves one acknowledged push. For a confirmed create
// the provisional id is rewritten to the remote id across the cache, any
// newer pending mutation, and the live undo window, atomically with respect
// to readers of the view. Caller holds e.mu.
func (e *Engine) applyConfirmLocked(out pushOutcome) {
	taskID := out.mut.TaskID

	if out.realID != "" {
		if err := e.st.RewriteTaskID(taskID, out.realID); err != nil {
			e.log.Error("rewriting provisional id", "task", taskID, "err", err)
			return
		}
		if w, ok := e.undo[taskID]; ok {
			delete(e.undo, taskID)
			w.prior.ID = out.realID
			if w.priorMut != nil {
				w.priorMut.TaskID = out.realID
			}
			e.undo[out.realID] = w
		}
		taskID = out.realID
	}

	current, ok, err := e.st.GetPendingMutation(taskID)
	if err != nil || !ok {
		return
	}
	if current.CreatedAt.Equal(out.mut.CreatedAt) {
		// Nothing superseded the pushed mutation; it is fully confirmed.
		if err := e.st.ClearPendingMutation(taskID); err != nil {
			e.log.Error("clearing confirmed mutation", "task", taskID, "err", err)
		}
		return
	}

	// A newer intent superseded the pushed mutation mid-flight. The task
	// now exists remotely, so a still-pending create must become a field
	// mutation or it would duplicate the task on the next push.
	if current.Kind == store.MutationCreate {
		switch {
		case current.Status != out.mut.Status:
			current.Kind = store.MutationStatus
		default:
			current.Kind = store.MutationTitle
		}
		if err := e.st.PutPendingMutation(current); err != nil {
			e.log.Error("demoting superseded create", "task", taskID, "err", err)
		}
	}
}

// retryMutationLocked schedules the next attempt with capped exponential
// backoff, escalating to a sync conflict past the retry cap. Caller holds
// e.mu.
func (e *Engine) retryMutationLocked(m store.PendingMutation) {
	retries := m.RetryCount + 1
	if retries > e.settings.MaxRetries {
		e.rejectMutationLocked(m.TaskID, "retry limit exceeded")
		return
	}

	delay := e.settings.BackoffBase() << (retries - 1)
	if limit := e.settings.BackoffCap(); delay > limit || delay <= 0 {
		delay = limit
	}
	next := e.now().Add(delay)

	if err := e.st.UpdateMutationRetry(m.TaskID, retries, next); err != nil {
		e.log.Error("recording retry", "task", m.TaskID, "err", err)
		return
	}
	e.log.Debug("push deferred", "task", m.TaskID, "retries", retries, "next_attempt", next)
}

// rejectMutationLocked drops a permanently failed mutation and flags its
// task so the failure is user-visible, never silently discarded.
// Caller holds e.mu.
func (e *Engine) rejectMutationLocked(taskID, reason string) {
	if err := e.st.MarkConflict(taskID); err != nil {
		e.log.Error("flagging conflict", "task", taskID, "err", err)
		return
	}
	e.cancelUndoLocked(taskID)
	e.log.Warn("mutation rejected", "task", taskID, "reason", reason)
	e.bus.Publish(bus.TopicTaskConflict, bus.TaskConflictEvent{TaskID: taskID, Reason: reason})
}

// Run drives the engine: an immediate first cycle, then one per poll
// interval, with the daily rollover checked on every tick. Returns when ctx
// is cancelled.
func (e *Engine) Run(ctx context.Context) {
	if _, err := e.RunSyncCycle(ctx); err != nil {
		e.log.Warn("initial sync failed", "err", err)
	}

	ticker := time.NewTicker(e.settings.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.RolloverIfNewDay(e.now()); err != nil {
				e.log.Error("rollover failed", "err", err)
			}
			if _, err := e.RunSyncCycle(ctx); err != nil {
				e.log.Warn("sync cycle failed", "err", err)
			}
		}
	}
}
