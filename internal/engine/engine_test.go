package engine

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"slidetasks/internal/bus"
	"slidetasks/internal/config"
	"slidetasks/internal/gateway"
	"slidetasks/internal/store"
	"slidetasks/internal/testutil"
)

func remoteTask(id, title string) gateway.RemoteTask {
	return gateway.RemoteTask{ID: id, Title: title, Status: gateway.StatusOpen}
}

func completedRemoteTask(id, title string, at time.Time) gateway.RemoteTask {
	return gateway.RemoteTask{ID: id, Title: title, Status: gateway.StatusCompleted, CompletedAt: at}
}

// testEngine wires an engine over a temp-file store and a fake gateway,
// with a controllable clock.
type testEngine struct {
	*Engine
	gw    *testutil.FakeGateway
	st    *store.Store
	clock time.Time
}

func newTestEngine(t *testing.T, settings config.Settings) *testEngine {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	gw := testutil.NewFakeGateway()
	eng, err := New(Options{
		Store:    st,
		Gateway:  gw,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Settings: settings,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	te := &testEngine{Engine: eng, gw: gw, st: st, clock: time.Now()}
	te.now = func() time.Time { return te.clock }
	return te
}

func (te *testEngine) advance(d time.Duration) { te.clock = te.clock.Add(d) }

func defaultSettings() config.Settings { return config.DefaultSettings() }

func findTask(v View, title string) (TaskView, bool) {
	for _, t := range v.Tasks {
		if t.Title == title {
			return t, true
		}
	}
	return TaskView{}, false
}

func TestAddTaskAppearsImmediately(t *testing.T) {
	te := newTestEngine(t, defaultSettings())

	view, err := te.ApplyLocalIntent(Intent{Kind: IntentAddTask, Title: "write report"})
	if err != nil {
		t.Fatalf("ApplyLocalIntent: %v", err)
	}

	task, ok := findTask(view, "write report")
	if !ok {
		t.Fatal("added task not in view")
	}
	if !task.Pending {
		t.Error("fresh local task not marked pending")
	}
	if !store.IsProvisionalID(task.ID) {
		t.Errorf("task id %q not provisional", task.ID)
	}
	if te.gw.CreateCalls != 0 {
		t.Error("local intent touched the network")
	}
}

func TestSyncConfirmsCreateAndRewritesID(t *testing.T) {
	te := newTestEngine(t, defaultSettings())

	te.ApplyLocalIntent(Intent{Kind: IntentAddTask, Title: "write report"})

	report, err := te.RunSyncCycle(context.Background())
	if err != nil {
		t.Fatalf("RunSyncCycle: %v", err)
	}
	if report.ConfirmedLocal != 1 {
		t.Errorf("ConfirmedLocal = %d, want 1", report.ConfirmedLocal)
	}
	if report.State != StateIdle {
		t.Errorf("state = %s, want idle", report.State)
	}

	task, ok := findTask(te.Snapshot(), "write report")
	if !ok {
		t.Fatal("task vanished after confirmation")
	}
	if store.IsProvisionalID(task.ID) {
		t.Errorf("id %q still provisional after confirmation", task.ID)
	}
	if task.Pending {
		t.Error("confirmed task still marked pending")
	}
	if _, ok := te.gw.Task(testutil.DefaultListID, task.ID); !ok {
		t.Error("task not created remote-side")
	}

	muts, _ := te.st.ListPendingMutations()
	if len(muts) != 0 {
		t.Errorf("mutations left after confirmation: %+v", muts)
	}
}

func TestConfirmedCreateNotArchivedSameCycle(t *testing.T) {
	te := newTestEngine(t, defaultSettings())

	te.ApplyLocalIntent(Intent{Kind: IntentAddTask, Title: "Buy milk"})

	// The cycle fetches the snapshot before pushing, so the snapshot
	// predates the create. Its absence there must not archive the task.
	report, err := te.RunSyncCycle(context.Background())
	if err != nil {
		t.Fatalf("RunSyncCycle: %v", err)
	}
	if report.Archived != 0 {
		t.Errorf("Archived = %d, want 0", report.Archived)
	}

	task, ok := findTask(te.Snapshot(), "Buy milk")
	if !ok {
		t.Fatal("confirmed task missing from view")
	}
	got, err := te.st.GetTask(task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Archived {
		t.Error("confirmed task archived in cache")
	}
}

func TestNoSpuriousReversionAfterConfirm(t *testing.T) {
	te := newTestEngine(t, defaultSettings())

	te.ApplyLocalIntent(Intent{Kind: IntentAddTask, Title: "keep me"})

	// Confirm, then run two more cycles: the task must hold steady, not
	// flicker back to an older remote state.
	for i := 0; i < 3; i++ {
		if _, err := te.RunSyncCycle(context.Background()); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
		if _, ok := findTask(te.Snapshot(), "keep me"); !ok {
			t.Fatalf("task reverted on cycle %d", i)
		}
	}
	if te.gw.CreateCalls != 1 {
		t.Errorf("CreateCalls = %d, want exactly 1", te.gw.CreateCalls)
	}
}

func TestToggleCompletePushes(t *testing.T) {
	te := newTestEngine(t, defaultSettings())
	te.gw.AddTask(testutil.DefaultListID, remoteTask("r1", "buy milk"))
	te.RunSyncCycle(context.Background())

	view, err := te.ApplyLocalIntent(Intent{Kind: IntentToggleComplete, TaskID: "r1"})
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	task, _ := findTask(view, "buy milk")
	if !task.Completed || !task.Pending {
		t.Errorf("optimistic toggle not reflected: %+v", task)
	}

	if _, err := te.RunSyncCycle(context.Background()); err != nil {
		t.Fatalf("RunSyncCycle: %v", err)
	}
	remote, _ := te.gw.Task(testutil.DefaultListID, "r1")
	if remote.Status != store.StatusCompleted {
		t.Errorf("remote status = %q, want completed", remote.Status)
	}
}

func TestRemoteEditFoldsIn(t *testing.T) {
	te := newTestEngine(t, defaultSettings())
	te.gw.AddTask(testutil.DefaultListID, remoteTask("r1", "old"))
	te.RunSyncCycle(context.Background())

	te.gw.SetTitle(testutil.DefaultListID, "r1", "renamed elsewhere")
	report, err := te.RunSyncCycle(context.Background())
	if err != nil {
		t.Fatalf("RunSyncCycle: %v", err)
	}
	if report.AppliedRemote != 1 {
		t.Errorf("AppliedRemote = %d, want 1", report.AppliedRemote)
	}
	if _, ok := findTask(te.Snapshot(), "renamed elsewhere"); !ok {
		t.Error("remote rename not applied")
	}
}

func TestRemoteDeletionArchives(t *testing.T) {
	te := newTestEngine(t, defaultSettings())
	te.gw.AddTask(testutil.DefaultListID, remoteTask("r1", "doomed"))
	te.RunSyncCycle(context.Background())

	te.gw.RemoveTask(testutil.DefaultListID, "r1")
	report, err := te.RunSyncCycle(context.Background())
	if err != nil {
		t.Fatalf("RunSyncCycle: %v", err)
	}
	if report.Archived != 1 {
		t.Errorf("Archived = %d, want 1", report.Archived)
	}

	if _, ok := findTask(te.Snapshot(), "doomed"); ok {
		t.Error("archived task still visible")
	}
	got, err := te.st.GetTask("r1")
	if err != nil {
		t.Fatalf("archived task deleted from cache: %v", err)
	}
	if !got.Archived {
		t.Error("archived flag not set")
	}
}

func TestPermanentRejectionFlagsConflict(t *testing.T) {
	te := newTestEngine(t, defaultSettings())

	te.ApplyLocalIntent(Intent{Kind: IntentAddTask, Title: "rejected"})
	te.gw.PushCreateErr = testutil.PermanentErr("create")

	report, err := te.RunSyncCycle(context.Background())
	if err != nil {
		t.Fatalf("RunSyncCycle: %v", err)
	}
	if report.FailedLocal != 1 {
		t.Errorf("FailedLocal = %d, want 1", report.FailedLocal)
	}

	task, ok := findTask(te.Snapshot(), "rejected")
	if !ok {
		t.Fatal("rejected task dropped from view")
	}
	if !task.Conflict {
		t.Error("rejection not surfaced as conflict")
	}
	muts, _ := te.st.ListPendingMutations()
	if len(muts) != 0 {
		t.Error("rejected mutation still queued")
	}
}

func TestConflictClearedByFreshIntent(t *testing.T) {
	te := newTestEngine(t, defaultSettings())

	te.ApplyLocalIntent(Intent{Kind: IntentAddTask, Title: "retry me"})
	te.gw.PushCreateErr = testutil.PermanentErr("create")
	te.RunSyncCycle(context.Background())

	task, _ := findTask(te.Snapshot(), "retry me")
	if !task.Conflict {
		t.Fatal("setup: conflict not flagged")
	}

	te.gw.PushCreateErr = nil
	view, err := te.ApplyLocalIntent(Intent{Kind: IntentEditTitle, TaskID: task.ID, Title: "retry me again"})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	edited, _ := findTask(view, "retry me again")
	if edited.Conflict {
		t.Error("fresh intent did not clear the conflict flag")
	}
	if !edited.Pending {
		t.Error("fresh intent queued no mutation")
	}

	te.RunSyncCycle(context.Background())
	confirmed, _ := findTask(te.Snapshot(), "retry me again")
	if confirmed.Pending || confirmed.Conflict {
		t.Errorf("re-push did not confirm: %+v", confirmed)
	}
}

func TestTransientFailureBacksOff(t *testing.T) {
	te := newTestEngine(t, defaultSettings())

	te.ApplyLocalIntent(Intent{Kind: IntentAddTask, Title: "flaky"})
	te.gw.PushCreateErr = testutil.TransientErr("create")

	te.RunSyncCycle(context.Background())
	if te.gw.CreateCalls != 1 {
		t.Fatalf("CreateCalls = %d, want 1", te.gw.CreateCalls)
	}
	muts, _ := te.st.ListPendingMutations()
	if len(muts) != 1 || muts[0].RetryCount != 1 {
		t.Fatalf("retry not recorded: %+v", muts)
	}
	if !muts[0].NextAttemptAt.After(te.clock) {
		t.Error("next attempt not in the future")
	}

	// Before the backoff elapses the mutation is not retried.
	te.RunSyncCycle(context.Background())
	if te.gw.CreateCalls != 1 {
		t.Errorf("CreateCalls = %d during backoff, want 1", te.gw.CreateCalls)
	}

	// After it elapses the push goes out again and succeeds.
	te.gw.PushCreateErr = nil
	te.advance(te.settings.BackoffBase() + time.Second)
	report, _ := te.RunSyncCycle(context.Background())
	if report.ConfirmedLocal != 1 {
		t.Errorf("ConfirmedLocal = %d after recovery, want 1", report.ConfirmedLocal)
	}
}

func TestRetryCapEscalatesToConflict(t *testing.T) {
	settings := defaultSettings()
	settings.MaxRetries = 2
	te := newTestEngine(t, settings)

	te.ApplyLocalIntent(Intent{Kind: IntentAddTask, Title: "doomed"})
	te.gw.PushCreateErr = testutil.TransientErr("create")

	for i := 0; i < 3; i++ {
		te.RunSyncCycle(context.Background())
		te.advance(settings.BackoffCap() + time.Second)
	}

	task, ok := findTask(te.Snapshot(), "doomed")
	if !ok {
		t.Fatal("task dropped instead of conflicted")
	}
	if !task.Conflict {
		t.Error("retry cap exhaustion not escalated to conflict")
	}
	muts, _ := te.st.ListPendingMutations()
	if len(muts) != 0 {
		t.Error("exhausted mutation still queued")
	}
}

func TestAuthFailureRequiresReauth(t *testing.T) {
	te := newTestEngine(t, defaultSettings())
	te.gw.FetchSnapshotErr = testutil.AuthErr("snapshot")

	if _, err := te.RunSyncCycle(context.Background()); err == nil {
		t.Fatal("auth failure not reported")
	}
	if te.State() != StateReauthRequired {
		t.Errorf("state = %s, want reauth-required", te.State())
	}

	// Local edits still work while reauth is pending.
	if _, err := te.ApplyLocalIntent(Intent{Kind: IntentAddTask, Title: "queued offline"}); err != nil {
		t.Fatalf("local intent blocked during reauth: %v", err)
	}

	// Credentials restored: the next cycle pushes the backlog and recovers.
	te.gw.FetchSnapshotErr = nil
	report, err := te.RunSyncCycle(context.Background())
	if err != nil {
		t.Fatalf("recovery cycle: %v", err)
	}
	if report.State != StateIdle {
		t.Errorf("state = %s after recovery, want idle", report.State)
	}
	if report.ConfirmedLocal != 1 {
		t.Errorf("queued mutation not pushed after recovery")
	}
}

func TestTransientFetchGoesOffline(t *testing.T) {
	te := newTestEngine(t, defaultSettings())
	te.gw.FetchSnapshotErr = testutil.TransientErr("snapshot")

	if _, err := te.RunSyncCycle(context.Background()); err == nil {
		t.Fatal("fetch failure not reported")
	}
	if te.State() != StateOffline {
		t.Errorf("state = %s, want offline", te.State())
	}
}

func TestAuthPushPausesRemainingMutations(t *testing.T) {
	te := newTestEngine(t, defaultSettings())

	te.ApplyLocalIntent(Intent{Kind: IntentAddTask, Title: "first"})
	te.advance(time.Second)
	te.ApplyLocalIntent(Intent{Kind: IntentAddTask, Title: "second"})
	te.gw.PushCreateErr = testutil.AuthErr("create")

	te.RunSyncCycle(context.Background())
	if te.gw.CreateCalls != 1 {
		t.Errorf("CreateCalls = %d, want 1: auth failure must stop the batch", te.gw.CreateCalls)
	}
	if te.State() != StateReauthRequired {
		t.Errorf("state = %s, want reauth-required", te.State())
	}
	muts, _ := te.st.ListPendingMutations()
	if len(muts) != 2 {
		t.Errorf("mutations dropped on auth failure: %d left, want 2", len(muts))
	}
}

func TestSupersededCreateDemotedAfterConfirm(t *testing.T) {
	te := newTestEngine(t, defaultSettings())
	ctx := context.Background()

	view, _ := te.ApplyLocalIntent(Intent{Kind: IntentAddTask, Title: "racy"})
	task, _ := findTask(view, "racy")

	// Simulate the push being in flight while the user toggles the task:
	// push outside the lock, supersede, then merge the push result back.
	te.mu.Lock()
	te.setStateLocked(StateSyncing)
	te.mu.Unlock()
	outcomes := te.pushPending(ctx)

	te.advance(time.Second)
	te.ApplyLocalIntent(Intent{Kind: IntentToggleComplete, TaskID: task.ID})

	snap, _ := te.gw.FetchSnapshot(ctx, testutil.DefaultListID)
	lists, _ := te.gw.ListLists(ctx)
	if _, err := te.mergeBack(testutil.DefaultListID, snap, lists, nil, outcomes); err != nil {
		t.Fatalf("mergeBack: %v", err)
	}

	muts, _ := te.st.ListPendingMutations()
	if len(muts) != 1 {
		t.Fatalf("mutations = %+v, want the superseding one", muts)
	}
	if muts[0].Kind == store.MutationCreate {
		t.Error("superseded create not demoted; next push would duplicate the task")
	}
	if store.IsProvisionalID(muts[0].TaskID) {
		t.Error("superseding mutation not rewritten to the remote id")
	}

	// The follow-up cycle pushes the demoted mutation, not a second create.
	te.RunSyncCycle(ctx)
	if te.gw.CreateCalls != 1 {
		t.Errorf("CreateCalls = %d, want 1", te.gw.CreateCalls)
	}
	remote, _ := te.gw.Task(testutil.DefaultListID, muts[0].TaskID)
	if remote.Status != store.StatusCompleted {
		t.Errorf("remote status = %q after demoted push, want completed", remote.Status)
	}
}

func TestSwitchActiveList(t *testing.T) {
	te := newTestEngine(t, defaultSettings())
	te.gw.AddList("work", "Work")
	te.gw.AddTask("work", remoteTask("w1", "work task"))
	te.gw.AddTask(testutil.DefaultListID, remoteTask("r1", "home task"))
	te.RunSyncCycle(context.Background())

	view, err := te.ApplyLocalIntent(Intent{Kind: IntentSwitchList, ListID: "work"})
	if err != nil {
		t.Fatalf("switch: %v", err)
	}
	if view.ActiveListID != "work" {
		t.Errorf("active list = %q, want work", view.ActiveListID)
	}

	te.RunSyncCycle(context.Background())
	if _, ok := findTask(te.Snapshot(), "work task"); !ok {
		t.Error("switched list not mirrored")
	}
	if _, ok := findTask(te.Snapshot(), "home task"); ok {
		t.Error("other list's task in view")
	}
}

func TestStateChangesPublished(t *testing.T) {
	te := newTestEngine(t, defaultSettings())
	sub := te.Bus().Subscribe("sync.state")
	defer te.Bus().Unsubscribe(sub)

	te.RunSyncCycle(context.Background())

	var transitions []bus.StateChangedEvent
	for len(sub.Ch()) > 0 {
		ev := <-sub.Ch()
		if p, ok := ev.Payload.(bus.StateChangedEvent); ok {
			transitions = append(transitions, p)
		}
	}
	// offline -> syncing -> idle is two transitions.
	if len(transitions) != 2 {
		t.Fatalf("got %d state transitions, want 2", len(transitions))
	}
	if transitions[0].New != string(StateSyncing) || transitions[1].New != string(StateIdle) {
		t.Errorf("transitions = %+v", transitions)
	}
}
