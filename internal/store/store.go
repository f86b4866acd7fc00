// Package store is the durable local cache: the last-known-good mirror of
// remote state plus pending mutations not yet confirmed remote-side.
// Backed by SQLite in WAL mode. The atomicity unit is one logical intent:
// a task update and its pending mutation commit in a single transaction, so
// a crash can never leave a completed task without the mutation to push it.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS task_lists (
    id       TEXT PRIMARY KEY,
    title    TEXT NOT NULL,
    position INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS tasks (
    id           TEXT PRIMARY KEY,
    list_id      TEXT NOT NULL,
    parent_id    TEXT NOT NULL DEFAULT '',
    title        TEXT NOT NULL,
    notes        TEXT NOT NULL DEFAULT '',
    due          TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL DEFAULT 'needsAction',
    completed_at TEXT,
    position     TEXT NOT NULL DEFAULT '',
    revision     INTEGER NOT NULL DEFAULT 0,
    archived     INTEGER NOT NULL DEFAULT 0,
    conflict     INTEGER NOT NULL DEFAULT 0,
    created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_list ON tasks(list_id, archived);
CREATE TABLE IF NOT EXISTS pending_mutations (
    task_id         TEXT PRIMARY KEY,
    list_id         TEXT NOT NULL,
    kind            TEXT NOT NULL,
    title           TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL DEFAULT '',
    created_at      TEXT NOT NULL,
    retry_count     INTEGER NOT NULL DEFAULT 0,
    next_attempt_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS daily_logs (
    date             TEXT PRIMARY KEY,
    total_count      INTEGER NOT NULL DEFAULT 0,
    done_count       INTEGER NOT NULL DEFAULT 0,
    achievement_rate REAL NOT NULL DEFAULT 0
);
`

const timeLayout = time.RFC3339Nano

// Store wraps the cache database connection.
type Store struct {
	conn *sql.DB
}

// Open opens (creating if needed) the cache database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating cache dir: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// ── task lists ──────────────────────────────────────────────────────────

// PutTaskLists replaces the cached list set in one transaction.
func (s *Store) PutTaskLists(lists []TaskList) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM task_lists`); err != nil {
		return fmt.Errorf("clearing task lists: %w", err)
	}
	for _, l := range lists {
		if _, err := tx.Exec(
			`INSERT INTO task_lists (id, title, position) VALUES (?, ?, ?)`,
			l.ID, l.Title, l.Position,
		); err != nil {
			return fmt.Errorf("inserting task list: %w", err)
		}
	}
	return tx.Commit()
}

// TaskLists returns cached lists in remote order.
func (s *Store) TaskLists() ([]TaskList, error) {
	rows, err := s.conn.Query(`SELECT id, title, position FROM task_lists ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("querying task lists: %w", err)
	}
	defer rows.Close()

	var lists []TaskList
	for rows.Next() {
		var l TaskList
		if err := rows.Scan(&l.ID, &l.Title, &l.Position); err != nil {
			return nil, fmt.Errorf("scanning task list: %w", err)
		}
		lists = append(lists, l)
	}
	return lists, rows.Err()
}

// ── tasks ───────────────────────────────────────────────────────────────

const taskColumns = `id, list_id, parent_id, title, notes, due, status,
    completed_at, position, revision, archived, conflict, created_at`

func scanTask(row interface{ Scan(...any) error }) (Task, error) {
	var t Task
	var completedAt sql.NullString
	var createdAt string
	err := row.Scan(
		&t.ID, &t.ListID, &t.ParentID, &t.Title, &t.Notes, &t.Due, &t.Status,
		&completedAt, &t.Position, &t.Revision, &t.Archived, &t.Conflict, &createdAt,
	)
	if err != nil {
		return Task{}, err
	}
	if completedAt.Valid && completedAt.String != "" {
		ts, err := time.Parse(timeLayout, completedAt.String)
		if err != nil {
			return Task{}, fmt.Errorf("parsing completed_at: %w", err)
		}
		t.CompletedAt = sql.NullTime{Time: ts, Valid: true}
	}
	if t.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return Task{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return t, nil
}

// GetTask returns one task by id, or sql.ErrNoRows.
func (s *Store) GetTask(id string) (Task, error) {
	row := s.conn.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err != nil {
		return Task{}, fmt.Errorf("getting task %s: %w", id, err)
	}
	return t, nil
}

// ListTasks returns every cached task for a list, archived included.
// Corrupt rows are skipped, not fatal: the next sync cycle re-mirrors them
// from the remote snapshot.
func (s *Store) ListTasks(listID string) ([]Task, error) {
	return s.queryTasks(`SELECT `+taskColumns+` FROM tasks WHERE list_id = ?`, listID)
}

// ListActiveTasks returns the visible tasks for a list: not archived,
// open tasks first, in remote position order.
func (s *Store) ListActiveTasks(listID string) ([]Task, error) {
	return s.queryTasks(
		`SELECT `+taskColumns+` FROM tasks
		 WHERE list_id = ? AND archived = 0
		 ORDER BY (status = 'completed'), position, created_at`,
		listID,
	)
}

func (s *Store) queryTasks(query string, args ...any) ([]Task, error) {
	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer rows.Close()

	var result []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			// Corrupt record: drop it from the view and let the next
			// merge re-insert the remote-confirmed state.
			continue
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// PutTask upserts a single task row.
func (s *Store) PutTask(t Task) error {
	return execPutTask(s.conn, t)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func execPutTask(e execer, t Task) error {
	var completedAt any
	if t.CompletedAt.Valid {
		completedAt = t.CompletedAt.Time.Format(timeLayout)
	}
	_, err := e.Exec(
		`INSERT INTO tasks (`+taskColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     list_id = excluded.list_id,
		     parent_id = excluded.parent_id,
		     title = excluded.title,
		     notes = excluded.notes,
		     due = excluded.due,
		     status = excluded.status,
		     completed_at = excluded.completed_at,
		     position = excluded.position,
		     revision = excluded.revision,
		     archived = excluded.archived,
		     conflict = excluded.conflict`,
		t.ID, t.ListID, t.ParentID, t.Title, t.Notes, t.Due, t.Status,
		completedAt, t.Position, t.Revision, t.Archived, t.Conflict,
		t.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("upserting task %s: %w", t.ID, err)
	}
	return nil
}

// PutTaskWithMutation writes a task and its pending mutation as one unit.
// A nil mutation clears any outstanding mutation for the task instead.
func (s *Store) PutTaskWithMutation(t Task, m *PendingMutation) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := execPutTask(tx, t); err != nil {
		return err
	}
	if m == nil {
		if _, err := tx.Exec(`DELETE FROM pending_mutations WHERE task_id = ?`, t.ID); err != nil {
			return fmt.Errorf("clearing mutation: %w", err)
		}
	} else if err := execPutMutation(tx, *m); err != nil {
		return err
	}
	return tx.Commit()
}

// ArchiveTasks hides the given tasks from the active view, retaining them
// for audit. Never deletes.
func (s *Store) ArchiveTasks(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.Exec(`UPDATE tasks SET archived = 1 WHERE id = ?`, id); err != nil {
			return fmt.Errorf("archiving task %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// RewriteTaskID atomically replaces a provisional id with the remote id
// across the task row and any pending mutation that references it.
func (s *Store) RewriteTaskID(oldID, newID string) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE tasks SET id = ? WHERE id = ?`, newID, oldID); err != nil {
		return fmt.Errorf("rewriting task id: %w", err)
	}
	if _, err := tx.Exec(`UPDATE pending_mutations SET task_id = ? WHERE task_id = ?`, newID, oldID); err != nil {
		return fmt.Errorf("rewriting mutation id: %w", err)
	}
	if _, err := tx.Exec(`UPDATE tasks SET parent_id = ? WHERE parent_id = ?`, newID, oldID); err != nil {
		return fmt.Errorf("rewriting child parent ids: %w", err)
	}
	return tx.Commit()
}

// MarkConflict flags a task as sync-conflicted and drops its pending
// mutation in the same transaction, so the failure is surfaced and never
// silently retried.
func (s *Store) MarkConflict(taskID string) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE tasks SET conflict = 1 WHERE id = ?`, taskID); err != nil {
		return fmt.Errorf("flagging conflict: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM pending_mutations WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("dropping mutation: %w", err)
	}
	return tx.Commit()
}

// ── pending mutations ───────────────────────────────────────────────────

func execPutMutation(e execer, m PendingMutation) error {
	_, err := e.Exec(
		`INSERT INTO pending_mutations
		     (task_id, list_id, kind, title, status, created_at, retry_count, next_attempt_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(task_id) DO UPDATE SET
		     list_id = excluded.list_id,
		     kind = excluded.kind,
		     title = excluded.title,
		     status = excluded.status,
		     created_at = excluded.created_at,
		     retry_count = excluded.retry_count,
		     next_attempt_at = excluded.next_attempt_at`,
		m.TaskID, m.ListID, string(m.Kind), m.Title, m.Status,
		m.CreatedAt.Format(timeLayout), m.RetryCount, m.NextAttemptAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("upserting mutation for %s: %w", m.TaskID, err)
	}
	return nil
}

// PutPendingMutation upserts a mutation; an existing one for the same task
// is superseded, never queued behind.
func (s *Store) PutPendingMutation(m PendingMutation) error {
	return execPutMutation(s.conn, m)
}

// GetPendingMutation returns the outstanding mutation for a task, if any.
func (s *Store) GetPendingMutation(taskID string) (PendingMutation, bool, error) {
	row := s.conn.QueryRow(
		`SELECT task_id, list_id, kind, title, status, created_at, retry_count, next_attempt_at
		 FROM pending_mutations WHERE task_id = ?`, taskID)
	m, err := scanMutation(row)
	if err == sql.ErrNoRows {
		return PendingMutation{}, false, nil
	}
	if err != nil {
		return PendingMutation{}, false, fmt.Errorf("getting mutation: %w", err)
	}
	return m, true, nil
}

// ListPendingMutations returns every outstanding mutation, oldest first.
func (s *Store) ListPendingMutations() ([]PendingMutation, error) {
	rows, err := s.conn.Query(
		`SELECT task_id, list_id, kind, title, status, created_at, retry_count, next_attempt_at
		 FROM pending_mutations ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("querying mutations: %w", err)
	}
	defer rows.Close()

	var result []PendingMutation
	for rows.Next() {
		m, err := scanMutation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning mutation: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func scanMutation(row interface{ Scan(...any) error }) (PendingMutation, error) {
	var m PendingMutation
	var kind, createdAt, nextAttempt string
	err := row.Scan(&m.TaskID, &m.ListID, &kind, &m.Title, &m.Status, &createdAt, &m.RetryCount, &nextAttempt)
	if err != nil {
		return PendingMutation{}, err
	}
	m.Kind = MutationKind(kind)
	if m.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return PendingMutation{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if m.NextAttemptAt, err = time.Parse(timeLayout, nextAttempt); err != nil {
		return PendingMutation{}, fmt.Errorf("parsing next_attempt_at: %w", err)
	}
	return m, nil
}

// ClearPendingMutation removes the outstanding mutation for a task.
func (s *Store) ClearPendingMutation(taskID string) error {
	if _, err := s.conn.Exec(`DELETE FROM pending_mutations WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("clearing mutation for %s: %w", taskID, err)
	}
	return nil
}

// UpdateMutationRetry persists the retry count and next attempt time after
// a transient push failure.
func (s *Store) UpdateMutationRetry(taskID string, retryCount int, nextAttempt time.Time) error {
	_, err := s.conn.Exec(
		`UPDATE pending_mutations SET retry_count = ?, next_attempt_at = ? WHERE task_id = ?`,
		retryCount, nextAttempt.Format(timeLayout), taskID,
	)
	if err != nil {
		return fmt.Errorf("updating retry for %s: %w", taskID, err)
	}
	return nil
}

// ── daily logs ──────────────────────────────────────────────────────────

// AppendDailyLog inserts one day's frozen stats. Rows are append-only:
// an existing row for the date is left untouched and false is returned.
func (s *Store) AppendDailyLog(log DailyLog) (bool, error) {
	res, err := s.conn.Exec(
		`INSERT INTO daily_logs (date, total_count, done_count, achievement_rate)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(date) DO NOTHING`,
		log.Date, log.TotalCount, log.DoneCount, log.AchievementRate,
	)
	if err != nil {
		return false, fmt.Errorf("appending daily log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// HasDailyLog reports whether a row exists for the given date.
func (s *Store) HasDailyLog(date string) (bool, error) {
	var n int
	err := s.conn.QueryRow(`SELECT COUNT(*) FROM daily_logs WHERE date = ?`, date).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking daily log: %w", err)
	}
	return n > 0, nil
}

// DailyLogsInRange returns logs for [from, to] inclusive, newest first.
// Dates are "YYYY-MM-DD".
func (s *Store) DailyLogsInRange(from, to string) ([]DailyLog, error) {
	rows, err := s.conn.Query(
		`SELECT date, total_count, done_count, achievement_rate
		 FROM daily_logs WHERE date >= ? AND date <= ? ORDER BY date DESC`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("querying daily logs: %w", err)
	}
	defer rows.Close()

	var result []DailyLog
	for rows.Next() {
		var l DailyLog
		if err := rows.Scan(&l.Date, &l.TotalCount, &l.DoneCount, &l.AchievementRate); err != nil {
			return nil, fmt.Errorf("scanning daily log: %w", err)
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

// TodayStats returns (total, done) for the day containing now, local time:
// open unarchived tasks plus tasks completed within that day. Completions
// outside [dayStart, dayStart+24h) belong to another day's count.
func (s *Store) TodayStats(listID string, now time.Time) (total, done int, err error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	tasks, err := s.ListTasks(listID)
	if err != nil {
		return 0, 0, err
	}
	for _, t := range tasks {
		switch {
		case !t.Completed() && !t.Archived:
			total++
		case t.Completed() && t.CompletedAt.Valid &&
			!t.CompletedAt.Time.Before(dayStart) && t.CompletedAt.Time.Before(dayEnd):
			total++
			done++
		}
	}
	return total, done, nil
}
