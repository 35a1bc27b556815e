package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"taskping/internal/task"
	"taskping/internal/taskerr"
	"taskping/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- tasks ----

const taskColumns = `id, owner, title, description, category_id, due_date, due_time,
	priority, recurring_enabled, recurring_days, base_template_id, reminder,
	created_at, updated_at`

func (s *sqliteStore) PutTask(ctx context.Context, t task.Task) error {
	rem, err := marshalReminder(t.Reminder)
	if err != nil {
		return err
	}
	enabled := 0
	days := ""
	baseID := ""
	if t.Recurring != nil {
		if t.Recurring.Enabled {
			enabled = 1
		}
		days = joinDays(t.Recurring.Days)
		baseID = t.Recurring.BaseTemplateID
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks(`+taskColumns+`)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   owner=excluded.owner, title=excluded.title, description=excluded.description,
		   category_id=excluded.category_id, due_date=excluded.due_date, due_time=excluded.due_time,
		   priority=excluded.priority, recurring_enabled=excluded.recurring_enabled,
		   recurring_days=excluded.recurring_days, base_template_id=excluded.base_template_id,
		   reminder=excluded.reminder, updated_at=excluded.updated_at`,
		t.ID, t.Owner, t.Title, nullStr(t.Description), nullStr(t.CategoryID),
		t.DueDate, nullStr(t.DueTime), string(t.Priority), enabled, nullStr(days),
		nullStr(baseID), rem,
		t.CreatedAt.Format(time.RFC3339Nano), t.UpdatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) GetTask(ctx context.Context, id string) (task.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return task.Task{}, taskerr.NotFound("task %s not found", id)
	}
	return t, err
}

func (s *sqliteStore) DeleteTask(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	return err
}

func (s *sqliteStore) SetTriggerHandle(ctx context.Context, taskID, handle string) error {
	t, err := s.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if t.Reminder == nil {
		if handle == "" {
			return nil
		}
		t.Reminder = &task.Reminder{}
	}
	t.Reminder.TriggerHandle = handle
	rem, err := marshalReminder(t.Reminder)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE tasks SET reminder = ?, updated_at = ? WHERE id = ?`,
		rem, time.Now().Format(time.RFC3339Nano), taskID)
	return err
}

func (s *sqliteStore) ListTemplates(ctx context.Context, cursor string, limit int) ([]task.Task, string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE recurring_enabled = 1 AND id > ?
		 ORDER BY id LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var items []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, "", err
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	next := ""
	if len(items) == limit {
		next = items[len(items)-1].ID
	}
	return items, next, nil
}

func (s *sqliteStore) CreateInstance(ctx context.Context, inst task.Task, templateID, day string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	// The marker is the dedup key: if it already exists, this (template, day)
	// pair was expanded before and the whole insert is skipped.
	res, err := tx.ExecContext(ctx,
		`INSERT INTO expansions(template_id, day, instance_id, created_at)
		 VALUES(?,?,?,?) ON CONFLICT(template_id, day) DO NOTHING`,
		templateID, day, inst.ID, time.Now().Format(time.RFC3339Nano))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	rem, err := marshalReminder(inst.Reminder)
	if err != nil {
		return false, err
	}
	baseID := ""
	if inst.Recurring != nil {
		baseID = inst.Recurring.BaseTemplateID
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO tasks(`+taskColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		inst.ID, inst.Owner, inst.Title, nullStr(inst.Description), nullStr(inst.CategoryID),
		inst.DueDate, nullStr(inst.DueTime), string(inst.Priority), 0, nil,
		nullStr(baseID), rem,
		inst.CreatedAt.Format(time.RFC3339Nano), inst.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// ---- triggers ----

func (s *sqliteStore) PutTrigger(ctx context.Context, rec TriggerRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO triggers(name, handle, fire_at, payload) VALUES(?,?,?,?)
		 ON CONFLICT(name) DO UPDATE SET
		   handle=excluded.handle, fire_at=excluded.fire_at, payload=excluded.payload`,
		rec.Name, rec.Handle, rec.FireAt.UnixMilli(), string(rec.Payload))
	return err
}

func (s *sqliteStore) GetTrigger(ctx context.Context, name string) (TriggerRecord, error) {
	var (
		rec     TriggerRecord
		ms      int64
		payload string
	)
	rec.Name = name
	err := s.db.QueryRowContext(ctx,
		`SELECT handle, fire_at, payload FROM triggers WHERE name = ?`, name).
		Scan(&rec.Handle, &ms, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return TriggerRecord{}, taskerr.NotFound("trigger %s not found", name)
	}
	if err != nil {
		return TriggerRecord{}, err
	}
	rec.FireAt = time.UnixMilli(ms)
	rec.Payload = []byte(payload)
	return rec, nil
}

func (s *sqliteStore) DeleteTrigger(ctx context.Context, name, handle string) (bool, error) {
	var (
		res sql.Result
		err error
	)
	if handle == "" {
		res, err = s.db.ExecContext(ctx, `DELETE FROM triggers WHERE name = ?`, name)
	} else {
		res, err = s.db.ExecContext(ctx, `DELETE FROM triggers WHERE name = ? AND handle = ?`, name, handle)
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteStore) ListTriggers(ctx context.Context) ([]TriggerRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, handle, fire_at, payload FROM triggers ORDER BY fire_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []TriggerRecord
	for rows.Next() {
		var (
			rec     TriggerRecord
			ms      int64
			payload string
		)
		if err := rows.Scan(&rec.Name, &rec.Handle, &ms, &payload); err != nil {
			return nil, err
		}
		rec.FireAt = time.UnixMilli(ms)
		rec.Payload = []byte(payload)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// ---- helpers ----

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (task.Task, error) {
	var (
		t                              task.Task
		desc, catID, dueTime           sql.NullString
		days, baseID, rem              sql.NullString
		enabled                        int
		priority, createdAt, updatedAt string
	)
	err := row.Scan(&t.ID, &t.Owner, &t.Title, &desc, &catID, &t.DueDate, &dueTime,
		&priority, &enabled, &days, &baseID, &rem, &createdAt, &updatedAt)
	if err != nil {
		return task.Task{}, err
	}
	t.Description = desc.String
	t.CategoryID = catID.String
	t.DueTime = dueTime.String
	t.Priority = task.ParsePriority(priority)
	if enabled == 1 || days.String != "" || baseID.String != "" {
		t.Recurring = &task.Recurring{
			Enabled:        enabled == 1,
			Days:           splitDays(days.String),
			BaseTemplateID: baseID.String,
		}
	}
	if rem.Valid && rem.String != "" {
		var r task.Reminder
		if err := json.Unmarshal([]byte(rem.String), &r); err != nil {
			return task.Task{}, fmt.Errorf("task %s: bad reminder column: %w", t.ID, err)
		}
		t.Reminder = &r
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	t.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return t, nil
}

func marshalReminder(r *task.Reminder) (any, error) {
	if r == nil {
		return nil, nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func joinDays(days []task.Weekday) string {
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, string(d))
	}
	return strings.Join(parts, ",")
}

func splitDays(s string) []task.Weekday {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	days := make([]task.Weekday, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			days = append(days, task.Weekday(p))
		}
	}
	return days
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
