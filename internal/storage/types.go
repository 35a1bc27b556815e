package storage

import (
	"context"
	"time"

	"taskping/internal/task"
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "memory": in-process store, state lost on restart
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// TriggerRecord is a durable one-shot trigger: a name bound to a fire time and
// a self-contained delivery payload. The payload is opaque to storage.
type TriggerRecord struct {
	Name    string
	Handle  string
	FireAt  time.Time
	Payload []byte
}

// TaskStore is the slice of task persistence the scheduling core touches.
type TaskStore interface {
	PutTask(ctx context.Context, t task.Task) error
	GetTask(ctx context.Context, id string) (task.Task, error)
	DeleteTask(ctx context.Context, id string) error

	// SetTriggerHandle updates only the stored reminder's trigger handle.
	// An empty handle clears it.
	SetTriggerHandle(ctx context.Context, taskID, handle string) error

	// ListTemplates returns one page of recurrence templates in stable id
	// order. cursor is "" for the first page; next is "" once exhausted.
	ListTemplates(ctx context.Context, cursor string, limit int) (items []task.Task, next string, err error)

	// CreateInstance persists a materialized instance together with its
	// (templateID, day) expansion marker in one transaction. It returns
	// created=false when the marker already exists, leaving the store
	// untouched, which makes a re-run of the daily batch a no-op.
	CreateInstance(ctx context.Context, inst task.Task, templateID, day string) (created bool, err error)
}

// TriggerStore is the durable registry behind the trigger engine.
type TriggerStore interface {
	// PutTrigger upserts by name: re-arming a task replaces its trigger.
	PutTrigger(ctx context.Context, rec TriggerRecord) error
	GetTrigger(ctx context.Context, name string) (TriggerRecord, error)

	// DeleteTrigger removes the named trigger. A non-empty handle makes the
	// delete conditional (compare-and-delete): a row whose handle differs is
	// left in place and deleted=false is returned, so a racing re-arm's fresh
	// trigger survives a stale disarm.
	DeleteTrigger(ctx context.Context, name, handle string) (deleted bool, err error)

	// ListTriggers returns all live triggers, used to rebuild timers at start.
	ListTriggers(ctx context.Context) ([]TriggerRecord, error)
}

type Store interface {
	TaskStore
	TriggerStore
	Close() error
}
