package storage

import (
	"context"
	"sort"
	"sync"

	"taskping/internal/task"
	"taskping/internal/taskerr"
)

// Memory is an in-process Store. It backs the "memory" driver and the test
// suites; state does not survive a restart.
type Memory struct {
	mu        sync.Mutex
	tasks     map[string]task.Task
	triggers  map[string]TriggerRecord
	expansion map[string]string // templateID+"|"+day -> instanceID
}

func NewMemory() *Memory {
	return &Memory{
		tasks:     map[string]task.Task{},
		triggers:  map[string]TriggerRecord{},
		expansion: map[string]string{},
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) PutTask(ctx context.Context, t task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = cloneTask(t)
	return nil
}

func (m *Memory) GetTask(ctx context.Context, id string) (task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return task.Task{}, taskerr.NotFound("task %s not found", id)
	}
	return cloneTask(t), nil
}

func (m *Memory) DeleteTask(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, id)
	return nil
}

func (m *Memory) SetTriggerHandle(ctx context.Context, taskID, handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return taskerr.NotFound("task %s not found", taskID)
	}
	if t.Reminder == nil {
		if handle == "" {
			return nil
		}
		t.Reminder = &task.Reminder{}
	} else {
		r := *t.Reminder
		t.Reminder = &r
	}
	t.Reminder.TriggerHandle = handle
	m.tasks[taskID] = t
	return nil
}

func (m *Memory) ListTemplates(ctx context.Context, cursor string, limit int) ([]task.Task, string, error) {
	if limit <= 0 {
		limit = 100
	}
	// One critical section for select and fetch, so a concurrent delete
	// cannot leave a hole between the two.
	m.mu.Lock()
	ids := make([]string, 0, len(m.tasks))
	for id, t := range m.tasks {
		if t.IsTemplate() && id > cursor {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	items := make([]task.Task, 0, len(ids))
	for _, id := range ids {
		items = append(items, cloneTask(m.tasks[id]))
	}
	m.mu.Unlock()

	next := ""
	if len(items) == limit {
		next = items[len(items)-1].ID
	}
	return items, next, nil
}

func (m *Memory) CreateInstance(ctx context.Context, inst task.Task, templateID, day string) (bool, error) {
	key := templateID + "|" + day
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.expansion[key]; ok {
		return false, nil
	}
	m.expansion[key] = inst.ID
	m.tasks[inst.ID] = cloneTask(inst)
	return true, nil
}

func (m *Memory) PutTrigger(ctx context.Context, rec TriggerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.Payload = append([]byte(nil), rec.Payload...)
	m.triggers[rec.Name] = rec
	return nil
}

func (m *Memory) GetTrigger(ctx context.Context, name string) (TriggerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.triggers[name]
	if !ok {
		return TriggerRecord{}, taskerr.NotFound("trigger %s not found", name)
	}
	rec.Payload = append([]byte(nil), rec.Payload...)
	return rec, nil
}

func (m *Memory) DeleteTrigger(ctx context.Context, name, handle string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.triggers[name]
	if !ok {
		return false, nil
	}
	if handle != "" && rec.Handle != handle {
		return false, nil
	}
	delete(m.triggers, name)
	return true, nil
}

func (m *Memory) ListTriggers(ctx context.Context) ([]TriggerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := make([]TriggerRecord, 0, len(m.triggers))
	for _, rec := range m.triggers {
		rec.Payload = append([]byte(nil), rec.Payload...)
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].FireAt.Before(recs[j].FireAt) })
	return recs, nil
}

func cloneTask(t task.Task) task.Task {
	if t.Recurring != nil {
		r := *t.Recurring
		r.Days = append([]task.Weekday(nil), t.Recurring.Days...)
		t.Recurring = &r
	}
	if t.Reminder != nil {
		r := *t.Reminder
		t.Reminder = &r
	}
	return t
}
