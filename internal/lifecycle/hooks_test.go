package lifecycle

import (
	"context"
	"testing"
	"time"

	"taskping/internal/reminder"
	"taskping/internal/storage"
	"taskping/internal/task"
	"taskping/internal/taskerr"
	"taskping/pkg/logx"
)

type fakeScheduler struct {
	armed    []reminder.ArmRequest
	disarmed []string
	armErr   error
	disErr   error
}

func (f *fakeScheduler) Arm(_ context.Context, req reminder.ArmRequest) (reminder.ArmResult, error) {
	f.armed = append(f.armed, req)
	if f.armErr != nil {
		return reminder.ArmResult{}, f.armErr
	}
	return reminder.ArmResult{
		TriggerHandle: reminder.Handle(req.TaskID, time.Unix(1700000000, 0)),
	}, nil
}

func (f *fakeScheduler) Disarm(_ context.Context, handle string) error {
	f.disarmed = append(f.disarmed, handle)
	return f.disErr
}

func newTask(id string) task.Task {
	return task.Task{
		ID:      id,
		Owner:   "u1",
		Title:   "pay rent",
		DueDate: "2025-06-01",
		DueTime: "09:00",
		Reminder: &task.Reminder{
			Enabled:        true,
			EmailChannel:   true,
			LeadMinutes:    30,
			RecipientEmail: "u@example.com",
		},
	}
}

func TestOnCreateArmsAndPersistsHandle(t *testing.T) {
	t.Parallel()
	store := storage.NewMemory()
	sched := &fakeScheduler{}
	h := New(store, sched, logx.Nop())

	out, err := h.OnCreate(context.Background(), newTask("t1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(sched.armed) != 1 {
		t.Fatalf("arm calls = %d, want 1", len(sched.armed))
	}
	if out.Reminder.TriggerHandle == "" {
		t.Fatal("returned task must carry the armed handle")
	}
	stored, err := store.GetTask(context.Background(), "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Reminder.TriggerHandle != out.Reminder.TriggerHandle {
		t.Fatalf("stored handle %q != returned %q",
			stored.Reminder.TriggerHandle, out.Reminder.TriggerHandle)
	}
}

func TestOnCreateIgnoresInboundHandle(t *testing.T) {
	t.Parallel()
	store := storage.NewMemory()
	h := New(store, &fakeScheduler{}, logx.Nop())

	in := newTask("t1")
	in.Reminder.Enabled = false
	in.Reminder.TriggerHandle = "reminder:t1@999" // client-supplied, must be dropped

	out, err := h.OnCreate(context.Background(), in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if out.Reminder.TriggerHandle != "" {
		t.Fatalf("handle = %q, want empty", out.Reminder.TriggerHandle)
	}
}

func TestOnCreateSurvivesArmFailure(t *testing.T) {
	t.Parallel()
	store := storage.NewMemory()
	sched := &fakeScheduler{armErr: taskerr.Validation("trigger time in the past")}
	h := New(store, sched, logx.Nop())

	out, err := h.OnCreate(context.Background(), newTask("t1"))
	if err != nil {
		t.Fatalf("arm failure must not fail the create: %v", err)
	}
	if out.Reminder.TriggerHandle != "" {
		t.Fatal("no handle when arming failed")
	}
	if _, err := store.GetTask(context.Background(), "t1"); err != nil {
		t.Fatalf("task must still be stored: %v", err)
	}
}

func TestOnCreateSkipsUnschedulable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*task.Task)
	}{
		{"reminder disabled", func(tk *task.Task) { tk.Reminder.Enabled = false }},
		{"no reminder", func(tk *task.Task) { tk.Reminder = nil }},
		{"no due time", func(tk *task.Task) { tk.DueTime = "" }},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			sched := &fakeScheduler{}
			h := New(storage.NewMemory(), sched, logx.Nop())
			in := newTask("t1")
			tc.mutate(&in)
			if _, err := h.OnCreate(context.Background(), in); err != nil {
				t.Fatalf("create: %v", err)
			}
			if len(sched.armed) != 0 {
				t.Fatalf("%s: arm calls = %d, want 0", tc.name, len(sched.armed))
			}
		})
	}
}

func TestOnCreateRejectsInvalidTask(t *testing.T) {
	t.Parallel()
	h := New(storage.NewMemory(), &fakeScheduler{}, logx.Nop())
	in := newTask("t1")
	in.Title = ""
	if _, err := h.OnCreate(context.Background(), in); !taskerr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestOnUpdateReplacesTrigger(t *testing.T) {
	t.Parallel()
	store := storage.NewMemory()
	sched := &fakeScheduler{}
	h := New(store, sched, logx.Nop())

	created, err := h.OnCreate(context.Background(), newTask("t1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	oldHandle := created.Reminder.TriggerHandle

	upd := created
	upd.DueTime = "10:30"
	out, err := h.OnUpdate(context.Background(), upd)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(sched.disarmed) != 1 || sched.disarmed[0] != oldHandle {
		t.Fatalf("disarmed = %v, want exactly the stored handle %q", sched.disarmed, oldHandle)
	}
	if len(sched.armed) != 2 {
		t.Fatalf("arm calls = %d, want 2 (create + update)", len(sched.armed))
	}
	if sched.armed[1].DueTime != "10:30" {
		t.Fatalf("re-arm used stale due time %q", sched.armed[1].DueTime)
	}
	if out.Reminder.TriggerHandle == "" {
		t.Fatal("updated task must carry a fresh handle")
	}
}

func TestOnUpdateDisablingReminderDisarms(t *testing.T) {
	t.Parallel()
	store := storage.NewMemory()
	sched := &fakeScheduler{}
	h := New(store, sched, logx.Nop())

	created, err := h.OnCreate(context.Background(), newTask("t1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	upd := created
	rem := *created.Reminder
	rem.Enabled = false
	upd.Reminder = &rem
	out, err := h.OnUpdate(context.Background(), upd)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(sched.disarmed) != 1 {
		t.Fatalf("disarm calls = %d, want 1", len(sched.disarmed))
	}
	if len(sched.armed) != 1 {
		t.Fatalf("arm calls = %d, want 1 (create only)", len(sched.armed))
	}
	if out.Reminder.TriggerHandle != "" {
		t.Fatal("disabled reminder must not keep a handle")
	}
}

func TestOnDeleteDisarmsFirst(t *testing.T) {
	t.Parallel()
	store := storage.NewMemory()
	sched := &fakeScheduler{}
	h := New(store, sched, logx.Nop())

	created, err := h.OnCreate(context.Background(), newTask("t1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := h.OnDelete(context.Background(), "t1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(sched.disarmed) != 1 || sched.disarmed[0] != created.Reminder.TriggerHandle {
		t.Fatalf("disarmed = %v", sched.disarmed)
	}
	if _, err := store.GetTask(context.Background(), "t1"); !taskerr.IsNotFound(err) {
		t.Fatalf("task must be gone, got %v", err)
	}
}

func TestOnDeleteSurvivesDisarmFailure(t *testing.T) {
	t.Parallel()
	store := storage.NewMemory()
	sched := &fakeScheduler{disErr: taskerr.Internal("engine stopped", nil)}
	h := New(store, sched, logx.Nop())

	if _, err := h.OnCreate(context.Background(), newTask("t1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := h.OnDelete(context.Background(), "t1"); err != nil {
		t.Fatalf("disarm failure must not block deletion: %v", err)
	}
	if _, err := store.GetTask(context.Background(), "t1"); !taskerr.IsNotFound(err) {
		t.Fatalf("task must be gone, got %v", err)
	}
}

func TestOnDeleteMissingTaskIsNoop(t *testing.T) {
	t.Parallel()
	sched := &fakeScheduler{}
	h := New(storage.NewMemory(), sched, logx.Nop())
	if err := h.OnDelete(context.Background(), "ghost"); err != nil {
		t.Fatalf("delete of missing task: %v", err)
	}
	if len(sched.disarmed) != 0 {
		t.Fatal("nothing to disarm for a missing task")
	}
}
