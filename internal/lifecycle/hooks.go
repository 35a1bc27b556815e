// Package lifecycle glues task CRUD to reminder scheduling. Task persistence
// is the primary operation; arming and disarming triggers is best-effort
// secondary and never blocks it.
package lifecycle

import (
	"context"

	"taskping/internal/reminder"
	"taskping/internal/storage"
	"taskping/internal/task"
	"taskping/internal/taskerr"
	"taskping/pkg/logx"
)

// ReminderScheduler is what the hooks need from the reminder side.
type ReminderScheduler interface {
	Arm(ctx context.Context, req reminder.ArmRequest) (reminder.ArmResult, error)
	Disarm(ctx context.Context, handle string) error
}

type Hooks struct {
	store storage.TaskStore
	sched ReminderScheduler
	log   logx.Logger
}

func New(store storage.TaskStore, sched ReminderScheduler, log logx.Logger) *Hooks {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Hooks{store: store, sched: sched, log: log}
}

// OnCreate persists the task, then arms its reminder when one is configured
// and schedulable. A reminder that fails to schedule leaves the task without
// a trigger handle; the task itself is still created.
func (h *Hooks) OnCreate(ctx context.Context, t task.Task) (task.Task, error) {
	if err := t.Validate(); err != nil {
		return task.Task{}, taskerr.Validation("%v", err)
	}
	if t.Reminder != nil {
		// Never trust an inbound handle; only arming produces one.
		t.Reminder.TriggerHandle = ""
	}
	if err := h.store.PutTask(ctx, t); err != nil {
		return task.Task{}, taskerr.Internal("store task", err)
	}

	h.armIfConfigured(ctx, &t)
	return t, nil
}

// OnUpdate replaces the stored task. Any previously armed trigger is
// disarmed first using the stored (not inbound) handle, then the new
// reminder config is armed fresh.
func (h *Hooks) OnUpdate(ctx context.Context, t task.Task) (task.Task, error) {
	if err := t.Validate(); err != nil {
		return task.Task{}, taskerr.Validation("%v", err)
	}

	old, err := h.store.GetTask(ctx, t.ID)
	if err != nil && !taskerr.IsNotFound(err) {
		return task.Task{}, taskerr.Internal("load task", err)
	}
	if err == nil && old.Reminder != nil && old.Reminder.TriggerHandle != "" {
		if derr := h.sched.Disarm(ctx, old.Reminder.TriggerHandle); derr != nil {
			h.log.Warn("stale trigger not disarmed on update",
				logx.String("task", t.ID), logx.Err(derr))
		}
	}

	if t.Reminder != nil {
		t.Reminder.TriggerHandle = ""
	}
	if err := h.store.PutTask(ctx, t); err != nil {
		return task.Task{}, taskerr.Internal("store task", err)
	}

	h.armIfConfigured(ctx, &t)
	return t, nil
}

// OnDelete disarms the task's trigger (if any) before removing the record.
// Disarm failure is logged, not fatal to the deletion.
func (h *Hooks) OnDelete(ctx context.Context, id string) error {
	t, err := h.store.GetTask(ctx, id)
	if err != nil {
		if taskerr.IsNotFound(err) {
			return nil
		}
		return taskerr.Internal("load task", err)
	}

	if t.Reminder != nil && t.Reminder.TriggerHandle != "" {
		if derr := h.sched.Disarm(ctx, t.Reminder.TriggerHandle); derr != nil {
			h.log.Warn("trigger not disarmed on delete",
				logx.String("task", id), logx.Err(derr))
		}
	}

	if err := h.store.DeleteTask(ctx, id); err != nil {
		return taskerr.Internal("delete task", err)
	}
	return nil
}

func (h *Hooks) armIfConfigured(ctx context.Context, t *task.Task) {
	if h.sched == nil || t.Reminder == nil || !t.Reminder.Enabled || t.DueTime == "" {
		return
	}
	res, err := h.sched.Arm(ctx, reminder.ArmRequest{
		TaskID:         t.ID,
		Title:          t.Title,
		DueDate:        t.DueDate,
		DueTime:        t.DueTime,
		LeadMinutes:    t.Reminder.LeadMinutes,
		EmailChannel:   t.Reminder.EmailChannel,
		SMSChannel:     t.Reminder.SMSChannel,
		RecipientEmail: t.Reminder.RecipientEmail,
		RecipientPhone: t.Reminder.RecipientPhone,
	})
	if err != nil {
		h.log.Warn("reminder not scheduled",
			logx.String("task", t.ID), logx.Err(err))
		return
	}
	if err := h.store.SetTriggerHandle(ctx, t.ID, res.TriggerHandle); err != nil {
		h.log.Warn("trigger handle not persisted",
			logx.String("task", t.ID), logx.Err(err))
		return
	}
	t.Reminder.TriggerHandle = res.TriggerHandle
}
