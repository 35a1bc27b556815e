package reminder

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"taskping/internal/storage"
	"taskping/internal/task"
	"taskping/internal/taskerr"
	"taskping/internal/trigger"
	"taskping/pkg/logx"
)

// ArmRequest is the input to Scheduler.Arm.
type ArmRequest struct {
	TaskID         string `json:"taskId"`
	Title          string `json:"title"`
	DueDate        string `json:"dueDate"` // YYYY-MM-DD
	DueTime        string `json:"dueTime"` // HH:MM
	LeadMinutes    uint   `json:"leadMinutes"`
	EmailChannel   bool   `json:"emailChannel"`
	SMSChannel     bool   `json:"smsChannel"`
	RecipientEmail string `json:"recipientEmail,omitempty"`
	RecipientPhone string `json:"recipientPhone,omitempty"`
}

// ArmResult is the handle the caller stores on the task record.
type ArmResult struct {
	TriggerHandle string    `json:"triggerHandle"`
	FireAt        time.Time `json:"fireAt"`
}

// Scheduler arms and disarms reminder triggers. It owns no task state: the
// trigger name is derived from the task id and the payload is self-contained,
// so every call is an independent unit of work.
type Scheduler struct {
	engine *trigger.Engine
	loc    *time.Location
	now    func() time.Time
	log    logx.Logger
}

func NewScheduler(engine *trigger.Engine, loc *time.Location, log logx.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{engine: engine, loc: loc, now: time.Now, log: log}
}

// SetClock overrides the time source (tests).
func (s *Scheduler) SetClock(now func() time.Time) { s.now = now }

// Arm validates the request, computes the fire time (due instant minus lead
// minutes), and registers the one-shot trigger. A fire time not strictly in
// the future is rejected, never clamped.
func (s *Scheduler) Arm(ctx context.Context, req ArmRequest) (ArmResult, error) {
	if strings.TrimSpace(req.TaskID) == "" {
		return ArmResult{}, taskerr.Validation("task id required")
	}
	if strings.TrimSpace(req.Title) == "" {
		return ArmResult{}, taskerr.Validation("title required")
	}
	due, err := time.ParseInLocation(task.DateLayout+" "+task.TimeLayout,
		strings.TrimSpace(req.DueDate)+" "+strings.TrimSpace(req.DueTime), s.loc)
	if err != nil {
		return ArmResult{}, taskerr.Validation("invalid due date/time %q %q", req.DueDate, req.DueTime)
	}

	fireAt := due.Add(-time.Duration(req.LeadMinutes) * time.Minute)
	if !fireAt.After(s.now()) {
		return ArmResult{}, taskerr.Validation("trigger time in the past")
	}

	name := TriggerName(req.TaskID)
	handle := Handle(req.TaskID, fireAt)
	payload, err := json.Marshal(FirePayload{
		TaskID:         req.TaskID,
		Title:          req.Title,
		DueDate:        req.DueDate,
		DueTime:        req.DueTime,
		EmailChannel:   req.EmailChannel,
		SMSChannel:     req.SMSChannel,
		RecipientEmail: req.RecipientEmail,
		RecipientPhone: req.RecipientPhone,
		TriggerHandle:  handle,
	})
	if err != nil {
		return ArmResult{}, taskerr.Internal("encode payload", err)
	}

	rec := storage.TriggerRecord{Name: name, Handle: handle, FireAt: fireAt, Payload: payload}
	if err := s.engine.Arm(ctx, rec); err != nil {
		return ArmResult{}, taskerr.Internal("arm trigger", err)
	}

	s.log.Info("reminder armed",
		logx.String("task", req.TaskID), logx.Time("fire_at", fireAt),
		logx.Uint("lead_minutes", req.LeadMinutes))
	return ArmResult{TriggerHandle: handle, FireAt: fireAt}, nil
}

// Disarm removes the trigger referenced by handle. A missing or already
// replaced trigger is idempotent success: double-disarm never fails the
// caller. Only a malformed handle is an error.
func (s *Scheduler) Disarm(ctx context.Context, handle string) error {
	name, err := parseHandle(handle)
	if err != nil {
		return taskerr.Validation("%v", err)
	}
	if err := s.engine.Disarm(ctx, name, handle); err != nil {
		if taskerr.IsNotFound(err) {
			return nil
		}
		return taskerr.Internal("disarm trigger", err)
	}
	return nil
}
