package recurrence

import (
	"context"
	"time"

	"github.com/google/uuid"

	"taskping/internal/eventbus"
	"taskping/internal/reminder"
	"taskping/internal/storage"
	"taskping/internal/task"
	"taskping/internal/taskerr"
	"taskping/pkg/logx"
)

// Armer is the slice of the reminder scheduler the expander needs. It may be
// nil; instances are then created without live triggers.
type Armer interface {
	Arm(ctx context.Context, req reminder.ArmRequest) (reminder.ArmResult, error)
}

// Report aggregates one daily run for observability.
type Report struct {
	Scanned uint `json:"scanned"`
	Created uint `json:"created"`
	Skipped uint `json:"skipped"` // already expanded for this day (marker hit)
	Failed  uint `json:"failed"`
}

// Expander materializes dated task instances from recurring templates.
type Expander struct {
	store    storage.TaskStore
	armer    Armer
	pageSize int

	log logx.Logger
	bus eventbus.Bus

	newID func() string
	now   func() time.Time
}

func New(store storage.TaskStore, armer Armer, pageSize int, log logx.Logger, bus eventbus.Bus) *Expander {
	if pageSize <= 0 {
		pageSize = 100
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Expander{
		store:    store,
		armer:    armer,
		pageSize: pageSize,
		log:      log,
		bus:      bus,
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// SetClock overrides the timestamp source (tests).
func (e *Expander) SetClock(now func() time.Time) { e.now = now }

// SetIDFunc overrides instance id generation (tests).
func (e *Expander) SetIDFunc(fn func() string) { e.newID = fn }

// RunAt expands for the calendar day containing now.
func (e *Expander) RunAt(ctx context.Context, now time.Time) (Report, error) {
	return e.Run(ctx, now.Format(task.DateLayout), task.WeekdayOf(now.Weekday()))
}

// Run scans every recurring template and creates one dated instance per
// template whose day set contains weekday. The scan follows pagination until
// exhausted before any instance is created, so a partial scan is never
// mistaken for a complete one. Per-template failures are isolated: they are
// counted and logged, and the run continues.
func (e *Expander) Run(ctx context.Context, today string, weekday task.Weekday) (Report, error) {
	var rep Report
	if _, err := time.Parse(task.DateLayout, today); err != nil {
		return rep, taskerr.Validation("invalid date %q", today)
	}
	day, err := task.ParseWeekday(string(weekday))
	if err != nil {
		return rep, taskerr.Validation("%v", err)
	}

	// Full paginated scan first.
	var templates []task.Task
	cursor := ""
	for {
		items, next, err := e.store.ListTemplates(ctx, cursor, e.pageSize)
		if err != nil {
			return rep, taskerr.Internal("template scan", err)
		}
		templates = append(templates, items...)
		if next == "" {
			break
		}
		cursor = next
	}

	start := e.now()
	for _, tpl := range templates {
		rep.Scanned++
		if !tpl.Recurring.HasDay(day) {
			continue
		}
		created, err := e.expandOne(ctx, tpl, today)
		switch {
		case err != nil:
			rep.Failed++
			e.log.Warn("template expansion failed",
				logx.String("template", tpl.ID), logx.String("day", today), logx.Err(err))
		case created:
			rep.Created++
		default:
			rep.Skipped++
		}
	}

	if e.bus != nil {
		e.bus.Publish(eventbus.Event{Type: eventbus.TypeExpansionDone, Data: rep})
	}
	e.log.Info("recurrence expansion completed",
		logx.String("day", today), logx.Uint("scanned", rep.Scanned),
		logx.Uint("created", rep.Created), logx.Uint("skipped", rep.Skipped),
		logx.Uint("failed", rep.Failed), logx.Duration("dur", e.now().Sub(start)))
	return rep, nil
}

// expandOne synthesizes and persists one instance for tpl on day. The
// (template, day) expansion marker written with the instance makes a re-run
// of the same day a no-op (created=false).
func (e *Expander) expandOne(ctx context.Context, tpl task.Task, day string) (bool, error) {
	if err := tpl.Validate(); err != nil {
		return false, taskerr.TemplateExpansion(tpl.ID, err)
	}

	baseID := tpl.ID
	if tpl.Recurring != nil && tpl.Recurring.BaseTemplateID != "" {
		baseID = tpl.Recurring.BaseTemplateID
	}

	now := e.now()
	inst := task.Task{
		ID:          e.newID(),
		Owner:       tpl.Owner,
		Title:       tpl.Title,
		Description: tpl.Description,
		CategoryID:  tpl.CategoryID,
		DueDate:     day,
		DueTime:     tpl.DueTime,
		Priority:    task.ParsePriority(string(tpl.Priority)),
		Recurring:   &task.Recurring{Enabled: false, BaseTemplateID: baseID},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if tpl.Reminder != nil {
		// Copy the channel config but never the template's trigger handle:
		// a fresh instance arms its own trigger.
		r := *tpl.Reminder
		r.TriggerHandle = ""
		inst.Reminder = &r
	}

	created, err := e.store.CreateInstance(ctx, inst, tpl.ID, day)
	if err != nil {
		return false, taskerr.TemplateExpansion(tpl.ID, err)
	}
	if !created {
		return false, nil
	}
	e.log.Debug("instance created",
		logx.String("template", tpl.ID), logx.String("instance", inst.ID), logx.String("day", day))

	// Scheduling is best-effort secondary: a reminder that fails to arm does
	// not fail the expansion.
	if e.armer != nil && inst.Reminder != nil && inst.Reminder.Enabled && inst.DueTime != "" {
		res, err := e.armer.Arm(ctx, reminder.ArmRequest{
			TaskID:         inst.ID,
			Title:          inst.Title,
			DueDate:        inst.DueDate,
			DueTime:        inst.DueTime,
			LeadMinutes:    inst.Reminder.LeadMinutes,
			EmailChannel:   inst.Reminder.EmailChannel,
			SMSChannel:     inst.Reminder.SMSChannel,
			RecipientEmail: inst.Reminder.RecipientEmail,
			RecipientPhone: inst.Reminder.RecipientPhone,
		})
		if err != nil {
			e.log.Warn("instance reminder not armed",
				logx.String("instance", inst.ID), logx.Err(err))
		} else if err := e.store.SetTriggerHandle(ctx, inst.ID, res.TriggerHandle); err != nil {
			e.log.Warn("instance trigger handle not persisted",
				logx.String("instance", inst.ID), logx.Err(err))
		}
	}
	return true, nil
}
