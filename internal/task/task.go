package task

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DateLayout is the calendar-date wire format used across the system.
	DateLayout = "2006-01-02"
	// TimeLayout is the clock-time wire format (24h, minute resolution).
	TimeLayout = "15:04"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ParsePriority normalizes a priority value, defaulting to medium.
func ParsePriority(s string) Priority {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityHigh:
		return PriorityHigh
	case PriorityLow:
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// Weekday is a lower-case weekday name ("sunday".."saturday").
type Weekday string

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday accepts any case and returns the canonical lower-case name.
func ParseWeekday(s string) (Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if _, ok := weekdayNames[name]; !ok {
		return "", fmt.Errorf("invalid weekday %q", s)
	}
	return Weekday(name), nil
}

// WeekdayOf returns the canonical name for a time.Weekday.
func WeekdayOf(d time.Weekday) Weekday {
	return Weekday(strings.ToLower(d.String()))
}

// Recurring marks a task as either a recurrence template (Enabled with a
// non-empty Days set) or a materialized instance (Enabled false with a
// BaseTemplateID backlink).
type Recurring struct {
	Enabled        bool      `json:"enabled"`
	Days           []Weekday `json:"days,omitempty"`
	BaseTemplateID string    `json:"baseTemplateId,omitempty"`
}

// HasDay reports whether d is a member of the template's day set.
func (r *Recurring) HasDay(d Weekday) bool {
	if r == nil {
		return false
	}
	for _, v := range r.Days {
		if v == d {
			return true
		}
	}
	return false
}

// Reminder is a task's notification configuration. TriggerHandle is a weak
// reference: it is a lookup key for the live trigger, not ownership of it.
type Reminder struct {
	Enabled        bool   `json:"enabled"`
	EmailChannel   bool   `json:"emailChannel"`
	SMSChannel     bool   `json:"smsChannel"`
	LeadMinutes    uint   `json:"leadMinutes"`
	RecipientEmail string `json:"recipientEmail,omitempty"`
	RecipientPhone string `json:"recipientPhone,omitempty"`
	TriggerHandle  string `json:"triggerHandle,omitempty"`
}

type Task struct {
	ID          string     `json:"id"`
	Owner       string     `json:"owner"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	CategoryID  string     `json:"categoryId,omitempty"`
	DueDate     string     `json:"dueDate"`
	DueTime     string     `json:"dueTime,omitempty"`
	Priority    Priority   `json:"priority"`
	Recurring   *Recurring `json:"recurring,omitempty"`
	Reminder    *Reminder  `json:"reminder,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// IsTemplate reports whether the task is a recurrence template.
func (t *Task) IsTemplate() bool {
	return t.Recurring != nil && t.Recurring.Enabled && len(t.Recurring.Days) > 0
}

// Validate checks the structural invariants that the scheduling core relies on.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("task id required")
	}
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("task title required")
	}
	if t.DueDate != "" {
		if _, err := time.Parse(DateLayout, t.DueDate); err != nil {
			return fmt.Errorf("due date must be YYYY-MM-DD: %w", err)
		}
	}
	if t.DueTime != "" {
		if _, err := time.Parse(TimeLayout, t.DueTime); err != nil {
			return fmt.Errorf("due time must be HH:MM: %w", err)
		}
	}
	if t.Recurring != nil && t.Recurring.Enabled {
		if len(t.Recurring.Days) == 0 {
			return fmt.Errorf("recurring template needs at least one weekday")
		}
		for _, d := range t.Recurring.Days {
			if _, err := ParseWeekday(string(d)); err != nil {
				return err
			}
		}
	}
	return nil
}

// DueAt combines DueDate and DueTime in the given location.
// DueTime is required: a task without a clock time has no schedulable instant.
func (t *Task) DueAt(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	if strings.TrimSpace(t.DueDate) == "" {
		return time.Time{}, fmt.Errorf("due date required")
	}
	if strings.TrimSpace(t.DueTime) == "" {
		return time.Time{}, fmt.Errorf("due time required")
	}
	return time.ParseInLocation(DateLayout+" "+TimeLayout, t.DueDate+" "+t.DueTime, loc)
}
