package task

import (
	"testing"
	"time"
)

func TestParseWeekday(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    Weekday
		wantErr bool
	}{
		{in: "monday", want: "monday"},
		{in: "MONDAY", want: "monday"},
		{in: "  Sunday ", want: "sunday"},
		{in: "mon", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseWeekday(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseWeekday(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseWeekday(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseWeekday(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWeekdayOf(t *testing.T) {
	t.Parallel()
	if got := WeekdayOf(time.Wednesday); got != "wednesday" {
		t.Fatalf("WeekdayOf(Wednesday) = %q", got)
	}
}

func TestParsePriorityDefaultsToMedium(t *testing.T) {
	t.Parallel()
	if got := ParsePriority(""); got != PriorityMedium {
		t.Fatalf("empty priority = %q, want medium", got)
	}
	if got := ParsePriority("HIGH"); got != PriorityHigh {
		t.Fatalf("HIGH = %q, want high", got)
	}
	if got := ParsePriority("bogus"); got != PriorityMedium {
		t.Fatalf("bogus priority = %q, want medium", got)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	base := Task{ID: "t1", Title: "water plants", DueDate: "2025-03-10"}
	if err := base.Validate(); err != nil {
		t.Fatalf("valid task rejected: %v", err)
	}

	bad := base
	bad.DueDate = "10-03-2025"
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for bad due date format")
	}

	tpl := base
	tpl.Recurring = &Recurring{Enabled: true}
	if err := tpl.Validate(); err == nil {
		t.Fatal("expected error for template without days")
	}
	tpl.Recurring.Days = []Weekday{"monday", "friday"}
	if err := tpl.Validate(); err != nil {
		t.Fatalf("valid template rejected: %v", err)
	}
}

func TestDueAt(t *testing.T) {
	t.Parallel()
	tk := Task{ID: "t1", Title: "x", DueDate: "2025-03-10", DueTime: "09:00"}
	got, err := tk.DueAt(time.UTC)
	if err != nil {
		t.Fatalf("DueAt error: %v", err)
	}
	want := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("DueAt = %v, want %v", got, want)
	}

	tk.DueTime = ""
	if _, err := tk.DueAt(time.UTC); err == nil {
		t.Fatal("expected error without due time")
	}
}

func TestIsTemplate(t *testing.T) {
	t.Parallel()
	tpl := Task{Recurring: &Recurring{Enabled: true, Days: []Weekday{"friday"}}}
	if !tpl.IsTemplate() {
		t.Fatal("expected template")
	}
	inst := Task{Recurring: &Recurring{Enabled: false, BaseTemplateID: "tpl-1"}}
	if inst.IsTemplate() {
		t.Fatal("instance must not be a template")
	}
}
