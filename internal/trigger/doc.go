// Package trigger implements the delayed-job engine behind task reminders.
//
// # Overview
//
// A trigger is a named one-shot event: a fire time plus a self-contained
// payload, persisted in storage. Names are deterministic and human readable
// (e.g. "reminder:task-42") so arming is an upsert — re-arming a task replaces
// its trigger instead of duplicating it, and disarming needs no bookkeeping
// beyond the name.
//
// # Lifecycle
//
// Arm writes the storage row and schedules a runtime timer. When the timer
// fires, the firing is queued and a worker invokes the installed Handler once,
// bounded by a per-fire timeout. The engine does not delete the row on fire:
// the handler is expected to disarm its own trigger (self-cleaning one-shot),
// so a crash between fire and cleanup re-delivers on the next start rather
// than losing the reminder.
//
// # Restart
//
// Start rebuilds timers from the persisted rows; fire times already in the
// past collapse to an immediate fire.
package trigger
