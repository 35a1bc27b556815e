// Package reminder computes, arms, and dispatches task reminders.
//
// The scheduler side turns a task's due date/time and lead offset into a
// named one-shot trigger; the dispatcher side consumes the fired trigger,
// delivers over the enabled channels with per-channel failure isolation, and
// disarms the trigger that invoked it.
package reminder
