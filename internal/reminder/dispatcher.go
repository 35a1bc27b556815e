package reminder

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"taskping/internal/notify"
	"taskping/internal/storage"
	"taskping/internal/taskerr"
	"taskping/pkg/logx"
)

// Sender is the slice of the notify service the dispatcher needs.
type Sender interface {
	Send(ctx context.Context, channel string, msg notify.Message) error
}

// Disarmer removes a trigger by handle (the scheduler satisfies this).
type Disarmer interface {
	Disarm(ctx context.Context, handle string) error
}

// DeliveryResult records what a fire attempted, per channel, plus whether the
// trigger cleaned itself up. Channels that were not enabled are absent from
// Delivered.
type DeliveryResult struct {
	Delivered map[string]bool `json:"delivered"`
	Cleaned   bool            `json:"cleaned"`
}

// Dispatcher handles fired reminder triggers: best-effort delivery per
// enabled channel, then self-cleanup of the trigger that invoked it.
type Dispatcher struct {
	sender         Sender
	disarmer       Disarmer
	channelTimeout time.Duration
	log            logx.Logger
}

func NewDispatcher(sender Sender, disarmer Disarmer, channelTimeout time.Duration, log logx.Logger) *Dispatcher {
	if channelTimeout <= 0 {
		channelTimeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{sender: sender, disarmer: disarmer, channelTimeout: channelTimeout, log: log}
}

// HandleTrigger adapts the dispatcher to the trigger engine: it decodes the
// stored payload and fires. The engine has no synchronous caller to report
// to, so everything except a malformed payload resolves to nil.
func (d *Dispatcher) HandleTrigger(ctx context.Context, rec storage.TriggerRecord) error {
	var p FirePayload
	if err := json.Unmarshal(rec.Payload, &p); err != nil {
		return taskerr.Validation("trigger %s: malformed payload: %v", rec.Name, err)
	}
	_, err := d.Fire(ctx, p)
	return err
}

// Fire runs one dispatch: validate, deliver per enabled channel (email before
// SMS, outcomes independent), then disarm the trigger named in the payload
// regardless of delivery outcome. Only a malformed payload returns an error;
// in that case nothing is delivered and nothing is cleaned.
func (d *Dispatcher) Fire(ctx context.Context, p FirePayload) (DeliveryResult, error) {
	res := DeliveryResult{Delivered: map[string]bool{}}
	if err := validatePayload(p); err != nil {
		return res, err
	}

	body := FormatMessage(p.Title, p.DueDate, p.DueTime)

	if p.EmailChannel {
		res.Delivered[notify.ChannelEmail] = d.attempt(ctx, notify.ChannelEmail, notify.Message{
			Recipient: p.RecipientEmail,
			Subject:   "Task Reminder",
			Body:      body,
		}, p.TaskID)
	}
	if p.SMSChannel {
		res.Delivered[notify.ChannelSMS] = d.attempt(ctx, notify.ChannelSMS, notify.Message{
			Recipient: p.RecipientPhone,
			Body:      TruncateSMS(body),
		}, p.TaskID)
	}

	// Self-cleaning one-shot: the trigger deletes itself after firing,
	// independent of whether any channel succeeded. A cleanup failure is
	// logged, not escalated.
	if err := d.disarmer.Disarm(ctx, p.TriggerHandle); err != nil {
		d.log.Warn("trigger cleanup failed",
			logx.String("task", p.TaskID), logx.String("handle", p.TriggerHandle), logx.Err(err))
	} else {
		res.Cleaned = true
	}

	d.log.Info("reminder dispatched",
		logx.String("task", p.TaskID), logx.Any("delivered", res.Delivered),
		logx.Bool("cleaned", res.Cleaned))
	return res, nil
}

// attempt delivers on one channel, bounded by the per-channel timeout so a
// hung provider cannot block the sibling channel or the cleanup step.
func (d *Dispatcher) attempt(ctx context.Context, channel string, msg notify.Message, taskID string) bool {
	sctx, cancel := context.WithTimeout(ctx, d.channelTimeout)
	defer cancel()
	if err := d.sender.Send(sctx, channel, msg); err != nil {
		d.log.Warn("reminder channel failed",
			logx.String("task", taskID), logx.String("channel", channel), logx.Err(err))
		return false
	}
	return true
}

func validatePayload(p FirePayload) error {
	switch {
	case strings.TrimSpace(p.TaskID) == "":
		return taskerr.Validation("payload missing task id")
	case strings.TrimSpace(p.Title) == "":
		return taskerr.Validation("payload missing title")
	case strings.TrimSpace(p.DueDate) == "":
		return taskerr.Validation("payload missing due date")
	case strings.TrimSpace(p.DueTime) == "":
		return taskerr.Validation("payload missing due time")
	}
	return nil
}
