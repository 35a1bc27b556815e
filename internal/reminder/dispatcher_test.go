package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"taskping/internal/notify"
	"taskping/internal/storage"
	"taskping/internal/taskerr"
	"taskping/pkg/logx"
)

type fakeSender struct {
	sent     []sentMsg
	failWith map[string]error
}

type sentMsg struct {
	channel string
	msg     notify.Message
}

func (f *fakeSender) Send(_ context.Context, channel string, msg notify.Message) error {
	f.sent = append(f.sent, sentMsg{channel: channel, msg: msg})
	if err := f.failWith[channel]; err != nil {
		return err
	}
	return nil
}

type fakeDisarmer struct {
	handles []string
	err     error
}

func (f *fakeDisarmer) Disarm(_ context.Context, handle string) error {
	f.handles = append(f.handles, handle)
	return f.err
}

func payload() FirePayload {
	return FirePayload{
		TaskID:         "t1",
		Title:          "Pay rent",
		DueDate:        "2025-03-10",
		DueTime:        "09:00",
		EmailChannel:   true,
		RecipientEmail: "a@b.com",
		TriggerHandle:  Handle("t1", time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC)),
	}
}

func TestFireEmailOnly(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	cleaner := &fakeDisarmer{}
	d := NewDispatcher(sender, cleaner, time.Second, logx.Nop())

	res, err := d.Fire(context.Background(), payload())
	if err != nil {
		t.Fatalf("Fire error: %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0].channel != notify.ChannelEmail {
		t.Fatalf("expected exactly one email attempt, got %+v", sender.sent)
	}
	if ok, attempted := res.Delivered[notify.ChannelEmail]; !attempted || !ok {
		t.Fatalf("email result = %v (attempted=%v)", ok, attempted)
	}
	if _, attempted := res.Delivered[notify.ChannelSMS]; attempted {
		t.Fatal("sms must be absent when its channel is disabled")
	}
	if !res.Cleaned {
		t.Fatal("trigger must be cleaned after dispatch")
	}
	if len(cleaner.handles) != 1 {
		t.Fatalf("disarm calls = %d, want 1", len(cleaner.handles))
	}
}

func TestFireCleansUpAfterChannelFailure(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{failWith: map[string]error{notify.ChannelEmail: errors.New("smtp down")}}
	cleaner := &fakeDisarmer{}
	d := NewDispatcher(sender, cleaner, time.Second, logx.Nop())

	res, err := d.Fire(context.Background(), payload())
	if err != nil {
		t.Fatalf("Fire error: %v", err)
	}
	if res.Delivered[notify.ChannelEmail] {
		t.Fatal("email must be reported failed")
	}
	if !res.Cleaned {
		t.Fatal("cleanup must run even when delivery failed")
	}
}

func TestFireChannelsAreIndependent(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{failWith: map[string]error{notify.ChannelEmail: errors.New("smtp down")}}
	cleaner := &fakeDisarmer{}
	d := NewDispatcher(sender, cleaner, time.Second, logx.Nop())

	p := payload()
	p.SMSChannel = true
	p.RecipientPhone = "+15550100"

	res, err := d.Fire(context.Background(), p)
	if err != nil {
		t.Fatalf("Fire error: %v", err)
	}
	if len(sender.sent) != 2 {
		t.Fatalf("both channels must be attempted, got %d", len(sender.sent))
	}
	// Ordered: email first, then SMS.
	if sender.sent[0].channel != notify.ChannelEmail || sender.sent[1].channel != notify.ChannelSMS {
		t.Fatalf("unexpected channel order: %+v", sender.sent)
	}
	if res.Delivered[notify.ChannelEmail] || !res.Delivered[notify.ChannelSMS] {
		t.Fatalf("unexpected outcomes: %+v", res.Delivered)
	}
}

func TestFireTruncatesSMSBody(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	d := NewDispatcher(sender, &fakeDisarmer{}, time.Second, logx.Nop())

	p := payload()
	p.EmailChannel = false
	p.SMSChannel = true
	p.RecipientPhone = "+15550100"
	p.Title = strings.Repeat("x", 200)

	if _, err := d.Fire(context.Background(), p); err != nil {
		t.Fatalf("Fire error: %v", err)
	}
	body := sender.sent[0].msg.Body
	if len([]rune(body)) != 160 {
		t.Fatalf("sms body length = %d, want 160", len([]rune(body)))
	}
	if !strings.HasSuffix(body, "...") {
		t.Fatal("sms body must end with ellipsis")
	}
}

func TestFireRejectsMalformedPayload(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*FirePayload)
	}{
		{name: "missing task id", mutate: func(p *FirePayload) { p.TaskID = "" }},
		{name: "missing title", mutate: func(p *FirePayload) { p.Title = "" }},
		{name: "missing due date", mutate: func(p *FirePayload) { p.DueDate = "" }},
		{name: "missing due time", mutate: func(p *FirePayload) { p.DueTime = "" }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sender := &fakeSender{}
			cleaner := &fakeDisarmer{}
			d := NewDispatcher(sender, cleaner, time.Second, logx.Nop())

			p := payload()
			tt.mutate(&p)
			_, err := d.Fire(context.Background(), p)
			if !taskerr.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if len(sender.sent) != 0 {
				t.Fatal("no delivery for malformed payload")
			}
			if len(cleaner.handles) != 0 {
				t.Fatal("no cleanup for malformed payload")
			}
		})
	}
}

func TestFireReportsSuccessDespiteCleanupFailure(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	cleaner := &fakeDisarmer{err: errors.New("store unreachable")}
	d := NewDispatcher(sender, cleaner, time.Second, logx.Nop())

	res, err := d.Fire(context.Background(), payload())
	if err != nil {
		t.Fatalf("a cleanup failure must not fail the dispatch: %v", err)
	}
	if res.Cleaned {
		t.Fatal("Cleaned must be false when disarm failed")
	}
	if !res.Delivered[notify.ChannelEmail] {
		t.Fatal("delivery outcome must still be reported")
	}
}

func TestHandleTriggerDecodesPayload(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	d := NewDispatcher(sender, &fakeDisarmer{}, time.Second, logx.Nop())

	b, err := json.Marshal(payload())
	if err != nil {
		t.Fatal(err)
	}
	rec := storage.TriggerRecord{Name: TriggerName("t1"), Payload: b}
	if err := d.HandleTrigger(context.Background(), rec); err != nil {
		t.Fatalf("HandleTrigger: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected one delivery, got %d", len(sender.sent))
	}

	bad := storage.TriggerRecord{Name: "reminder:x", Payload: []byte("{")}
	if err := d.HandleTrigger(context.Background(), bad); !taskerr.IsValidation(err) {
		t.Fatalf("expected validation error for malformed payload, got %v", err)
	}
}
