package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"taskping/internal/eventbus"
	"taskping/internal/taskerr"
	"taskping/pkg/logx"
)

type stubChannel struct {
	mu   sync.Mutex
	name string
	sent []Message
	err  error
}

func (c *stubChannel) Name() string { return c.name }

func (c *stubChannel) Send(_ context.Context, msg Message) error {
	c.mu.Lock()
	c.sent = append(c.sent, msg)
	c.mu.Unlock()
	return c.err
}

func TestServiceRoutesByChannelName(t *testing.T) {
	t.Parallel()
	email := &stubChannel{name: ChannelEmail}
	sms := &stubChannel{name: ChannelSMS}
	svc := NewService(Config{}, logx.Nop(), nil)
	svc.Register(email)
	svc.Register(sms)

	msg := Message{Recipient: "+491511234", Body: "hi"}
	if err := svc.Send(context.Background(), ChannelSMS, msg); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(sms.sent) != 1 || len(email.sent) != 0 {
		t.Fatalf("sms=%d email=%d, want 1/0", len(sms.sent), len(email.sent))
	}
}

func TestServiceWrapsChannelErrors(t *testing.T) {
	t.Parallel()
	ch := &stubChannel{name: ChannelEmail, err: errors.New("smtp down")}
	svc := NewService(Config{}, logx.Nop(), nil)
	svc.Register(ch)

	err := svc.Send(context.Background(), ChannelEmail, Message{Recipient: "a@b.com"})
	if err == nil {
		t.Fatal("expected error")
	}
	if taskerr.KindOf(err) != taskerr.KindChannelDelivery {
		t.Fatalf("kind = %v, want channel delivery", taskerr.KindOf(err))
	}
}

func TestServicePublishesDeliveryEvents(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	ok := &stubChannel{name: ChannelEmail}
	bad := &stubChannel{name: ChannelSMS, err: errors.New("gateway down")}
	svc := NewService(Config{}, logx.Nop(), bus)
	svc.Register(ok)
	svc.Register(bad)

	if err := svc.Send(context.Background(), ChannelEmail, Message{Recipient: "a@b.com"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	_ = svc.Send(context.Background(), ChannelSMS, Message{Recipient: "+49151"})

	for _, want := range []struct{ typ, channel string }{
		{eventbus.TypeChannelSent, ChannelEmail},
		{eventbus.TypeChannelFailed, ChannelSMS},
	} {
		select {
		case ev := <-events:
			if ev.Type != want.typ || ev.Data != want.channel {
				t.Fatalf("event = %+v, want (%s, %s)", ev, want.typ, want.channel)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("missing %s event", want.typ)
		}
	}
}

func TestServiceRejectsUnknownChannel(t *testing.T) {
	t.Parallel()
	svc := NewService(Config{}, logx.Nop(), nil)
	err := svc.Send(context.Background(), "pigeon", Message{})
	if taskerr.KindOf(err) != taskerr.KindChannelDelivery {
		t.Fatalf("got %v", err)
	}
}

func TestSMSPostsWebhookPayload(t *testing.T) {
	t.Parallel()
	var (
		mu   sync.Mutex
		got  map[string]string
		auth string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	ch := NewSMS(SMSConfig{WebhookURL: srv.URL, Token: "sekrit"})
	err := ch.Send(context.Background(), Message{Recipient: "+4915112345678", Body: "task due"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if got["to"] != "+4915112345678" || got["body"] != "task due" {
		t.Fatalf("payload = %v", got)
	}
	if auth != "Bearer sekrit" {
		t.Fatalf("auth = %q", auth)
	}
}

func TestSMSNonSuccessStatusIsError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ch := NewSMS(SMSConfig{WebhookURL: srv.URL})
	if err := ch.Send(context.Background(), Message{Recipient: "+49151"}); err == nil {
		t.Fatal("non-2xx must be an error")
	}
}

func TestSMSRequiresConfiguration(t *testing.T) {
	t.Parallel()
	ch := NewSMS(SMSConfig{})
	if err := ch.Send(context.Background(), Message{Recipient: "+49151"}); err == nil {
		t.Fatal("missing webhook url must be an error")
	}
	ch = NewSMS(SMSConfig{WebhookURL: "http://example.com"})
	if err := ch.Send(context.Background(), Message{}); err == nil {
		t.Fatal("missing recipient must be an error")
	}
}
