package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// SMSConfig configures the webhook-backed SMS channel. The provider is any
// HTTP endpoint accepting {"to": ..., "body": ...} with an optional bearer
// token (gateway services and most SMS aggregators expose this shape).
type SMSConfig struct {
	WebhookURL string
	Token      string // do not log
}

type smsChannel struct {
	cfg    SMSConfig
	client *http.Client
}

// NewSMS returns the webhook-backed SMS channel.
func NewSMS(cfg SMSConfig) Channel {
	return &smsChannel{cfg: cfg, client: &http.Client{}}
}

func (c *smsChannel) Name() string { return ChannelSMS }

func (c *smsChannel) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(c.cfg.WebhookURL) == "" {
		return errors.New("sms channel not configured (webhook_url missing)")
	}
	if strings.TrimSpace(msg.Recipient) == "" {
		return errors.New("recipient phone missing")
	}

	body, err := json.Marshal(map[string]string{
		"to":   msg.Recipient,
		"body": msg.Body,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("sms provider returned %s", resp.Status)
	}
	return nil
}
