package notify

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
)

// EmailConfig configures the SMTP channel.
type EmailConfig struct {
	SMTPAddr string // host:port
	From     string
	Username string
	Password string // do not log
}

type emailChannel struct {
	cfg EmailConfig
}

// NewEmail returns the SMTP-backed email channel.
func NewEmail(cfg EmailConfig) Channel {
	return &emailChannel{cfg: cfg}
}

func (c *emailChannel) Name() string { return ChannelEmail }

func (c *emailChannel) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(c.cfg.SMTPAddr) == "" {
		return errors.New("email channel not configured (smtp_addr missing)")
	}
	if strings.TrimSpace(msg.Recipient) == "" {
		return errors.New("recipient email missing")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", c.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.Recipient)
	fmt.Fprintf(&b, "Subject: %s\r\n", sanitizeHeader(msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)

	var auth smtp.Auth
	if c.cfg.Username != "" {
		host := c.cfg.SMTPAddr
		if i := strings.LastIndex(host, ":"); i >= 0 {
			host = host[:i]
		}
		auth = smtp.PlainAuth("", c.cfg.Username, c.cfg.Password, host)
	}

	// net/smtp has no context support; run the dial+send in a goroutine so the
	// caller's per-channel timeout still bounds a hung server.
	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(c.cfg.SMTPAddr, auth, c.cfg.From, []string{msg.Recipient}, []byte(b.String()))
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sanitizeHeader strips CR/LF so message fields cannot inject headers.
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.ReplaceAll(s, "\n", " ")
}
