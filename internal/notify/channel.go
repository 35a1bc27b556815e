package notify

import "context"

// Channel names used in payloads, results, and logs.
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Message is one notification to one recipient. Subject is ignored by
// channels without a subject line (SMS).
type Message struct {
	Recipient string
	Subject   string
	Body      string
}

// Channel is an independent delivery path. Send failures are isolated by the
// caller; a channel never sees its siblings.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}
