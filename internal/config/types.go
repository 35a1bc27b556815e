package config

// Config is the root of taskping.yaml (or .json).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Engine    EngineConfig    `json:"engine"`
	Delivery  DeliveryConfig  `json:"delivery"`
	Expansion ExpansionConfig `json:"expansion"`
}

type LoggingConfig struct {
	Level   string        `json:"level,omitempty"`
	Console *bool         `json:"console,omitempty"`
	File    LogFileConfig `json:"file,omitempty"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig controls the durable task/trigger store.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "memory": in-process store, state lost on restart (tests / dev)
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// EngineConfig controls the one-shot trigger engine.
//
// Defaults (when fields are omitted/zero):
//   - workers: 2
//   - queue_size: 256
//   - fire_timeout: "30s"
type EngineConfig struct {
	Workers     int    `json:"workers,omitempty"`
	QueueSize   int    `json:"queue_size,omitempty"`
	FireTimeout string `json:"fire_timeout,omitempty"`
}

// DeliveryConfig controls the notification channels.
type DeliveryConfig struct {
	// ChannelTimeout bounds a single channel attempt so a hung provider
	// cannot block the trigger's cleanup step.
	ChannelTimeout string `json:"channel_timeout,omitempty"` // default "10s"
	RatePerSec     int    `json:"rate_per_sec,omitempty"`    // default 5

	Email EmailConfig `json:"email,omitempty"`
	SMS   SMSConfig   `json:"sms,omitempty"`
}

type EmailConfig struct {
	SMTPAddr string `json:"smtp_addr,omitempty"` // host:port
	From     string `json:"from,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"` // do not log
}

type SMSConfig struct {
	WebhookURL string `json:"webhook_url,omitempty"`
	Token      string `json:"token,omitempty"` // bearer token, do not log
}

// ExpansionConfig controls the daily recurrence-expansion batch.
type ExpansionConfig struct {
	Enabled *bool `json:"enabled,omitempty"` // default true

	// RunAt is the local HH:MM at which the daily run fires.
	RunAt string `json:"run_at,omitempty"` // default "00:05"

	// Timezone is the IANA zone used for "today" and fire-time math.
	Timezone string `json:"timezone,omitempty"` // default local

	// PageSize bounds a single template-scan page.
	PageSize int `json:"page_size,omitempty"` // default 100

	RunTimeout string `json:"run_timeout,omitempty"` // default "5m"
}
