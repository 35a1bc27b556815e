package trigger

import (
	"context"
	"time"

	"taskping/internal/storage"
)

// Config controls the trigger engine.
type Config struct {
	Workers     int           // default 2
	QueueSize   int           // default 256
	FireTimeout time.Duration // per-fire bound; default 30s
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.FireTimeout <= 0 {
		c.FireTimeout = 30 * time.Second
	}
	return c
}

// Handler consumes a fired trigger. It is invoked exactly once per fire on a
// worker goroutine; the engine does not retry a failed handler.
type Handler func(ctx context.Context, rec storage.TriggerRecord) error

type firing struct {
	rec      storage.TriggerRecord
	enqueued time.Time
}
