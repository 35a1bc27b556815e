package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Validate checks the whole config for structural problems. It is used both at
// startup and as the Watch() validator hook, so a bad edit never reaches
// running services.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "sqlite", "sqlite3", "memory":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver)
	}
	if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		return err
	}

	if cfg.Engine.Workers < 0 {
		return fmt.Errorf("engine.workers: must be >= 0")
	}
	if cfg.Engine.QueueSize < 0 {
		return fmt.Errorf("engine.queue_size: must be >= 0")
	}
	if _, err := ParseDurationField("engine.fire_timeout", cfg.Engine.FireTimeout); err != nil {
		return err
	}

	if _, err := ParseDurationField("delivery.channel_timeout", cfg.Delivery.ChannelTimeout); err != nil {
		return err
	}
	if cfg.Delivery.RatePerSec < 0 {
		return fmt.Errorf("delivery.rate_per_sec: must be >= 0")
	}

	if cfg.Expansion.RunAt != "" {
		if _, _, err := ParseHHMM(cfg.Expansion.RunAt); err != nil {
			return fmt.Errorf("expansion.run_at: %w", err)
		}
	}
	if tz := strings.TrimSpace(cfg.Expansion.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("expansion.timezone: %w", err)
		}
	}
	if cfg.Expansion.PageSize < 0 {
		return fmt.Errorf("expansion.page_size: must be >= 0")
	}
	if _, err := ParseDurationField("expansion.run_timeout", cfg.Expansion.RunTimeout); err != nil {
		return err
	}
	return nil
}

// ParseHHMM parses a wall-clock "HH:MM" string.
func ParseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
