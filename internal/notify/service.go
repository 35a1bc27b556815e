package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"taskping/internal/eventbus"
	"taskping/internal/taskerr"
	"taskping/pkg/logx"
)

// Config controls the shared delivery behavior in front of all channels.
type Config struct {
	RatePerSec int // token bucket shared by all channels; default 5
}

// Service routes messages to registered channels behind a shared rate limit.
// It is safe for concurrent use.
type Service struct {
	mu       sync.Mutex
	channels map[string]Channel
	limiter  *rate.Limiter

	log logx.Logger
	bus eventbus.Bus
}

func NewService(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 5
	}
	return &Service{
		channels: map[string]Channel{},
		// Token bucket: burst = rate per sec, so short spikes don't block too hard.
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     log,
		bus:     bus,
	}
}

// Register installs a channel under its own name, replacing any previous one.
func (s *Service) Register(ch Channel) {
	s.mu.Lock()
	s.channels[ch.Name()] = ch
	s.mu.Unlock()
}

// Send delivers msg over the named channel, honoring the shared rate limit.
// Errors come back wrapped as ChannelDelivery so callers can isolate them.
func (s *Service) Send(ctx context.Context, channel string, msg Message) error {
	s.mu.Lock()
	ch := s.channels[channel]
	s.mu.Unlock()
	if ch == nil {
		return taskerr.ChannelDelivery(channel, fmt.Errorf("channel not registered"))
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return taskerr.ChannelDelivery(channel, err)
	}

	start := time.Now()
	if err := ch.Send(ctx, msg); err != nil {
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: eventbus.TypeChannelFailed, Data: channel})
		}
		s.log.Warn("channel send failed",
			logx.String("channel", channel), logx.Err(err),
			logx.Duration("dur", time.Since(start)))
		return taskerr.ChannelDelivery(channel, err)
	}

	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeChannelSent, Data: channel})
	}
	s.log.Debug("channel send ok",
		logx.String("channel", channel), logx.Duration("dur", time.Since(start)))
	return nil
}
