package trigger

import (
	"context"
	"errors"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"taskping/internal/eventbus"
	"taskping/internal/storage"
	"taskping/pkg/logx"
)

// Engine is a durable delayed-job runner: each armed trigger becomes a named
// one-shot timer whose firing is drained through a bounded queue by a worker
// pool. Timers are runtime state; the storage rows are the persistent
// definitions, rebuilt into timers on Start.
type Engine struct {
	mu sync.Mutex

	log   logx.Logger
	cfg   Config
	store storage.TriggerStore
	bus   eventbus.Bus

	handler Handler

	queue  chan firing
	stopCh chan struct{}
	// stopDone is non-nil while a Stop() is in progress; it is closed when
	// workers fully exit.
	stopDone  chan struct{}
	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup

	// tmu guards the runtime timers. vers entries are monotonic per name so a
	// stale timer callback from a replaced trigger can be recognized and
	// dropped.
	tmu    sync.Mutex
	timers map[string]*time.Timer
	vers   map[string]uint64
}

func New(cfg Config, store storage.TriggerStore, log logx.Logger, bus eventbus.Bus) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		cfg:    cfg.withDefaults(),
		store:  store,
		log:    log,
		bus:    bus,
		timers: map[string]*time.Timer{},
		vers:   map[string]uint64{},
	}
}

// SetHandler installs the fire callback. Must be called before Start.
func (e *Engine) SetHandler(h Handler) {
	e.mu.Lock()
	e.handler = h
	e.mu.Unlock()
}

// Arm upserts the trigger in the store and (when running) schedules its timer.
// Re-arming the same name replaces the previous trigger, never duplicates it.
func (e *Engine) Arm(ctx context.Context, rec storage.TriggerRecord) error {
	if strings.TrimSpace(rec.Name) == "" {
		return errors.New("trigger name required")
	}
	if rec.FireAt.IsZero() {
		return errors.New("trigger fire time required")
	}
	if err := e.store.PutTrigger(ctx, rec); err != nil {
		return err
	}

	e.mu.Lock()
	running := e.stopCh != nil
	e.mu.Unlock()
	if running {
		e.armTimer(rec)
	}

	if e.bus != nil {
		e.bus.Publish(eventbus.Event{Type: eventbus.TypeTriggerArmed, Data: rec.Name})
	}
	e.log.Debug("trigger armed",
		logx.String("name", rec.Name), logx.Time("fire_at", rec.FireAt))
	return nil
}

// Disarm removes the trigger. A non-empty handle makes the removal
// conditional: if the stored row carries a different handle, a newer arm owns
// the trigger and both the row and its timer are left alone. A missing
// trigger is success either way.
func (e *Engine) Disarm(ctx context.Context, name, handle string) error {
	deleted, err := e.store.DeleteTrigger(ctx, name, handle)
	if err != nil {
		return err
	}
	if !deleted {
		e.log.Debug("trigger already gone", logx.String("name", name))
		return nil
	}

	e.tmu.Lock()
	if t, ok := e.timers[name]; ok {
		_ = t.Stop()
		delete(e.timers, name)
	}
	e.vers[name]++
	e.tmu.Unlock()

	if e.bus != nil {
		e.bus.Publish(eventbus.Event{Type: eventbus.TypeTriggerDisarmed, Data: name})
	}
	e.log.Debug("trigger disarmed", logx.String("name", name))
	return nil
}

// Start launches the worker pool and rebuilds timers from the store.
// Triggers that came due while the process was down fire immediately.
func (e *Engine) Start(ctx context.Context) error {
	// If a Stop() is in progress, wait for it to complete (prevents double
	// worker pools).
	for {
		e.mu.Lock()
		if e.stopCh == nil {
			break
		}
		done := e.stopDone
		if done == nil {
			// already running
			e.mu.Unlock()
			return nil
		}
		e.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	e.stopCh = make(chan struct{})
	e.runCtx, e.runCancel = context.WithCancel(ctx)
	// Fresh queue per run so a stop/start toggle doesn't execute stale firings.
	e.queue = make(chan firing, e.cfg.QueueSize)
	workers := e.cfg.Workers

	runCtx := e.runCtx
	stopCh := e.stopCh
	queue := e.queue
	e.mu.Unlock()

	e.workerWG.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer e.workerWG.Done()
			defer func() {
				if r := recover(); r != nil {
					e.log.Error("panic in trigger worker",
						logx.Int("worker", idx), logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())))
				}
			}()
			e.worker(runCtx, stopCh, queue, idx)
		}()
	}

	recs, err := e.store.ListTriggers(ctx)
	if err != nil {
		e.log.Error("trigger rebuild scan failed", logx.Err(err))
		return err
	}
	for _, rec := range recs {
		e.armTimer(rec)
	}
	e.log.Info("trigger engine started",
		logx.Int("workers", workers), logx.Int("rebuilt", len(recs)))
	return nil
}

// Stop halts timers and workers. Persistent trigger rows are kept so they
// resume on the next Start.
func (e *Engine) Stop(ctx context.Context) {
	start := time.Now()
	e.mu.Lock()
	if e.stopCh == nil {
		e.mu.Unlock()
		return
	}
	if e.stopDone != nil {
		done := e.stopDone
		e.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	e.stopDone = done
	stopCh := e.stopCh
	cancel := e.runCancel
	e.runCancel = nil
	e.mu.Unlock()

	close(stopCh)
	if cancel != nil {
		cancel()
	}

	e.tmu.Lock()
	for _, t := range e.timers {
		_ = t.Stop()
	}
	e.timers = map[string]*time.Timer{}
	e.tmu.Unlock()

	// Finalize cleanup in background so Stop() can return on timeout safely.
	go func() {
		e.workerWG.Wait()
		e.mu.Lock()
		e.stopCh = nil
		e.runCtx = nil
		e.queue = nil
		e.stopDone = nil
		e.mu.Unlock()
		close(done)
		e.log.Info("trigger engine stopped", logx.Duration("took", time.Since(start)))
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// stop continues in background
	}
}

// armTimer schedules (or reschedules) the runtime timer for rec. An overdue
// fire time collapses to an immediate fire.
func (e *Engine) armTimer(rec storage.TriggerRecord) {
	e.tmu.Lock()
	if t, ok := e.timers[rec.Name]; ok {
		_ = t.Stop()
		delete(e.timers, rec.Name)
	}
	ver := e.vers[rec.Name] + 1
	e.vers[rec.Name] = ver

	name := rec.Name
	localVer := ver
	delay := time.Until(rec.FireAt)
	if delay < 0 {
		delay = 0
	}
	timer := time.AfterFunc(delay, func() {
		// If the trigger was disarmed or replaced, ignore this callback.
		e.tmu.Lock()
		if e.vers[name] != localVer {
			e.tmu.Unlock()
			return
		}
		delete(e.timers, name)
		e.tmu.Unlock()

		e.enqueue(firing{rec: rec, enqueued: time.Now()})
	})
	e.timers[name] = timer
	e.tmu.Unlock()
}

func (e *Engine) enqueue(f firing) {
	e.mu.Lock()
	q := e.queue
	e.mu.Unlock()
	if q == nil {
		e.log.Debug("engine not running; dropping fire", logx.String("name", f.rec.Name))
		return
	}
	select {
	case q <- f:
	default:
		e.log.Warn("trigger queue full; dropping fire",
			logx.String("name", f.rec.Name),
			logx.Int("queue_len", len(q)), logx.Int("queue_cap", cap(q)))
	}
}

func (e *Engine) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan firing, idx int) {
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case f := <-queue:
			e.fireOne(ctx, f)
		}
	}
}

func (e *Engine) fireOne(ctx context.Context, f firing) {
	e.mu.Lock()
	h := e.handler
	timeout := e.cfg.FireTimeout
	e.mu.Unlock()

	if h == nil {
		e.log.Error("trigger fired with no handler installed", logx.String("name", f.rec.Name))
		return
	}
	if e.bus != nil {
		e.bus.Publish(eventbus.Event{Type: eventbus.TypeTriggerFired, Data: f.rec.Name})
	}

	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	err := h(runCtx, f.rec)
	cancel()

	dur := time.Since(start)
	if err != nil {
		e.log.Warn("trigger handler failed",
			logx.String("name", f.rec.Name), logx.Err(err), logx.Duration("dur", dur))
		return
	}
	e.log.Debug("trigger handled",
		logx.String("name", f.rec.Name), logx.Duration("dur", dur),
		logx.Duration("queued", start.Sub(f.enqueued)))
}
