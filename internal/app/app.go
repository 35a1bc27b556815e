// Package app wires the scheduling subsystem together: config, logging,
// storage, the trigger engine, delivery channels, the daily recurrence
// expansion, and the task lifecycle hooks.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"taskping/internal/config"
	"taskping/internal/eventbus"
	"taskping/internal/lifecycle"
	"taskping/internal/notify"
	"taskping/internal/recurrence"
	"taskping/internal/reminder"
	"taskping/internal/storage"
	"taskping/internal/trigger"
	"taskping/pkg/logx"
)

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	store    storage.Store
	bus      eventbus.Bus
	engine   *trigger.Engine
	notifier *notify.Service
	sched    *reminder.Scheduler
	disp     *reminder.Dispatcher
	expander *recurrence.Expander
	hooks    *lifecycle.Hooks

	cron       *cron.Cron
	loc        *time.Location
	runTimeout time.Duration

	watchCancel context.CancelFunc
	cfgCh       chan *config.Config
	busUnsub    func()
}

// New loads and validates the config file and builds the full component
// graph. Nothing runs until Start.
func New(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	mgr.SetValidator(func(_ context.Context, c *config.Config) error {
		return config.Validate(c)
	})

	logSvc, log := logx.New(loggingConfig(cfg))
	mgr.SetLogger(log)

	busyTimeout, _ := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        storagePath(cfg),
		BusyTimeout: busyTimeout,
	}, log)
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	loc := time.Local
	if tz := strings.TrimSpace(cfg.Expansion.Timezone); tz != "" {
		// Validate() already vetted the zone name.
		loc, _ = time.LoadLocation(tz)
	}

	fireTimeout, _ := config.ParseDurationOrDefault("engine.fire_timeout", cfg.Engine.FireTimeout, 30*time.Second)
	channelTimeout, _ := config.ParseDurationOrDefault("delivery.channel_timeout", cfg.Delivery.ChannelTimeout, 10*time.Second)
	runTimeout, _ := config.ParseDurationOrDefault("expansion.run_timeout", cfg.Expansion.RunTimeout, 5*time.Minute)

	bus := eventbus.New()
	engine := trigger.New(trigger.Config{
		Workers:     cfg.Engine.Workers,
		QueueSize:   cfg.Engine.QueueSize,
		FireTimeout: fireTimeout,
	}, store, log, bus)

	notifier := notify.NewService(notify.Config{RatePerSec: cfg.Delivery.RatePerSec}, log, bus)
	notifier.Register(notify.NewEmail(notify.EmailConfig{
		SMTPAddr: cfg.Delivery.Email.SMTPAddr,
		From:     cfg.Delivery.Email.From,
		Username: cfg.Delivery.Email.Username,
		Password: cfg.Delivery.Email.Password,
	}))
	notifier.Register(notify.NewSMS(notify.SMSConfig{
		WebhookURL: cfg.Delivery.SMS.WebhookURL,
		Token:      cfg.Delivery.SMS.Token,
	}))

	sched := reminder.NewScheduler(engine, loc, log)
	disp := reminder.NewDispatcher(notifier, sched, channelTimeout, log)
	engine.SetHandler(disp.HandleTrigger)

	expander := recurrence.New(store, sched, cfg.Expansion.PageSize, log, bus)
	hooks := lifecycle.New(store, sched, log)

	a := &App{
		cfgMgr:     mgr,
		logSvc:     logSvc,
		log:        log,
		store:      store,
		bus:        bus,
		engine:     engine,
		notifier:   notifier,
		sched:      sched,
		disp:       disp,
		expander:   expander,
		hooks:      hooks,
		loc:        loc,
		runTimeout: runTimeout,
	}

	if expansionEnabled(cfg) {
		a.cron = cron.New(cron.WithLocation(loc))
		spec, err := dailySpec(cfg.Expansion.RunAt)
		if err != nil {
			_ = store.Close()
			_ = logSvc.Close()
			return nil, err
		}
		if _, err := a.cron.AddFunc(spec, a.runExpansion); err != nil {
			_ = store.Close()
			_ = logSvc.Close()
			return nil, fmt.Errorf("register expansion schedule: %w", err)
		}
	}
	return a, nil
}

// Hooks exposes the task lifecycle glue to the embedding server.
func (a *App) Hooks() *lifecycle.Hooks { return a.hooks }

// Scheduler exposes arm/disarm to the embedding server.
func (a *App) Scheduler() *reminder.Scheduler { return a.sched }

// Expander exposes the batch entry point (also used by an ops re-run).
func (a *App) Expander() *recurrence.Expander { return a.expander }

// Bus exposes the in-process event stream.
func (a *App) Bus() eventbus.Bus { return a.bus }

func loggingConfig(cfg *config.Config) logx.Config {
	console := true
	if cfg.Logging.Console != nil {
		console = *cfg.Logging.Console
	}
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func storagePath(cfg *config.Config) string {
	if p := strings.TrimSpace(cfg.Storage.Path); p != "" {
		return p
	}
	return "./taskping.db"
}

func expansionEnabled(cfg *config.Config) bool {
	return cfg.Expansion.Enabled == nil || *cfg.Expansion.Enabled
}

// dailySpec builds a 5-field cron spec firing once a day at HH:MM.
func dailySpec(runAt string) (string, error) {
	if strings.TrimSpace(runAt) == "" {
		runAt = "00:05"
	}
	h, m, err := config.ParseHHMM(runAt)
	if err != nil {
		return "", fmt.Errorf("expansion.run_at: %w", err)
	}
	return fmt.Sprintf("%d %d * * *", m, h), nil
}
