package app

import (
	"context"
	"time"

	"taskping/internal/config"
	"taskping/internal/eventbus"
	"taskping/pkg/logx"
)

// Start brings the services up in dependency order and begins watching the
// config file for hot reloads.
func (a *App) Start(ctx context.Context) error {
	if err := a.engine.Start(ctx); err != nil {
		return err
	}
	if a.cron != nil {
		a.cron.Start()
		a.log.Info("daily expansion scheduled", logx.String("tz", a.loc.String()))
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	a.watchCancel = cancel
	a.cfgCh = a.cfgMgr.Subscribe(4)
	go func() {
		_ = a.cfgMgr.Watch(watchCtx)
	}()
	go a.reloadLoop(watchCtx)

	busCh, busUnsub := a.bus.Subscribe(32)
	a.busUnsub = busUnsub
	go a.eventLoop(busCh)

	a.log.Info("taskping started")
	return nil
}

// Stop tears everything down in reverse order. The trigger store keeps its
// rows; pending reminders resume on the next start.
func (a *App) Stop(ctx context.Context) error {
	if a.watchCancel != nil {
		a.watchCancel()
		a.watchCancel = nil
	}
	if a.cfgCh != nil {
		a.cfgMgr.Unsubscribe(a.cfgCh)
		a.cfgCh = nil
	}
	if a.busUnsub != nil {
		a.busUnsub()
		a.busUnsub = nil
	}

	if a.cron != nil {
		stopCtx := a.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
		}
	}
	a.engine.Stop(ctx)

	if err := a.store.Close(); err != nil {
		a.log.Warn("storage close failed", logx.Err(err))
	}
	a.log.Info("taskping stopped")
	_ = a.logSvc.Close()
	return nil
}

// reloadLoop applies hot-reloadable config sections. Only logging is live
// today; engine/delivery changes need a restart and say so in the log.
func (a *App) reloadLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-a.cfgCh:
			if !ok {
				return
			}
			if cfg == nil {
				continue
			}
			a.logSvc.Apply(loggingConfig(cfg))
			a.log.Info("logging config applied; engine and delivery changes take effect on restart")
		}
	}
}

// eventLoop drains the core event stream into the operational log, one line
// per trigger/delivery/expansion event. It exits when Stop unsubscribes and
// the channel closes.
func (a *App) eventLoop(ch <-chan eventbus.Event) {
	for ev := range ch {
		switch ev.Type {
		case eventbus.TypeChannelFailed:
			a.log.Warn("event", logx.String("type", ev.Type), logx.Any("data", ev.Data))
		case eventbus.TypeExpansionDone:
			a.log.Info("event", logx.String("type", ev.Type), logx.Any("data", ev.Data))
		default:
			a.log.Debug("event", logx.String("type", ev.Type), logx.Any("data", ev.Data))
		}
	}
}

// runExpansion is the cron-invoked daily batch.
func (a *App) runExpansion() {
	ctx, cancel := context.WithTimeout(context.Background(), a.runTimeout)
	defer cancel()
	now := time.Now().In(a.loc)
	if _, err := a.expander.RunAt(ctx, now); err != nil {
		a.log.Error("daily expansion run failed", logx.Err(err))
	}
}

// ValidateFile is a helper for `taskpingd -check`: parse + validate without
// building the component graph.
func ValidateFile(path string) error {
	mgr := config.NewManager(path)
	cfg, err := mgr.Load()
	if err != nil {
		return err
	}
	return config.Validate(cfg)
}
