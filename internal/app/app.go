// Package app wires the daemon together: config, logging, storage,
// delivery port, timeline provider, scheduling coordinator, cron
// refresher and self-test verifier.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"shiftwatch/internal/config"
	"shiftwatch/internal/eventbus"
	"shiftwatch/internal/notify"
	"shiftwatch/internal/notify/local"
	"shiftwatch/internal/notify/telegram"
	"shiftwatch/internal/runtime/supervisor"
	"shiftwatch/internal/schedule"
	"shiftwatch/internal/selftest"
	"shiftwatch/internal/storage"
	"shiftwatch/internal/timeline"
	logx "shiftwatch/pkg/logx"
)

type App struct {
	cfgPath string

	mgr *config.Manager
	sup *supervisor.Supervisor

	log      logx.Logger
	logs     *logx.Service
	bus      eventbus.Bus
	store    storage.Store
	settings *config.SettingsStore

	provider  timeline.Provider
	loc       *time.Location
	port      notify.Port
	portStart func(ctx context.Context) // non-nil for ports that poll
	portClose func()

	coord     *schedule.Coordinator
	refresher *schedule.Refresher
	verifier  *selftest.Verifier
}

func New(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	mgr.SetLogger(log.With(logx.String("comp", "config")))

	bus := eventbus.New()

	var store storage.Store
	if cfg.Storage != nil {
		sc := storage.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			BusyTimeout: config.ParseDuration(cfg.Storage.BusyTimeout, 0),
		}
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			logSvc.Close()
			return nil, err
		}
		if st != nil {
			store = st
			log.Info("storage enabled", logx.String("driver", sc.Driver))
		}
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		closeAll(store, logSvc)
		return nil, err
	}
	loc, err := scheduleLocation(cfg, provider)
	if err != nil {
		closeAll(store, logSvc)
		return nil, err
	}

	port, portStart, portClose, err := buildPort(cfg, bus, log)
	if err != nil {
		closeAll(store, logSvc)
		return nil, err
	}

	if strings.TrimSpace(cfg.SettingsPath) == "" {
		portClose()
		closeAll(store, logSvc)
		return nil, errors.New("settings_path is required")
	}
	settings := config.NewSettingsStore(cfg.SettingsPath, cfg.LegacySettingsPath,
		log.With(logx.String("comp", "settings")))

	coord := schedule.New(schedule.Options{
		Provider:      provider,
		Port:          port,
		Settings:      settings,
		Store:         store,
		Bus:           bus,
		Log:           log.With(logx.String("comp", "schedule")),
		SystemID:      cfg.Shift.System,
		Location:      loc,
		LookaheadDays: cfg.Schedule.LookaheadDays,
		Debounce:      config.ParseDuration(cfg.Schedule.Debounce, 0),
		RatePerSec:    cfg.Schedule.RatePerSec,
	})

	refresher, err := schedule.NewRefresher(cfg.Schedule.RefreshCron, coord,
		log.With(logx.String("comp", "refresh")))
	if err != nil {
		portClose()
		closeAll(store, logSvc)
		return nil, fmt.Errorf("refresh_cron: %w", err)
	}

	verifier := selftest.New(selftest.Options{
		Port: port,
		Bus:  bus,
		Log:  log.With(logx.String("comp", "selftest")),
	})

	return &App{
		cfgPath:   cfgPath,
		mgr:       mgr,
		log:       log,
		logs:      logSvc,
		bus:       bus,
		store:     store,
		settings:  settings,
		provider:  provider,
		loc:       loc,
		port:      port,
		portStart: portStart,
		portClose: portClose,
		coord:     coord,
		refresher: refresher,
		verifier:  verifier,
	}, nil
}

func (a *App) Coordinator() *schedule.Coordinator { return a.coord }
func (a *App) Verifier() *selftest.Verifier       { return a.verifier }
func (a *App) Settings() *config.SettingsStore    { return a.settings }
func (a *App) Provider() timeline.Provider        { return a.provider }
func (a *App) Store() storage.Store               { return a.store }
func (a *App) Location() *time.Location           { return a.loc }
func (a *App) Config() *config.Config             { return a.mgr.Get() }
func (a *App) Log() logx.Logger                   { return a.log }

// Done is closed when the supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	if a.portStart != nil {
		a.portStart(a.sup.Context())
	}

	// Config file watch with hot reload of the logging section; any
	// committed change also queues a rebuild.
	a.sup.GoRestart("config-watch", func(ctx context.Context) error {
		return a.mgr.Watch(ctx)
	})
	a.sup.Go0("config-reload", func(ctx context.Context) {
		ch := a.mgr.Subscribe(4)
		defer a.mgr.Unsubscribe(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case cfg, ok := <-ch:
				if !ok {
					return
				}
				a.applyReload(cfg)
			}
		}
	})

	a.refresher.Start()

	// First rebuild happens immediately so a restart never leaves the
	// platform holding yesterday's plan.
	a.sup.Go0("initial-rebuild", func(ctx context.Context) {
		if _, ok := a.coord.Rebuild(ctx); !ok {
			a.log.Warn("initial rebuild dropped")
		}
	})

	a.log.Info("started", logx.String("config", a.cfgPath))
	return nil
}

func (a *App) applyReload(cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigChanged})
	a.log.Info("config reloaded")
	a.coord.RebuildDebounced()
}

func (a *App) Stop(ctx context.Context) error {
	a.refresher.Stop()
	a.coord.Stop()
	if a.sup != nil {
		_ = a.sup.Stop(ctx)
	}
	if a.portClose != nil {
		a.portClose()
	}
	var err error
	if a.store != nil {
		err = a.store.Close()
	}
	a.log.Info("stopped")
	a.logs.Close()
	return err
}

func buildProvider(cfg *config.Config) (timeline.Provider, error) {
	phases := map[string]timeline.PhaseClock{}
	for name, h := range cfg.Shift.Phases {
		phases[name] = timeline.PhaseClock{Start: h.Start, End: h.End}
	}
	return timeline.NewRotation(timeline.RotationConfig{
		SystemID: cfg.Shift.System,
		Timezone: cfg.Schedule.Timezone,
		Anchor:   cfg.Shift.Anchor,
		Pattern:  cfg.Shift.Pattern,
		Phases:   phases,
	})
}

func scheduleLocation(cfg *config.Config, provider timeline.Provider) (*time.Location, error) {
	if r, ok := provider.(*timeline.Rotation); ok {
		return r.Location(), nil
	}
	tz := strings.TrimSpace(cfg.Schedule.Timezone)
	if tz == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(tz)
}

func buildPort(cfg *config.Config, bus eventbus.Bus, log logx.Logger) (notify.Port, func(context.Context), func(), error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Delivery.Driver))
	switch driver {
	case "", "local":
		p := local.New(bus, log.With(logx.String("comp", "delivery")))
		return p, nil, p.Close, nil

	case "telegram":
		if cfg.Delivery.Telegram == nil {
			return nil, nil, nil, errors.New("delivery.telegram section is required for the telegram driver")
		}
		p, err := telegram.New(telegram.Config{
			Token:       cfg.Delivery.Telegram.Token,
			ChatID:      cfg.Delivery.Telegram.ChatID,
			PollTimeout: config.ParseDuration(cfg.Delivery.Telegram.PollTimeout, 0),
		}, bus, log.With(logx.String("comp", "delivery")))
		if err != nil {
			return nil, nil, nil, err
		}
		return p, p.Start, p.Close, nil

	default:
		return nil, nil, nil, errors.New("unknown delivery driver: " + driver)
	}
}

func closeAll(store storage.Store, logs *logx.Service) {
	if store != nil {
		_ = store.Close()
	}
	logs.Close()
}
