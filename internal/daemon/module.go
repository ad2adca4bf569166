package daemon

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/matheus3301/tgchats/internal/api"
	"github.com/matheus3301/tgchats/internal/bus"
	"github.com/matheus3301/tgchats/internal/config"
	"github.com/matheus3301/tgchats/internal/dispatch"
	"github.com/matheus3301/tgchats/internal/lock"
	"github.com/matheus3301/tgchats/internal/logging"
	"github.com/matheus3301/tgchats/internal/scrape"
	"github.com/matheus3301/tgchats/internal/session"
	"github.com/matheus3301/tgchats/internal/state"
	"github.com/matheus3301/tgchats/internal/status"
	"github.com/matheus3301/tgchats/internal/store"
	intsync "github.com/matheus3301/tgchats/internal/sync"
	"github.com/matheus3301/tgchats/internal/telegram"
	"github.com/matheus3301/tgchats/internal/worker"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const scrapeTimeout = 15 * time.Second

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string // optional override for testing; empty = use default
	ConfigPath  string // optional override; empty = ~/.tgchats/config.toml
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideState,
			provideMainClient,
			provideRegistry,
			provideScraper,
			provideDispatcher,
			provideIntegrator,
			provideReconciler,
			provideSyncEngine,
			provideController,
			provideStateService,
			provideAuthService,
			provideMediaService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	path := p.ConfigPath
	if path == "" {
		path = session.ConfigPath()
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName, cfg.LogLevel)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

// provideStore takes the lock so the cache is never opened by a second daemon.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.CachePath(p.SessionName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideState(b *bus.Bus, db *store.DB, logger *zap.Logger) *state.Store {
	st := state.New(b)
	photos, err := db.ListPhotos(context.Background())
	if err != nil {
		logger.Warn("could not preload cached thumbnails", zap.Error(err))
		return st
	}
	st.LoadThumbnails(photos)
	logger.Info("cached thumbnails loaded", zap.Int("count", len(photos)))
	return st
}

func telegramConfig(cfg *config.Config) telegram.Config {
	return telegram.Config{AppID: cfg.Telegram.AppID, AppHash: cfg.Telegram.AppHash, DC: cfg.Telegram.DC}
}

func provideMainClient(p Params, _ *lock.Lock, cfg *config.Config, logger *zap.Logger) telegram.Client {
	return telegram.NewFileClient(telegramConfig(cfg), session.SessionFilePath(p.SessionName), logger.Named("main"))
}

func provideRegistry(cfg *config.Config, logger *zap.Logger) *worker.Registry {
	wcfg := worker.Config{
		Media: worker.DelayPolicy{
			Debounce: cfg.Media.MediaDebounce.Duration,
			Pause:    cfg.Media.Pause.Duration,
			Timeout:  cfg.Media.TaskTimeout.Duration,
		},
		Photo: worker.DelayPolicy{
			Debounce: cfg.Media.PhotoDebounce.Duration,
			Pause:    cfg.Media.Pause.Duration,
			Timeout:  cfg.Media.TaskTimeout.Duration,
		},
		DialogLimit: cfg.Sync.DialogLimit,
	}
	wlog := logger.Named("worker")
	return worker.NewRegistry(wcfg, telegram.NewFactory(telegramConfig(cfg), wlog), wlog)
}

func provideScraper(cfg *config.Config) *scrape.Scraper {
	return scrape.New(cfg.Media.ScrapeBaseURL, &http.Client{Timeout: scrapeTimeout}, cfg.Media.ScrapeRate)
}

func provideDispatcher(db *store.DB, s *scrape.Scraper, r *worker.Registry, st *state.Store, cfg *config.Config, logger *zap.Logger) *dispatch.Dispatcher {
	return dispatch.New(db, s, r, st, cfg.Media.Concurrency, logger.Named("dispatch"))
}

func provideIntegrator(db *store.DB, st *state.Store, logger *zap.Logger) *dispatch.Integrator {
	return dispatch.NewIntegrator(db, st, logger.Named("dispatch"))
}

func provideReconciler(db *store.DB, logger *zap.Logger) *intsync.Reconciler {
	return intsync.NewReconciler(db, logger)
}

func provideSyncEngine(main telegram.Client, st *state.Store, d *dispatch.Dispatcher, r *intsync.Reconciler, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(main, st, d, r, b, cfg.Sync.DialogLimit, logger.Named("sync"))
}

func provideController(main telegram.Client, r *worker.Registry, i *dispatch.Integrator, e *intsync.Engine, st *state.Store, m *status.Machine, b *bus.Bus, logger *zap.Logger) *Controller {
	return NewController(main, r, i, e, st, m, b, logger)
}

func provideStateService(p Params, st *state.Store, m *status.Machine, b *bus.Bus, db *store.DB, r *intsync.Reconciler) *api.StateService {
	return api.NewStateService(p.SessionName, st, m, b, db, r)
}

func provideAuthService(c *Controller) *api.AuthService {
	return api.NewAuthService(c)
}

func provideMediaService(r *worker.Registry) *api.MediaService {
	return api.NewMediaService(r)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, db *store.DB, ctrl *Controller, engine *intsync.Engine, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Start sync engine (subscribes to tg.update.* bus events).
			engine.Start(context.Background())

			// Start gRPC server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			// Connect and pick the worker mode from the session's authorization.
			ctrl.Start(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop(ctx)
			ctrl.Stop(ctx)
			engine.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
