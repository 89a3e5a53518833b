package scoreboard

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-chi/chi/v5"
	"github.com/uptrace/bun"
	"golang.org/x/time/rate"

	"github.com/Black-And-White-Club/quiscore/app/eventbus"
	scoreboardservice "github.com/Black-And-White-Club/quiscore/app/modules/scoreboard/application"
	scoreboardcache "github.com/Black-And-White-Club/quiscore/app/modules/scoreboard/infrastructure/cache"
	scoreboardhandlers "github.com/Black-And-White-Club/quiscore/app/modules/scoreboard/infrastructure/handlers"
	scoreboardmetrics "github.com/Black-And-White-Club/quiscore/app/modules/scoreboard/infrastructure/metrics"
	scoreboarddb "github.com/Black-And-White-Club/quiscore/app/modules/scoreboard/infrastructure/repositories"
	scoreboardrouter "github.com/Black-And-White-Club/quiscore/app/modules/scoreboard/infrastructure/router"
	"github.com/Black-And-White-Club/quiscore/app/modules/scoreboard/infrastructure/scorestore"
	"github.com/Black-And-White-Club/quiscore/app/shared/observability"
	"github.com/Black-And-White-Club/quiscore/config"
)

// Module represents the scoreboard module. It owns the scoreboard cache:
// Run starts its maintenance loop and Close ends every open stream.
type Module struct {
	ScoreboardService scoreboardservice.Service
	ScoreboardRouter  *scoreboardrouter.ScoreboardRouter
	Handlers          *scoreboardhandlers.ScoreboardHandlers
	Cache             *scoreboardcache.Cache
	Store             *scorestore.Accessor
	limiter           *scoreboardhandlers.IPRateLimiter
	observability     observability.Observability
	closing           chan struct{}
	closeOnce         sync.Once
}

// NewScoreboardModule creates and initializes a new scoreboard module. A nil
// scoreboardDB is built on db. db may be nil only in tests that never reach
// the store.
func NewScoreboardModule(
	ctx context.Context,
	cfg *config.Config,
	obs observability.Observability,
	db *bun.DB,
	scoreboardDB scoreboarddb.Repository,
	eventBus eventbus.EventBus,
	router *message.Router,
	routerCtx context.Context,
) (*Module, error) {
	logger := obs.Provider.Logger
	tracer := obs.Registry.Tracer

	logger.InfoContext(ctx, "scoreboard.NewScoreboardModule initializing")

	// 1. Cache and score store
	cache := scoreboardcache.New(scoreboardcache.Config{
		TTL:                 cfg.Scoreboard.TTL,
		MaxEntries:          cfg.Scoreboard.MaxEntries,
		MaxSubscribers:      cfg.Scoreboard.MaxSubscribers,
		MaintenanceInterval: cfg.Scoreboard.MaintenanceInterval,
	}, logger)
	store := scorestore.NewAccessor(db, scorestore.Config{
		MaxConcurrent: cfg.ScoreStore.MaxConcurrent,
		QueryTimeout:  cfg.ScoreStore.QueryTimeout,
		MaxRetries:    cfg.ScoreStore.MaxRetries,
		BaseBackoff:   cfg.ScoreStore.BaseBackoff,
		MaxBackoff:    cfg.ScoreStore.MaxBackoff,
		RateLimit:     cfg.ScoreStore.RateLimit,
		RateBurst:     cfg.ScoreStore.RateBurst,
	}, logger)

	// 2. Metrics
	var metrics scoreboardmetrics.ScoreboardMetrics
	if obs.Registry.Prometheus != nil {
		metrics = scoreboardmetrics.NewPrometheus(obs.Registry.Prometheus, cache, store)
	} else {
		metrics = scoreboardmetrics.NewNoop()
	}

	// 3. Service
	if scoreboardDB == nil {
		var repoDB bun.IDB
		if db != nil {
			repoDB = db
		}
		scoreboardDB = scoreboarddb.NewRepository(repoDB)
	}
	service := scoreboardservice.NewScoreboardService(scoreboardDB, store, cache, logger, metrics, tracer)

	// 4. Handlers
	handlers := scoreboardhandlers.NewScoreboardHandlers(service, scoreboardhandlers.Config{
		HeartbeatInterval: cfg.Scoreboard.HeartbeatInterval,
		WriteTimeout:      cfg.Scoreboard.WriteTimeout,
	}, logger, tracer, metrics)

	// 5. Router
	module := &Module{
		ScoreboardService: service,
		Handlers:          handlers,
		Cache:             cache,
		Store:             store,
		limiter:           scoreboardhandlers.NewIPRateLimiter(rate.Limit(cfg.HTTP.RateLimit), cfg.HTTP.RateBurst),
		observability:     obs,
		closing:           make(chan struct{}),
	}
	if router != nil {
		scoreboardRouter := scoreboardrouter.NewScoreboardRouter(
			logger,
			router,
			eventBus,
			eventBus,
			tracer,
			obs.Registry.Prometheus,
			metrics,
		)
		if err := scoreboardRouter.Configure(routerCtx, handlers); err != nil {
			return nil, fmt.Errorf("failed to configure scoreboard router: %w", err)
		}
		module.ScoreboardRouter = scoreboardRouter
	}

	return module, nil
}

// RegisterRoutes mounts the scoreboard HTTP API on r.
func (m *Module) RegisterRoutes(r chi.Router) {
	scoreboardrouter.RegisterRoutes(r, m.Handlers, m.limiter)
}

// Run starts the cache maintenance loop and blocks until ctx is cancelled
// or Close is called.
func (m *Module) Run(ctx context.Context, wg *sync.WaitGroup) {
	logger := m.observability.Provider.Logger
	logger.InfoContext(ctx, "Starting scoreboard module")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if wg != nil {
		defer wg.Done()
	}

	go func() {
		select {
		case <-m.closing:
			cancel()
		case <-ctx.Done():
		}
	}()

	m.Cache.Run(ctx)
	logger.InfoContext(ctx, "Scoreboard module goroutine stopped")
}

// Close shuts down the scoreboard module.
func (m *Module) Close() error {
	logger := m.observability.Provider.Logger
	logger.Info("Stopping scoreboard module")

	m.closeOnce.Do(func() { close(m.closing) })
	m.Handlers.Close()

	if m.ScoreboardRouter != nil {
		if err := m.ScoreboardRouter.Close(); err != nil {
			logger.Error("Error closing ScoreboardRouter from module", "error", err)
			return fmt.Errorf("error closing ScoreboardRouter: %w", err)
		}
	}

	logger.Info("Scoreboard module stopped")
	return nil
}
