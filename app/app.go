package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/Black-And-White-Club/quiscore/app/eventbus"
	"github.com/Black-And-White-Club/quiscore/app/modules/scoreboard"
	"github.com/Black-And-White-Club/quiscore/app/shared/observability"
	"github.com/Black-And-White-Club/quiscore/config"
	"github.com/Black-And-White-Club/quiscore/db/bundb"
)

// App wires configuration, infrastructure and modules into one server.
type App struct {
	Config           *config.Config
	Observability    observability.Observability
	DB               *bundb.DBService
	EventBus         eventbus.EventBus
	Router           *message.Router
	ScoreboardModule *scoreboard.Module

	httpServer *http.Server
	wg         sync.WaitGroup
	closeOnce  sync.Once
	closeErr   error
}

// NewApp connects to the database and event bus and builds the modules.
func NewApp(ctx context.Context, cfg *config.Config, obs observability.Observability) (*App, error) {
	logger := obs.Provider.Logger

	dbService, err := bundb.NewBunDBService(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database service: %w", err)
	}

	var bus eventbus.EventBus
	if cfg.NATS.URL != "" {
		bus, err = eventbus.NewNATS(cfg.NATS.URL, logger)
		if err != nil {
			_ = dbService.Close()
			return nil, fmt.Errorf("failed to initialize event bus: %w", err)
		}
	} else {
		logger.WarnContext(ctx, "No NATS URL configured, score mutations are only seen in-process")
		bus = eventbus.NewGoChannel(logger)
	}

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 10 * time.Second}, watermill.NewSlogLogger(logger))
	if err != nil {
		_ = bus.Close()
		_ = dbService.Close()
		return nil, fmt.Errorf("failed to create message router: %w", err)
	}

	app := &App{
		Config:        cfg,
		Observability: obs,
		DB:            dbService,
		EventBus:      bus,
		Router:        router,
	}

	if err := app.initializeModules(ctx); err != nil {
		_ = router.Close()
		_ = bus.Close()
		_ = dbService.Close()
		return nil, err
	}
	return app, nil
}

func (app *App) initializeModules(ctx context.Context) error {
	scoreboardModule, err := scoreboard.NewScoreboardModule(
		ctx,
		app.Config,
		app.Observability,
		app.DB.GetDB(),
		app.DB.ScoreboardDB,
		app.EventBus,
		app.Router,
		ctx,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize scoreboard module: %w", err)
	}
	app.ScoreboardModule = scoreboardModule
	return nil
}

// Run starts the message router, the modules and the HTTP server, and blocks
// until ctx is cancelled or the server fails.
func (app *App) Run(ctx context.Context) error {
	logger := app.Observability.Provider.Logger

	if app.Observability.StartMetricsServer(ctx) {
		logger.InfoContext(ctx, "Metrics served on dedicated address")
	}

	routerErr := make(chan error, 1)
	go func() {
		if err := app.Router.Run(ctx); err != nil {
			routerErr <- err
		}
	}()
	select {
	case <-app.Router.Running():
	case err := <-routerErr:
		_ = app.Close()
		return fmt.Errorf("message router failed to start: %w", err)
	}

	app.wg.Add(1)
	go app.ScoreboardModule.Run(ctx, &app.wg)

	serverErr := app.Start(ctx)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown requested")
	case err := <-serverErr:
		runErr = err
	case err := <-routerErr:
		runErr = fmt.Errorf("message router stopped: %w", err)
	}

	if err := app.Close(); err != nil {
		logger.Error("Shutdown finished with errors", slog.String("error", err.Error()))
		runErr = errors.Join(runErr, err)
	}
	return runErr
}

// Close stops the HTTP server, the modules, the router and the connections,
// in that order. It is safe to call more than once.
func (app *App) Close() error {
	app.closeOnce.Do(func() {
		logger := app.Observability.Provider.Logger
		var errs []error

		if app.ScoreboardModule != nil {
			if err := app.ScoreboardModule.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if err := app.shutdownHTTP(); err != nil {
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
		app.wg.Wait()

		if err := app.Router.Close(); err != nil {
			errs = append(errs, fmt.Errorf("message router: %w", err))
		}
		if err := app.EventBus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("event bus: %w", err))
		}
		if err := app.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.Observability.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("observability: %w", err))
		}

		app.closeErr = errors.Join(errs...)
		logger.Info("Application shut down")
	})
	return app.closeErr
}
