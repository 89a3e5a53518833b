package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/Black-And-White-Club/quiscore/app"
	"github.com/Black-And-White-Club/quiscore/app/shared/observability"
	"github.com/Black-And-White-Club/quiscore/config"
)

func newServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the scoreboard server",
		Flags: []cli.Flag{configFlag()},
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig(c)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			obs, err := observability.Init(ctx, config.ToObsConfig(cfg))
			if err != nil {
				return fmt.Errorf("failed to initialize observability: %w", err)
			}
			logger := obs.Provider.Logger
			logger.Info("Observability initialized",
				"environment", cfg.Observability.Environment,
				"version", config.Version,
			)

			application, err := app.NewApp(ctx, cfg, obs)
			if err != nil {
				_ = obs.Shutdown(c.Context)
				return fmt.Errorf("failed to initialize app: %w", err)
			}

			return application.Run(ctx)
		},
	}
}
