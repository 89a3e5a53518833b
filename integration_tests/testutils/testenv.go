// Package testutils starts the containers the integration tests run against.
package testutils

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go/modules/nats"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/uptrace/bun/migrate"

	scoreboardmigrations "github.com/Black-And-White-Club/quiscore/app/modules/scoreboard/infrastructure/repositories/migrations"
	"github.com/Black-And-White-Club/quiscore/config"
	"github.com/Black-And-White-Club/quiscore/db/bundb"
	"github.com/Black-And-White-Club/quiscore/integration_tests/containers"
)

// TestEnvironment holds the containers and connections shared by a test
// package.
type TestEnvironment struct {
	PgContainer   *postgres.PostgresContainer
	NatsContainer *nats.NATSContainer
	DSN           string
	NatsURL       string
	DBService     *bundb.DBService

	// RawDB goes through the pgx driver and bypasses every application
	// layer, the way another service writing scores would.
	RawDB *sql.DB
}

// NewTestEnvironment starts Postgres and NATS and applies the migrations.
func NewTestEnvironment(ctx context.Context) (*TestEnvironment, error) {
	env := &TestEnvironment{}

	pgContainer, dsn, err := containers.SetupPostgresContainer(ctx)
	if err != nil {
		return nil, err
	}
	env.PgContainer, env.DSN = pgContainer, dsn

	natsContainer, natsURL, err := containers.SetupNatsContainer(ctx)
	if err != nil {
		env.Terminate(ctx)
		return nil, err
	}
	env.NatsContainer, env.NatsURL = natsContainer, natsURL

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	env.DBService, err = bundb.NewBunDBService(ctx, config.PostgresConfig{DSN: dsn, MaxOpenConns: 5}, logger)
	if err != nil {
		env.Terminate(ctx)
		return nil, err
	}

	migrator := migrate.NewMigrator(env.DBService.GetDB(), scoreboardmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		env.Terminate(ctx)
		return nil, fmt.Errorf("failed to init migrations: %w", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		env.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	env.RawDB, err = sql.Open("pgx", dsn)
	if err != nil {
		env.Terminate(ctx)
		return nil, fmt.Errorf("failed to open pgx connection: %w", err)
	}
	return env, nil
}

// Config returns an application config pointing at the containers, with
// the HTTP server on a free local port.
func (env *TestEnvironment) Config() (*config.Config, error) {
	addr, err := freeAddress()
	if err != nil {
		return nil, err
	}
	cfg := &config.Config{
		Postgres: config.PostgresConfig{DSN: env.DSN, MaxOpenConns: 5},
		NATS:     config.NATSConfig{URL: env.NatsURL},
		HTTP:     config.HTTPConfig{Address: addr, RateLimit: 100, RateBurst: 100},
	}
	cfg.ApplyDefaults()
	return cfg, cfg.Validate()
}

// Reset removes every event with its teams and scores.
func (env *TestEnvironment) Reset(ctx context.Context) error {
	_, err := env.RawDB.ExecContext(ctx, `TRUNCATE events, teams, scores RESTART IDENTITY CASCADE`)
	return err
}

// AddScore inserts a score row behind the application's back.
func (env *TestEnvironment) AddScore(ctx context.Context, teamID string, points int) error {
	_, err := env.RawDB.ExecContext(ctx,
		`INSERT INTO scores (team_id, points, method) VALUES ($1, $2, 'manual')`, teamID, points)
	return err
}

// CorrectScore changes the points of an existing score row through the
// repository, as an admin correction would.
func (env *TestEnvironment) CorrectScore(ctx context.Context, scoreID int64, points int) error {
	return env.DBService.ScoreboardDB.UpdateScorePoints(ctx, nil, scoreID, points)
}

// Terminate closes the connections and stops the containers.
func (env *TestEnvironment) Terminate(ctx context.Context) {
	if env.RawDB != nil {
		_ = env.RawDB.Close()
	}
	if env.DBService != nil {
		_ = env.DBService.Close()
	}
	if env.NatsContainer != nil {
		_ = env.NatsContainer.Terminate(ctx)
	}
	if env.PgContainer != nil {
		_ = env.PgContainer.Terminate(ctx)
	}
}

func freeAddress() (string, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	defer l.Close()
	return l.Addr().String(), nil
}
