// Package bundb opens the Postgres connection pool shared by the modules.
package bundb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	scoreboarddb "github.com/Black-And-White-Club/quiscore/app/modules/scoreboard/infrastructure/repositories"
	"github.com/Black-And-White-Club/quiscore/config"
)

// DBService holds the connection pool and the repositories built on it.
type DBService struct {
	ScoreboardDB scoreboarddb.Repository
	db           *bun.DB
}

// GetDB returns the underlying database connection pool.
func (dbService *DBService) GetDB() *bun.DB {
	return dbService.db
}

// Close closes the pool.
func (dbService *DBService) Close() error {
	return dbService.db.Close()
}

// NewBunDBService connects to Postgres with cfg and registers the models.
func NewBunDBService(ctx context.Context, cfg config.PostgresConfig, logger *slog.Logger) (*DBService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DSN == "" {
		return nil, errors.New("postgres dsn is empty")
	}

	sqldb, err := pgConn(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
		sqldb.SetMaxIdleConns(cfg.MaxOpenConns)
	}
	sqldb.SetConnMaxIdleTime(5 * time.Minute)

	db := bunDB(sqldb)
	db.RegisterModel(
		(*scoreboarddb.Event)(nil),
		(*scoreboarddb.Team)(nil),
		(*scoreboarddb.Score)(nil),
	)

	logger.InfoContext(ctx, "Database connection established",
		slog.Int("max_open_conns", cfg.MaxOpenConns),
	)

	return &DBService{
		ScoreboardDB: scoreboarddb.NewRepository(db),
		db:           db,
	}, nil
}

// bunDB returns a new bun.DB for given sql.DB connection pool.
func bunDB(sqldb *sql.DB) *bun.DB {
	return bun.NewDB(sqldb, pgdialect.New())
}

func pgConn(ctx context.Context, dsn string) (*sql.DB, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := sqldb.PingContext(pingCtx); err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return sqldb, nil
}
