package main

import (
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v2"

	scoreboardmigrations "github.com/Black-And-White-Club/quiscore/app/modules/scoreboard/infrastructure/repositories/migrations"
)

type migrators map[string]*migrate.Migrator

func openMigrators(c *cli.Context) (migrators, func() error, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	pgdb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.DSN)))
	db := bun.NewDB(pgdb, pgdialect.New())

	return migrators{
		"scoreboard": migrate.NewMigrator(db, scoreboardmigrations.Migrations),
	}, db.Close, nil
}

// withMigrators opens the database for the duration of fn.
func withMigrators(fn func(c *cli.Context, ms migrators) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		ms, closeDB, err := openMigrators(c)
		if err != nil {
			return err
		}
		defer closeDB()
		return fn(c, ms)
	}
}

func newMigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "database migrations",
		Flags: []cli.Flag{configFlag()},
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "create migration tables",
				Action: withMigrators(func(c *cli.Context, ms migrators) error {
					for moduleName, migrator := range ms {
						fmt.Printf("Initializing migrations for module: %s\n", moduleName)
						if err := migrator.Init(c.Context); err != nil {
							return fmt.Errorf("init %s: %w", moduleName, err)
						}
					}
					return nil
				}),
			},
			{
				Name:  "up",
				Usage: "migrate database",
				Action: withMigrators(func(c *cli.Context, ms migrators) error {
					for moduleName, migrator := range ms {
						if err := migrator.Lock(c.Context); err != nil {
							return err
						}
						group, err := migrator.Migrate(c.Context)
						_ = migrator.Unlock(c.Context)
						if err != nil {
							return fmt.Errorf("migrate %s: %w", moduleName, err)
						}
						if group.IsZero() {
							fmt.Printf("No new migrations to run for module: %s\n", moduleName)
						} else {
							fmt.Printf("Migrated module: %s to %s\n", moduleName, group)
						}
					}
					return nil
				}),
			},
			{
				Name:  "rollback",
				Usage: "rollback the last migration group",
				Action: withMigrators(func(c *cli.Context, ms migrators) error {
					for moduleName, migrator := range ms {
						if err := migrator.Lock(c.Context); err != nil {
							return err
						}
						group, err := migrator.Rollback(c.Context)
						_ = migrator.Unlock(c.Context)
						if err != nil {
							return fmt.Errorf("rollback %s: %w", moduleName, err)
						}
						if group.IsZero() {
							fmt.Printf("No groups to roll back for module: %s\n", moduleName)
						} else {
							fmt.Printf("Rolled back module: %s to %s\n", moduleName, group)
						}
					}
					return nil
				}),
			},
			{
				Name:  "status",
				Usage: "print migrations status",
				Action: withMigrators(func(c *cli.Context, ms migrators) error {
					for moduleName, migrator := range ms {
						status, err := migrator.MigrationsWithStatus(c.Context)
						if err != nil {
							return err
						}
						fmt.Printf("Migrations for module: %s\n", moduleName)
						fmt.Printf("  %s\n", status)
						fmt.Printf("  Applied: %s\n", status.Applied())
						fmt.Printf("  Unapplied: %s\n", status.Unapplied())
					}
					return nil
				}),
			},
		},
	}
}
