package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Black-And-White-Club/quiscore/app/eventbus"
	"github.com/Black-And-White-Club/quiscore/db/bundb"
	"github.com/Black-And-White-Club/quiscore/db/seed"
	scoreboardevents "github.com/Black-And-White-Club/quiscore/pkg/events/scoreboard"
)

func newSeedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "insert a generated event with teams and scores",
		Flags: []cli.Flag{
			configFlag(),
			&cli.IntFlag{Name: "teams", Value: 8, Usage: "number of teams"},
			&cli.IntFlag{Name: "max-scores", Value: 6, Usage: "maximum scores per team"},
			&cli.Int64Flag{Name: "seed", Usage: "faker seed, random when zero"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

			dbService, err := bundb.NewBunDBService(c.Context, cfg.Postgres, logger)
			if err != nil {
				return err
			}
			defer dbService.Close()

			gen := seed.NewGenerator()
			if s := c.Int64("seed"); s != 0 {
				gen = seed.NewGenerator(s)
			}
			data := gen.Event(c.Int("teams"), c.Int("max-scores"))
			if err := seed.Insert(c.Context, dbService.GetDB(), dbService.ScoreboardDB, data); err != nil {
				return fmt.Errorf("failed to insert seed data: %w", err)
			}
			fmt.Printf("Seeded event %s (%q) with %d teams and %d scores, seed %d\n",
				data.Event.ID, data.Event.Name, len(data.Teams), len(data.Scores), gen.Seed())

			if cfg.NATS.URL == "" {
				return nil
			}
			return announceMutation(c.Context, cfg.NATS.URL, data.Event.ID, logger)
		},
	}
}

// announceMutation tells running servers that eventID changed.
func announceMutation(ctx context.Context, natsURL, eventID string, logger *slog.Logger) error {
	bus, err := eventbus.NewNATS(natsURL, logger)
	if err != nil {
		return err
	}
	defer bus.Close()

	msg, err := eventbus.NewMessage(ctx, &scoreboardevents.ScoreMutatedPayloadV1{
		EventID:    eventID,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return bus.Publish(scoreboardevents.ScoreMutatedV1, msg)
}
