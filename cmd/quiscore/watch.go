package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/Black-And-White-Club/quiscore/pkg/scoreboardclient"
)

func newWatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "follow one event's scoreboard like a viewer would",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "base-url", Value: "http://localhost:3000", Usage: "server base URL"},
			&cli.StringFlag{Name: "event", Required: true, Usage: "event id"},
			&cli.BoolFlag{Name: "production", Usage: "use production timings", EnvVars: []string{"QUISCORE_PRODUCTION"}},
			&cli.BoolFlag{Name: "accept-stale", Usage: "show snapshots older than the displayed one"},
		},
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			transport, err := scoreboardclient.New(scoreboardclient.Config{
				BaseURL:     c.String("base-url"),
				EventID:     c.String("event"),
				Production:  c.Bool("production"),
				AcceptStale: c.Bool("accept-stale"),
				Logger:      logger,
				OnUpdate:    printState,
			})
			if err != nil {
				return err
			}
			defer transport.Close()

			if err := transport.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			return nil
		},
	}
}

func printState(s scoreboardclient.State) {
	if s.LastError != "" {
		fmt.Printf("[%s] error: %s\n", s.Mode, s.LastError)
	}
	if s.Snapshot == nil {
		fmt.Printf("[%s] waiting for scoreboard\n", s.Mode)
		return
	}
	fmt.Printf("[%s] %s at %s\n", s.Mode, s.Snapshot.EventID, s.Snapshot.ComputedAt.Format("15:04:05"))
	for i, t := range s.Snapshot.Teams {
		fmt.Printf("  %2d. %-30s %6d (%d scores)\n", i+1, t.Name, t.TotalScore, t.ScoreCount)
	}
}
