// Package seed generates plausible quiz events for local runs and
// integration tests.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	scoreboarddb "github.com/Black-And-White-Club/quiscore/app/modules/scoreboard/infrastructure/repositories"
)

var methods = []string{"judge", "auto", "manual"}

// Generator creates events, teams and scores from a seeded faker.
type Generator struct {
	faker *gofakeit.Faker
	seed  int64
}

// NewGenerator creates a generator. Without a seed the current time is used.
func NewGenerator(seed ...int64) *Generator {
	var s int64
	if len(seed) > 0 {
		s = seed[0]
	} else {
		s = time.Now().UnixNano()
	}
	return &Generator{faker: gofakeit.New(uint64(s)), seed: s}
}

// Seed returns the seed the generator was built with.
func (g *Generator) Seed() int64 { return g.seed }

// Dataset is one generated event with its teams and scores.
type Dataset struct {
	Event  *scoreboarddb.Event
	Teams  []*scoreboarddb.Team
	Scores []*scoreboarddb.Score
}

// Totals sums the generated points per team.
func (d Dataset) Totals() map[string]int {
	out := make(map[string]int, len(d.Teams))
	for _, t := range d.Teams {
		out[t.ID] = 0
	}
	for _, s := range d.Scores {
		out[s.TeamID] += s.Points
	}
	return out
}

// Event generates an event with teams teams, each holding up to
// maxScores scores. Team creation times are spaced a second apart so the
// scoreboard order is deterministic.
func (g *Generator) Event(teams, maxScores int) Dataset {
	base := time.Now().UTC().Truncate(time.Second).Add(-time.Hour)

	d := Dataset{
		Event: &scoreboarddb.Event{
			ID:        uuid.NewString(),
			Name:      fmt.Sprintf("%s %s Quiz", g.faker.Adjective(), g.faker.Animal()),
			CreatedAt: base,
		},
	}
	for i := 0; i < teams; i++ {
		team := &scoreboarddb.Team{
			ID:        uuid.NewString(),
			EventID:   d.Event.ID,
			Name:      g.faker.Company(),
			CreatedAt: base.Add(time.Duration(i+1) * time.Second),
		}
		d.Teams = append(d.Teams, team)

		for j := g.faker.Number(0, maxScores); j > 0; j-- {
			method := g.faker.RandomString(methods)
			question := fmt.Sprintf("q-%d", g.faker.Number(1, 40))
			d.Scores = append(d.Scores, &scoreboarddb.Score{
				TeamID:     team.ID,
				Points:     g.faker.Number(-5, 25),
				Method:     &method,
				QuestionID: &question,
			})
		}
	}
	return d
}

// Insert writes d through repo inside one transaction.
func Insert(ctx context.Context, db *bun.DB, repo scoreboarddb.Repository, d Dataset) error {
	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := repo.CreateEvent(ctx, tx, d.Event); err != nil {
			return err
		}
		for _, t := range d.Teams {
			if err := repo.CreateTeam(ctx, tx, t); err != nil {
				return err
			}
		}
		return repo.InsertScores(ctx, tx, d.Scores)
	})
}
