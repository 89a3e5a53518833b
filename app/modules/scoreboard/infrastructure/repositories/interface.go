package scoreboarddb

import (
	"context"

	"github.com/uptrace/bun"
)

// Repository defines the contract for scoreboard persistence.
type Repository interface {
	// AggregateStandings returns one row per (event, team) for the given
	// events, teams ordered by creation time. Events without teams yield a
	// single row with a nil TeamID; unknown events yield nothing.
	AggregateStandings(ctx context.Context, db bun.IDB, eventIDs []string) ([]StandingRow, error)

	// ListRawScores returns every score row of the given events.
	ListRawScores(ctx context.Context, db bun.IDB, eventIDs []string) ([]RawScoreRow, error)

	// CreateEvent inserts an event.
	CreateEvent(ctx context.Context, db bun.IDB, event *Event) error

	// CreateTeam inserts a team.
	CreateTeam(ctx context.Context, db bun.IDB, team *Team) error

	// InsertScores inserts score rows in one statement.
	InsertScores(ctx context.Context, db bun.IDB, scores []*Score) error

	// UpdateScorePoints changes the points of one score row.
	UpdateScorePoints(ctx context.Context, db bun.IDB, scoreID int64, points int) error
}
