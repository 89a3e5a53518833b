package scoreboarddb

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// Impl implements the Repository interface using Bun ORM.
type Impl struct {
	db bun.IDB
}

// NewRepository creates a new scoreboard repository.
func NewRepository(db bun.IDB) Repository {
	return &Impl{db: db}
}

// resolveDB returns the provided db handle, falling back to the repository's
// default connection if db is nil.
func (r *Impl) resolveDB(db bun.IDB) bun.IDB {
	if db == nil {
		return r.db
	}
	return db
}

// AggregateStandings sums points and counts scores per team in one grouped
// query.
func (r *Impl) AggregateStandings(ctx context.Context, db bun.IDB, eventIDs []string) ([]StandingRow, error) {
	if len(eventIDs) == 0 {
		return nil, nil
	}
	db = r.resolveDB(db)

	var rows []StandingRow
	err := db.NewSelect().
		TableExpr("events AS e").
		ColumnExpr("e.id AS event_id").
		ColumnExpr("t.id AS team_id").
		ColumnExpr("t.name AS team_name").
		ColumnExpr("t.created_at AS team_created_at").
		ColumnExpr("COALESCE(SUM(s.points), 0) AS total_score").
		ColumnExpr("COUNT(s.id) AS score_count").
		Join("LEFT JOIN teams AS t ON t.event_id = e.id").
		Join("LEFT JOIN scores AS s ON s.team_id = t.id").
		Where("e.id IN (?)", bun.In(eventIDs)).
		GroupExpr("e.id, t.id, t.name, t.created_at").
		OrderExpr("e.id ASC, t.created_at ASC NULLS FIRST, t.id ASC").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate standings: %w", err)
	}
	return rows, nil
}

// ListRawScores returns score rows ordered by team then insertion.
func (r *Impl) ListRawScores(ctx context.Context, db bun.IDB, eventIDs []string) ([]RawScoreRow, error) {
	if len(eventIDs) == 0 {
		return nil, nil
	}
	db = r.resolveDB(db)

	var rows []RawScoreRow
	err := db.NewSelect().
		TableExpr("scores AS s").
		ColumnExpr("t.event_id AS event_id").
		ColumnExpr("s.team_id, s.points, s.criteria_id, s.judge_id, s.question_id, s.method").
		Join("JOIN teams AS t ON t.id = s.team_id").
		Where("t.event_id IN (?)", bun.In(eventIDs)).
		OrderExpr("s.team_id ASC, s.created_at ASC, s.id ASC").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to list raw scores: %w", err)
	}
	return rows, nil
}

// CreateEvent inserts an event.
func (r *Impl) CreateEvent(ctx context.Context, db bun.IDB, event *Event) error {
	db = r.resolveDB(db)
	if _, err := db.NewInsert().Model(event).Returning("created_at").Exec(ctx); err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}
	return nil
}

// CreateTeam inserts a team.
func (r *Impl) CreateTeam(ctx context.Context, db bun.IDB, team *Team) error {
	db = r.resolveDB(db)
	if _, err := db.NewInsert().Model(team).Returning("created_at").Exec(ctx); err != nil {
		return fmt.Errorf("failed to create team: %w", err)
	}
	return nil
}

// InsertScores inserts score rows.
func (r *Impl) InsertScores(ctx context.Context, db bun.IDB, scores []*Score) error {
	if len(scores) == 0 {
		return nil
	}
	db = r.resolveDB(db)
	if _, err := db.NewInsert().Model(&scores).Returning("id, created_at").Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert scores: %w", err)
	}
	return nil
}

// UpdateScorePoints changes the points of one score row.
func (r *Impl) UpdateScorePoints(ctx context.Context, db bun.IDB, scoreID int64, points int) error {
	db = r.resolveDB(db)
	result, err := db.NewUpdate().
		Model((*Score)(nil)).
		Set("points = ?", points).
		Where("id = ?", scoreID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update score points: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNoRowsAffected
	}
	return nil
}
