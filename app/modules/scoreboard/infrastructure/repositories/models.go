package scoreboarddb

import (
	"time"

	"github.com/uptrace/bun"
)

// Event is a quiz event whose teams are ranked on a scoreboard.
type Event struct {
	bun.BaseModel `bun:"table:events,alias:e"`

	ID        string    `bun:"id,pk"`
	Name      string    `bun:"name,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// Team belongs to exactly one event.
type Team struct {
	bun.BaseModel `bun:"table:teams,alias:t"`

	ID        string    `bun:"id,pk"`
	EventID   string    `bun:"event_id,notnull"`
	Name      string    `bun:"name,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// Score is one awarded score row for a team.
type Score struct {
	bun.BaseModel `bun:"table:scores,alias:s"`

	ID         int64     `bun:"id,pk,autoincrement"`
	TeamID     string    `bun:"team_id,notnull"`
	Points     int       `bun:"points,notnull"`
	CriteriaID *string   `bun:"criteria_id"`
	JudgeID    *string   `bun:"judge_id"`
	QuestionID *string   `bun:"question_id"`
	Method     *string   `bun:"method"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// StandingRow is one (event, team) group of the scoreboard aggregate. TeamID
// is nil for an event that has no teams.
type StandingRow struct {
	EventID       string     `bun:"event_id"`
	TeamID        *string    `bun:"team_id"`
	TeamName      *string    `bun:"team_name"`
	TeamCreatedAt *time.Time `bun:"team_created_at"`
	TotalScore    int        `bun:"total_score"`
	ScoreCount    int        `bun:"score_count"`
}

// RawScoreRow is a score row tagged with the event it belongs to.
type RawScoreRow struct {
	EventID    string  `bun:"event_id"`
	TeamID     string  `bun:"team_id"`
	Points     int     `bun:"points"`
	CriteriaID *string `bun:"criteria_id"`
	JudgeID    *string `bun:"judge_id"`
	QuestionID *string `bun:"question_id"`
	Method     *string `bun:"method"`
}
