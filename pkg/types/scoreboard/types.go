// Package scoreboardtypes holds the scoreboard values exchanged between the
// server, its HTTP consumers and the viewer client.
package scoreboardtypes

import "time"

// RawScore is a single awarded score row. The optional references are nil
// when the row was not attributed.
type RawScore struct {
	Points     int     `json:"points"`
	CriteriaID *string `json:"criteriaId,omitempty"`
	JudgeID    *string `json:"judgeId,omitempty"`
	QuestionID *string `json:"questionId,omitempty"`
	Method     *string `json:"method,omitempty"`
}

// TeamStanding is one team's position on a scoreboard.
type TeamStanding struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	TotalScore int        `json:"totalScore"`
	ScoreCount int        `json:"scoreCount"`
	RawScores  []RawScore `json:"rawScores"`
}

// Snapshot is a computed scoreboard for one event. A Snapshot is never
// modified after construction; recomputation produces a new value.
type Snapshot struct {
	EventID    string         `json:"eventId"`
	Teams      []TeamStanding `json:"teams"`
	ComputedAt time.Time      `json:"lastUpdated"`
}

// Team returns the standing for teamID.
func (s *Snapshot) Team(teamID string) (TeamStanding, bool) {
	if s == nil {
		return TeamStanding{}, false
	}
	for _, t := range s.Teams {
		if t.ID == teamID {
			return t, true
		}
	}
	return TeamStanding{}, false
}

// Newer reports whether s was computed strictly after other. A nil other is
// always older.
func (s *Snapshot) Newer(other *Snapshot) bool {
	if other == nil {
		return true
	}
	if s == nil {
		return false
	}
	return s.ComputedAt.After(other.ComputedAt)
}

// BatchRequest is the body of the batch scoreboard endpoint.
type BatchRequest struct {
	EventIDs     []string `json:"eventIds"`
	ForceRefresh bool     `json:"forceRefresh"`
}

// BatchResponse carries one snapshot or one error message per requested event.
type BatchResponse struct {
	Scoreboards map[string]*Snapshot `json:"scoreboards"`
	Errors      map[string]string    `json:"errors,omitempty"`
}

// ErrorResponse is the body of every non-2xx JSON answer.
type ErrorResponse struct {
	Error string `json:"error"`
}
