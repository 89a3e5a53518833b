// Package scoreboardevents defines the topics and payloads the scoreboard
// module consumes and publishes.
package scoreboardevents

import (
	"time"
)

const (
	// ScoreMutatedV1 is published by whatever writes scores. Every process
	// holding live viewers recomputes the affected event.
	ScoreMutatedV1 = "scoreboard.score.mutated.v1"

	// ScoreboardUpdatedV1 is published after a forced recompute succeeds.
	ScoreboardUpdatedV1 = "scoreboard.updated.v1"

	// ScoreboardPoisonV1 receives score mutations that kept failing after
	// every retry.
	ScoreboardPoisonV1 = "scoreboard.poison.v1"
)

// ScoreMutatedPayloadV1 announces that scores of an event changed.
type ScoreMutatedPayloadV1 struct {
	EventID    string    `json:"eventId"`
	TeamID     string    `json:"teamId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// ScoreboardUpdatedPayloadV1 announces a freshly cached scoreboard.
type ScoreboardUpdatedPayloadV1 struct {
	EventID    string    `json:"eventId"`
	TeamCount  int       `json:"teamCount"`
	ComputedAt time.Time `json:"computedAt"`
}
