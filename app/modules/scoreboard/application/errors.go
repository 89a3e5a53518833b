package scoreboardservice

import "errors"

var (
	// ErrEventNotFound is reported for an event id the score store does not know.
	ErrEventNotFound = errors.New("event not found")

	// ErrInvalidEventID is reported for an empty or blank event id.
	ErrInvalidEventID = errors.New("invalid event id")
)
