package scoreboardhandlers

import (
	"context"
	"net/http"

	"github.com/Black-And-White-Club/quiscore/app/shared/handlerwrapper"
	scoreboardevents "github.com/Black-And-White-Club/quiscore/pkg/events/scoreboard"
)

// Handlers defines the HTTP and event handlers of the scoreboard module.
type Handlers interface {
	// --- HTTP ---

	// HandleGetScoreboard answers with the event's scoreboard, recomputing it
	// when ?refresh=true.
	HandleGetScoreboard(w http.ResponseWriter, r *http.Request)

	// HandleStream pushes the event's scoreboard as server-sent events.
	HandleStream(w http.ResponseWriter, r *http.Request)

	// HandleBatch computes several scoreboards in one store round trip.
	HandleBatch(w http.ResponseWriter, r *http.Request)

	HandleChart(w http.ResponseWriter, r *http.Request)
	HandleExport(w http.ResponseWriter, r *http.Request)

	// HandleStats reports cache, store and process statistics.
	HandleStats(w http.ResponseWriter, r *http.Request)

	// --- EVENTS ---

	// HandleScoreMutated recomputes an event whose scores changed and pushes
	// the result to its viewers.
	HandleScoreMutated(ctx context.Context, payload *scoreboardevents.ScoreMutatedPayloadV1) ([]handlerwrapper.Result, error)

	// Close ends every open stream.
	Close()
}
