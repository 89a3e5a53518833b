package scoreboardservice

import (
	"context"

	scoreboardcache "github.com/Black-And-White-Club/quiscore/app/modules/scoreboard/infrastructure/cache"
	"github.com/Black-And-White-Club/quiscore/app/modules/scoreboard/infrastructure/scorestore"
	scoreboardtypes "github.com/Black-And-White-Club/quiscore/pkg/types/scoreboard"
)

// Service computes, caches and distributes scoreboards.
type Service interface {
	// CalculateAndCacheBatch returns one result per distinct event id. Cached
	// scoreboards are reused unless forceRefresh is set; everything else is
	// computed in a single store round trip, cached and pushed to viewers.
	CalculateAndCacheBatch(ctx context.Context, eventIDs []string, forceRefresh bool) (map[string]BatchResult, error)

	// CalculateAndCache is CalculateAndCacheBatch for a single event.
	CalculateAndCache(ctx context.Context, eventID string, forceRefresh bool) (*scoreboardtypes.Snapshot, error)

	// GetScoreboard returns the cached scoreboard, computing it on a miss.
	GetScoreboard(ctx context.Context, eventID string) (*scoreboardtypes.Snapshot, error)

	// RefreshEvent recomputes an event after its scores changed.
	RefreshEvent(ctx context.Context, eventID string) (*scoreboardtypes.Snapshot, error)

	// Subscribe registers a live viewer of eventID.
	Subscribe(eventID string, fn scoreboardcache.Subscriber) (unsubscribe func(), ok bool)

	// ScoreboardChart renders the event's team totals as a PNG.
	ScoreboardChart(ctx context.Context, eventID string) ([]byte, error)

	// ScoreboardWorkbook renders the event's scoreboard as an XLSX workbook.
	ScoreboardWorkbook(ctx context.Context, eventID string) ([]byte, error)

	// Stats reports cache and store activity without touching cache state.
	Stats() Stats
}

// BatchResult is the outcome for one event of a batch computation. Err is
// ErrEventNotFound for events the store does not know.
type BatchResult struct {
	Snapshot *scoreboardtypes.Snapshot
	Err      error
}

// Stats combines the cache and store statistics.
type Stats struct {
	Cache scoreboardcache.Stats `json:"cache"`
	Store scorestore.Stats      `json:"store"`
}

// ScoreStore is the part of *scorestore.Accessor the service relies on.
type ScoreStore interface {
	ExecuteBatch(ctx context.Context, name string, fn scorestore.QueryFunc) error
	Stats() scorestore.Stats
}
