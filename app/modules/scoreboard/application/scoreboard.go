package scoreboardservice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	scoreboarddb "github.com/Black-And-White-Club/quiscore/app/modules/scoreboard/infrastructure/repositories"
	"github.com/Black-And-White-Club/quiscore/app/shared/observability/attr"
	"github.com/Black-And-White-Club/quiscore/app/shared/results"
	scoreboardtypes "github.com/Black-And-White-Club/quiscore/pkg/types/scoreboard"
)

type batchResult = results.OperationResult[map[string]BatchResult, error]

// CalculateAndCacheBatch computes the scoreboards of eventIDs.
func (s *ScoreboardService) CalculateAndCacheBatch(ctx context.Context, eventIDs []string, forceRefresh bool) (map[string]BatchResult, error) {
	result, err := withTelemetry(s, ctx, "CalculateAndCacheBatch", strings.Join(eventIDs, ","), func(ctx context.Context) (batchResult, error) {
		return s.calculateAndCacheBatchLogic(ctx, eventIDs, forceRefresh)
	})
	if err != nil {
		return nil, err
	}
	if result.IsFailure() {
		return nil, *result.Failure
	}
	return *result.Success, nil
}

func (s *ScoreboardService) calculateAndCacheBatchLogic(ctx context.Context, eventIDs []string, forceRefresh bool) (batchResult, error) {
	ids, err := normalizeEventIDs(eventIDs)
	if err != nil {
		return results.FailureResult[map[string]BatchResult, error](err), nil
	}

	out := make(map[string]BatchResult, len(ids))
	missing := make([]string, 0, len(ids))
	for _, id := range ids {
		if !forceRefresh {
			snap, hit := s.cache.Get(id)
			if s.metrics != nil {
				s.metrics.RecordCacheLookup(ctx, hit)
			}
			if hit {
				out[id] = BatchResult{Snapshot: snap}
				continue
			}
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return results.SuccessResult[map[string]BatchResult, error](out), nil
	}

	var (
		standings []scoreboarddb.StandingRow
		raws      []scoreboarddb.RawScoreRow
	)
	start := time.Now()
	err = s.store.ExecuteBatch(ctx, "scoreboard.aggregate", func(ctx context.Context, db bun.IDB) error {
		var err error
		if standings, err = s.repo.AggregateStandings(ctx, db, missing); err != nil {
			return err
		}
		raws, err = s.repo.ListRawScores(ctx, db, missing)
		return err
	})
	if err != nil {
		return batchResult{}, fmt.Errorf("failed to load scoreboards: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RecordComputation(ctx, len(missing), time.Since(start))
	}

	computed := buildSnapshots(standings, raws, s.now().UTC())
	for _, id := range missing {
		snap, ok := computed[id]
		if !ok {
			out[id] = BatchResult{Err: ErrEventNotFound}
			continue
		}
		s.cache.Set(id, snap)
		out[id] = BatchResult{Snapshot: snap}
	}

	s.logger.InfoContext(ctx, "Scoreboards computed",
		attr.ExtractCorrelationID(ctx),
		attr.Int("requested", len(ids)),
		attr.Int("computed", len(computed)),
		attr.Bool("force_refresh", forceRefresh),
	)
	return results.SuccessResult[map[string]BatchResult, error](out), nil
}

// CalculateAndCache computes or reuses the scoreboard of one event.
func (s *ScoreboardService) CalculateAndCache(ctx context.Context, eventID string, forceRefresh bool) (*scoreboardtypes.Snapshot, error) {
	out, err := s.CalculateAndCacheBatch(ctx, []string{eventID}, forceRefresh)
	if err != nil {
		return nil, err
	}
	res, ok := out[strings.TrimSpace(eventID)]
	if !ok {
		return nil, ErrEventNotFound
	}
	if res.Err != nil {
		return nil, res.Err
	}
	return res.Snapshot, nil
}

// GetScoreboard serves from the cache and computes on a miss.
func (s *ScoreboardService) GetScoreboard(ctx context.Context, eventID string) (*scoreboardtypes.Snapshot, error) {
	return s.CalculateAndCache(ctx, eventID, false)
}

// RefreshEvent bypasses the cache and pushes the fresh scoreboard to every
// viewer of eventID.
func (s *ScoreboardService) RefreshEvent(ctx context.Context, eventID string) (*scoreboardtypes.Snapshot, error) {
	if s.metrics != nil {
		s.metrics.RecordRefreshTrigger(ctx, "score_mutation")
	}
	return s.CalculateAndCache(ctx, eventID, true)
}

// normalizeEventIDs trims ids, rejects blanks and drops duplicates keeping
// first-seen order.
func normalizeEventIDs(eventIDs []string) ([]string, error) {
	seen := make(map[string]struct{}, len(eventIDs))
	out := make([]string, 0, len(eventIDs))
	for _, raw := range eventIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			return nil, ErrInvalidEventID
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}
