package scoreboardhandlers

import (
	"context"
	"errors"
	"strings"

	scoreboardservice "github.com/Black-And-White-Club/quiscore/app/modules/scoreboard/application"
	"github.com/Black-And-White-Club/quiscore/app/shared/handlerwrapper"
	"github.com/Black-And-White-Club/quiscore/app/shared/observability/attr"
	scoreboardevents "github.com/Black-And-White-Club/quiscore/pkg/events/scoreboard"
)

// HandleScoreMutated forces a recompute of the mutated event. Events the
// store does not know and blank ids are acknowledged without output; store
// failures are returned so the router retries them.
func (h *ScoreboardHandlers) HandleScoreMutated(
	ctx context.Context,
	payload *scoreboardevents.ScoreMutatedPayloadV1,
) ([]handlerwrapper.Result, error) {
	eventID := strings.TrimSpace(payload.EventID)
	if eventID == "" {
		h.logger.WarnContext(ctx, "Score mutation without event id", attr.ExtractCorrelationID(ctx))
		return nil, nil
	}

	snap, err := h.service.RefreshEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, scoreboardservice.ErrEventNotFound) {
			h.logger.WarnContext(ctx, "Score mutation for unknown event",
				attr.ExtractCorrelationID(ctx),
				attr.EventID(eventID),
			)
			return nil, nil
		}
		return nil, err
	}

	return []handlerwrapper.Result{{
		Topic: scoreboardevents.ScoreboardUpdatedV1,
		Payload: &scoreboardevents.ScoreboardUpdatedPayloadV1{
			EventID:    snap.EventID,
			TeamCount:  len(snap.Teams),
			ComputedAt: snap.ComputedAt,
		},
	}}, nil
}
