package scoreboardhandlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Black-And-White-Club/quiscore/app/shared/observability/attr"
	scoreboardtypes "github.com/Black-And-White-Club/quiscore/pkg/types/scoreboard"
)

const (
	// SnapshotEvent is the SSE event name of scoreboard frames.
	SnapshotEvent = "snapshot"

	// retryAfterSeconds is suggested to viewers refused for capacity. They
	// poll in the meantime.
	retryAfterSeconds = 10
)

var errStreamClosed = errors.New("stream closed")

// streamWriter writes SSE frames with a deadline per frame.
type streamWriter struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	timeout time.Duration
	seq     int
}

func (sw *streamWriter) write(frame []byte) error {
	if err := sw.rc.SetWriteDeadline(time.Now().Add(sw.timeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	if _, err := sw.w.Write(frame); err != nil {
		return err
	}
	return sw.rc.Flush()
}

func (sw *streamWriter) snapshot(snap *scoreboardtypes.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	sw.seq++
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "id: %d\nevent: %s\ndata: %s\n\n", sw.seq, SnapshotEvent, data)
	return sw.write(buf.Bytes())
}

func (sw *streamWriter) heartbeat() error {
	return sw.write([]byte(": heartbeat\n\n"))
}

// HandleStream subscribes to the event's cache entry on the viewer's behalf
// and writes one frame per update. The subscription is released when the
// viewer disconnects, a write fails or the handlers are closed.
func (h *ScoreboardHandlers) HandleStream(w http.ResponseWriter, r *http.Request) {
	eventID := eventIDParam(r)
	if eventID == "" {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}
	streamID := uuid.NewString()

	ctx := r.Context()
	var span trace.Span
	if h.tracer != nil {
		ctx, span = h.tracer.Start(ctx, "ScoreboardHandlers.HandleStream", trace.WithAttributes(
			attribute.String("event_id", eventID),
			attribute.String("stream_id", streamID),
		))
	} else {
		span = trace.SpanFromContext(ctx)
	}
	defer span.End()

	// The channel holds at most the latest undelivered snapshot; a newer one
	// replaces it, so a slow viewer skips intermediate scoreboards.
	updates := make(chan *scoreboardtypes.Snapshot, 1)
	done := make(chan struct{})
	defer close(done)

	unsubscribe, ok := h.service.Subscribe(eventID, func(snap *scoreboardtypes.Snapshot) error {
		select {
		case <-done:
			return errStreamClosed
		default:
		}
		for {
			select {
			case updates <- snap:
				return nil
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	if !ok {
		h.metrics.RecordStreamRejected(ctx)
		span.SetStatus(codes.Error, "subscriber capacity reached")
		h.logger.WarnContext(ctx, "Stream refused at subscriber capacity",
			attr.ExtractCorrelationID(ctx),
			attr.EventID(eventID),
		)
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
		writeError(w, http.StatusServiceUnavailable, "too many viewers")
		return
	}
	defer unsubscribe()

	initial, err := h.service.GetScoreboard(ctx, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.writeServiceError(ctx, w, eventID, err)
		return
	}

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sw := &streamWriter{w: w, rc: http.NewResponseController(w), timeout: h.cfg.WriteTimeout}
	opened := time.Now()
	h.metrics.RecordStreamOpened(ctx)
	h.logger.InfoContext(ctx, "Stream opened",
		attr.ExtractCorrelationID(ctx),
		attr.EventID(eventID),
		attr.String("stream_id", streamID),
	)

	reason := h.pump(ctx, sw, initial, updates)

	span.SetAttributes(
		attribute.String("close_reason", reason),
		attribute.Int("frames", sw.seq),
	)
	h.metrics.RecordStreamClosed(ctx, reason, time.Since(opened))
	h.logger.InfoContext(ctx, "Stream closed",
		attr.ExtractCorrelationID(ctx),
		attr.EventID(eventID),
		attr.String("stream_id", streamID),
		attr.String("reason", reason),
		attr.Int("frames", sw.seq),
	)
}

// pump writes frames until the stream ends and returns why it ended.
func (h *ScoreboardHandlers) pump(ctx context.Context, sw *streamWriter, initial *scoreboardtypes.Snapshot, updates <-chan *scoreboardtypes.Snapshot) string {
	if err := sw.snapshot(initial); err != nil {
		return "write_error"
	}
	last := initial

	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "client"
		case <-h.closing:
			return "shutdown"
		case snap := <-updates:
			if snap == last {
				continue
			}
			if err := sw.snapshot(snap); err != nil {
				h.logger.WarnContext(ctx, "Stream write failed", attr.ExtractCorrelationID(ctx), attr.Error(err))
				return "write_error"
			}
			last = snap
		case <-ticker.C:
			if err := sw.heartbeat(); err != nil {
				return "heartbeat_failed"
			}
		}
	}
}
