package scoreboardhandlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	scoreboardservice "github.com/Black-And-White-Club/quiscore/app/modules/scoreboard/application"
	"github.com/Black-And-White-Club/quiscore/app/modules/scoreboard/infrastructure/scorestore"
	"github.com/Black-And-White-Club/quiscore/app/shared/observability/attr"
	scoreboardtypes "github.com/Black-And-White-Club/quiscore/pkg/types/scoreboard"
)

const (
	// MaxBatchSize caps the number of events in one batch request.
	MaxBatchSize = 100

	maxBodyBytes = 1 << 20

	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

func (h *ScoreboardHandlers) HandleGetScoreboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	eventID := eventIDParam(r)

	refresh := false
	if raw := r.URL.Query().Get("refresh"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid refresh parameter")
			return
		}
		refresh = v
	}

	snap, err := h.service.CalculateAndCache(ctx, eventID, refresh)
	if err != nil {
		h.writeServiceError(ctx, w, eventID, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *ScoreboardHandlers) HandleBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req scoreboardtypes.BatchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.EventIDs) == 0 {
		writeError(w, http.StatusBadRequest, "eventIds must not be empty")
		return
	}
	if len(req.EventIDs) > MaxBatchSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d eventIds per request", MaxBatchSize))
		return
	}

	results, err := h.service.CalculateAndCacheBatch(ctx, req.EventIDs, req.ForceRefresh)
	if err != nil {
		h.writeServiceError(ctx, w, strings.Join(req.EventIDs, ","), err)
		return
	}

	resp := scoreboardtypes.BatchResponse{
		Scoreboards: make(map[string]*scoreboardtypes.Snapshot, len(results)),
	}
	for id, res := range results {
		if res.Err != nil {
			if resp.Errors == nil {
				resp.Errors = make(map[string]string)
			}
			resp.Errors[id] = res.Err.Error()
			continue
		}
		resp.Scoreboards[id] = res.Snapshot
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *ScoreboardHandlers) HandleChart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	eventID := eventIDParam(r)

	png, err := h.service.ScoreboardChart(ctx, eventID)
	if err != nil {
		h.writeServiceError(ctx, w, eventID, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (h *ScoreboardHandlers) HandleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	eventID := eventIDParam(r)

	xlsx, err := h.service.ScoreboardWorkbook(ctx, eventID)
	if err != nil {
		h.writeServiceError(ctx, w, eventID, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "scoreboard-"+eventID+".xlsx"))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(xlsx)
}

// ProcessStats describes the serving process.
type ProcessStats struct {
	UptimeSeconds  float64 `json:"uptimeSeconds"`
	Goroutines     int     `json:"goroutines"`
	HeapAllocBytes uint64  `json:"heapAllocBytes"`
	SysBytes       uint64  `json:"sysBytes"`
	NumGC          uint32  `json:"numGC"`
}

// StatsResponse is the body of the admin stats endpoint.
type StatsResponse struct {
	scoreboardservice.Stats
	Process ProcessStats `json:"process"`
}

func (h *ScoreboardHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	writeJSON(w, http.StatusOK, StatsResponse{
		Stats: h.service.Stats(),
		Process: ProcessStats{
			UptimeSeconds:  time.Since(h.startedAt).Seconds(),
			Goroutines:     runtime.NumGoroutine(),
			HeapAllocBytes: mem.HeapAlloc,
			SysBytes:       mem.Sys,
			NumGC:          mem.NumGC,
		},
	})
}

func eventIDParam(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "eventID"))
}

// statusFor maps service errors onto HTTP statuses.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, scoreboardservice.ErrInvalidEventID):
		return http.StatusBadRequest, "invalid event id"
	case errors.Is(err, scoreboardservice.ErrEventNotFound):
		return http.StatusNotFound, "event not found"
	case errors.Is(err, scorestore.ErrRetriesExhausted),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "scoreboard temporarily unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (h *ScoreboardHandlers) writeServiceError(ctx context.Context, w http.ResponseWriter, eventID string, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "Scoreboard request failed",
			attr.ExtractCorrelationID(ctx),
			attr.EventID(eventID),
			attr.Int("status", status),
			attr.Error(err),
		)
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	writeError(w, status, msg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, scoreboardtypes.ErrorResponse{Error: msg})
}
