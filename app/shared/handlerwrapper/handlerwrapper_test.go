package handlerwrapper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Black-And-White-Club/quiscore/app/eventbus"
	"github.com/Black-And-White-Club/quiscore/app/shared/observability/attr"
)

type ping struct {
	ID string `json:"id"`
}

type pong struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

type fakeMetrics struct {
	calls []string
}

func (f *fakeMetrics) RecordHandlerAttempt(context.Context, string) {
	f.calls = append(f.calls, "attempt")
}

func (f *fakeMetrics) RecordHandlerSuccess(context.Context, string) {
	f.calls = append(f.calls, "success")
}

func (f *fakeMetrics) RecordHandlerFailure(context.Context, string) {
	f.calls = append(f.calls, "failure")
}

func (f *fakeMetrics) RecordHandlerDuration(context.Context, string, time.Duration) {
	f.calls = append(f.calls, "duration")
}

func TestWrapTransformingTyped(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tracer := noop.NewTracerProvider().Tracer("test")
	handlerErr := errors.New("boom")

	tests := []struct {
		name        string
		payload     []byte
		handler     func(context.Context, *ping) ([]Result, error)
		wantErr     bool
		wantTopics  []string
		wantMetrics []string
	}{
		{
			name:    "emits results",
			payload: []byte(`{"id":"E1"}`),
			handler: func(_ context.Context, p *ping) ([]Result, error) {
				return []Result{{Topic: "out", Payload: pong{ID: p.ID, Count: 1}}}, nil
			},
			wantTopics:  []string{"out"},
			wantMetrics: []string{"attempt", "success", "duration"},
		},
		{
			name:    "handler error is returned",
			payload: []byte(`{"id":"E1"}`),
			handler: func(context.Context, *ping) ([]Result, error) {
				return nil, handlerErr
			},
			wantErr:     true,
			wantMetrics: []string{"attempt", "failure", "duration"},
		},
		{
			name:    "undecodable payload is acknowledged",
			payload: []byte(`not json`),
			handler: func(context.Context, *ping) ([]Result, error) {
				t.Error("handler must not run")
				return nil, nil
			},
			wantMetrics: []string{"attempt", "failure", "duration"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeMetrics{}
			h := WrapTransformingTyped("test.handler", logger, tracer, m, tt.handler)

			msg := message.NewMessage(watermill.NewUUID(), tt.payload)
			middleware.SetCorrelationID("corr-1", msg)

			out, err := h(msg)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, handlerErr)
			} else {
				require.NoError(t, err)
			}

			var topics []string
			for _, o := range out {
				topics = append(topics, o.Metadata.Get(eventbus.TopicMetadataKey))
				assert.Equal(t, "corr-1", middleware.MessageCorrelationID(o))
			}
			assert.Equal(t, tt.wantTopics, topics)
			assert.Equal(t, tt.wantMetrics, m.calls)
		})
	}
}

func TestWrapTransformingTyped_PropagatesCorrelationID(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var seen string
	h := WrapTransformingTyped("test.handler", logger, nil, nil, func(ctx context.Context, _ *ping) ([]Result, error) {
		seen = attr.CorrelationIDFrom(ctx)
		return nil, nil
	})

	msg := message.NewMessage(watermill.NewUUID(), []byte(`{"id":"x"}`))
	middleware.SetCorrelationID("corr-9", msg)

	_, err := h(msg)
	require.NoError(t, err)
	assert.Equal(t, "corr-9", seen)
}
