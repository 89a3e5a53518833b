// Package eventbus carries score mutation and scoreboard update events
// between quiscore processes.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	nc "github.com/nats-io/nats.go"

	"github.com/Black-And-White-Club/quiscore/app/shared/observability/attr"
)

// EventBus publishes and subscribes to topics.
type EventBus interface {
	message.Publisher
	message.Subscriber
}

type eventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *slog.Logger
}

// NewNATS connects to natsURL using core NATS subjects. Every process
// subscribing to a topic receives every message published on it, which keeps
// each process's scoreboard cache fresh.
func NewNATS(natsURL string, logger *slog.Logger) (EventBus, error) {
	if logger == nil {
		logger = slog.Default()
	}
	wmLogger := watermill.NewSlogLogger(logger)
	marshaler := &nats.NATSMarshaler{}

	natsOptions := []nc.Option{
		nc.RetryOnFailedConnect(true),
		nc.Timeout(30 * time.Second),
		nc.ReconnectWait(1 * time.Second),
		nc.MaxReconnects(-1),
		nc.DisconnectErrHandler(func(_ *nc.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", attr.Error(err))
			}
		}),
		nc.ReconnectHandler(func(conn *nc.Conn) {
			logger.Info("NATS reconnected", attr.String("url", conn.ConnectedUrl()))
		}),
	}

	publisher, err := nats.NewPublisher(nats.PublisherConfig{
		URL:         natsURL,
		NatsOptions: natsOptions,
		Marshaler:   marshaler,
		JetStream: nats.JetStreamConfig{
			Disabled: true,
		},
		SubjectCalculator: nats.DefaultSubjectCalculator,
	}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create NATS publisher: %w", err)
	}

	subscriber, err := nats.NewSubscriber(nats.SubscriberConfig{
		URL:            natsURL,
		CloseTimeout:   30 * time.Second,
		AckWaitTimeout: 30 * time.Second,
		NatsOptions:    natsOptions,
		Unmarshaler:    marshaler,
		JetStream: nats.JetStreamConfig{
			Disabled: true,
		},
		SubjectCalculator: nats.DefaultSubjectCalculator,
	}, wmLogger)
	if err != nil {
		_ = publisher.Close()
		return nil, fmt.Errorf("failed to create NATS subscriber: %w", err)
	}

	logger.Info("Event bus connected", attr.String("url", natsURL))
	return &eventBus{publisher: publisher, subscriber: subscriber, logger: logger}, nil
}

// NewGoChannel returns an in-process bus, used when no NATS URL is
// configured and in tests.
func NewGoChannel(logger *slog.Logger) EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 64,
	}, watermill.NewSlogLogger(logger))
	return &eventBus{publisher: pubSub, subscriber: pubSub, logger: logger}
}

// TopicMetadataKey names the metadata entry used to route a message when
// Publish is called without a topic, as the router does for handlers that
// emit to several topics.
const TopicMetadataKey = "topic"

func (eb *eventBus) Publish(topic string, messages ...*message.Message) error {
	if topic == "" {
		for _, msg := range messages {
			target := msg.Metadata.Get(TopicMetadataKey)
			if target == "" {
				return fmt.Errorf("message %s has no topic", msg.UUID)
			}
			if err := eb.Publish(target, msg); err != nil {
				return err
			}
		}
		return nil
	}
	if err := eb.publisher.Publish(topic, messages...); err != nil {
		eb.logger.Error("Failed to publish message", attr.String("topic", topic), attr.Error(err))
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

func (eb *eventBus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	msgs, err := eb.subscriber.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	return msgs, nil
}

// Close closes the subscriber before the publisher. Closing a shared
// gochannel twice is a no-op.
func (eb *eventBus) Close() error {
	var errs []error
	if err := eb.subscriber.Close(); err != nil {
		errs = append(errs, fmt.Errorf("subscriber: %w", err))
	}
	if any(eb.publisher) != any(eb.subscriber) {
		if err := eb.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}
	return errors.Join(errs...)
}

// NewMessage encodes payload as JSON in a new message carrying the
// correlation ID found in ctx.
func NewMessage(ctx context.Context, payload any) (*message.Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), body)
	msg.SetContext(ctx)

	correlationID := attr.CorrelationIDFrom(ctx)
	if correlationID == "" {
		correlationID = watermill.NewUUID()
	}
	middleware.SetCorrelationID(correlationID, msg)
	return msg, nil
}

// DecodeMessage unmarshals the JSON payload of msg into v.
func DecodeMessage(msg *message.Message, v any) error {
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return fmt.Errorf("failed to unmarshal message %s: %w", msg.UUID, err)
	}
	return nil
}
