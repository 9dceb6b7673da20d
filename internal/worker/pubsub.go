package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/breatheroute/navcore/internal/session"
)

// FixSink receives the fixes read from the subscription.
type FixSink interface {
	PushFix(ctx context.Context, owner, id string, fix session.Fix) (*session.FixResult, error)
}

// FixMessage is the JSON payload of one fix message.
type FixMessage struct {
	SessionID string    `json:"session_id"`
	Owner     string    `json:"owner"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Bearing   *float64  `json:"bearing,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// FixSubscriber feeds fixes published to a Pub/Sub subscription into
// navigation sessions.
type FixSubscriber struct {
	client       *pubsub.Client
	subscriber   *pubsub.Subscriber
	subscription string
	sink         FixSink
	logger       zerolog.Logger
}

// NewFixSubscriber creates a subscriber for cfg.Subscription.
func NewFixSubscriber(ctx context.Context, cfg SubscriberConfig, sink FixSink, logger zerolog.Logger) (*FixSubscriber, error) {
	cfg = cfg.withDefaults()

	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.Subscription)
	subscriber.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstanding
	subscriber.ReceiveSettings.MaxExtension = cfg.MaxExtension

	return &FixSubscriber{
		client:       client,
		subscriber:   subscriber,
		subscription: cfg.Subscription,
		sink:         sink,
		logger:       logger.With().Str("component", "fix_subscriber").Logger(),
	}, nil
}

// Start receives fixes until ctx is done.
func (s *FixSubscriber) Start(ctx context.Context) error {
	s.logger.Info().
		Str("subscription", s.subscription).
		Msg("starting fix subscriber")

	return s.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		s.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (s *FixSubscriber) Close() error {
	return s.client.Close()
}

func (s *FixSubscriber) handleMessage(ctx context.Context, msg *pubsub.Message) {
	logger := s.logger.With().
		Str("message_id", msg.ID).
		Logger()

	if process(ctx, s.sink, msg.Data, msg.PublishTime, logger) {
		msg.Ack()
		return
	}
	msg.Nack()
}

// process pushes one message into its session and reports whether it
// should be acknowledged. Messages that can never succeed are acknowledged
// so they are not redelivered.
func process(ctx context.Context, sink FixSink, data []byte, published time.Time, logger zerolog.Logger) bool {
	var m FixMessage
	if err := json.Unmarshal(data, &m); err != nil {
		logger.Error().Err(err).Msg("dropping malformed fix message")
		return true
	}
	if m.SessionID == "" || m.Owner == "" {
		logger.Warn().Msg("dropping fix message without session or owner")
		return true
	}

	fix := session.Fix{Lat: m.Lat, Lon: m.Lon, Bearing: m.Bearing, Timestamp: m.Timestamp}
	if fix.Timestamp.IsZero() {
		fix.Timestamp = published
	}

	logger = logger.With().Str("session_id", m.SessionID).Logger()

	result, err := sink.PushFix(ctx, m.Owner, m.SessionID, fix)
	switch {
	case err == nil:
		logger.Debug().
			Int("events", len(result.Events)).
			Str("state", result.Status.State).
			Msg("fix processed")
		return true
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrStaleFix),
		errors.Is(err, session.ErrInvalidFix):
		logger.Info().Err(err).Msg("dropping fix")
		return true
	default:
		logger.Error().Err(err).Msg("fix failed, will retry")
		return false
	}
}
