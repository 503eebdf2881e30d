package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/skjftp/fpl-auction-sub001/go/internal/events"
	"github.com/skjftp/fpl-auction-sub001/go/internal/outbox"
)

// ConsumerConfig configures the durable JetStream consumer. Every gateway
// instance needs its own Name, otherwise instances split the stream between
// them.
type ConsumerConfig struct {
	Name          string        `yaml:"name" env:"GATEWAY_CONSUMER_NAME"`
	MaxDeliver    int           `yaml:"max_deliver" env:"GATEWAY_CONSUMER_MAX_DELIVER"`
	AckWait       time.Duration `yaml:"ack_wait" env:"GATEWAY_CONSUMER_ACK_WAIT"`
	MaxAckPending int           `yaml:"max_ack_pending" env:"GATEWAY_CONSUMER_MAX_ACK_PENDING"`
}

func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Name:          "auction-gateway",
		MaxDeliver:    5,
		AckWait:       30 * time.Second,
		MaxAckPending: 100,
	}
}

// seenWindow bounds how many event ids are remembered for redelivery dedupe
const seenWindow = 1024

// EventConsumer feeds the connection manager, or any broadcaster, from the
// AUCTION_EVENTS stream
type EventConsumer struct {
	out      events.Broadcaster
	consumer jetstream.Consumer
	stream   outbox.JetStreamConfig
	config   ConsumerConfig

	mu   sync.Mutex
	seen map[uuid.UUID]bool
	ring []uuid.UUID
}

// NewEventConsumer creates or updates the durable consumer on the stream
func NewEventConsumer(ctx context.Context, nc *nats.Conn, out events.Broadcaster, stream outbox.JetStreamConfig, cfg ConsumerConfig) (*EventConsumer, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	ec := newEventConsumer(out, stream, cfg)
	if err := ec.ensureConsumer(ctx, js); err != nil {
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}
	return ec, nil
}

func newEventConsumer(out events.Broadcaster, stream outbox.JetStreamConfig, cfg ConsumerConfig) *EventConsumer {
	return &EventConsumer{
		out:    out,
		stream: stream,
		config: cfg,
		seen:   make(map[uuid.UUID]bool, seenWindow),
	}
}

func (ec *EventConsumer) ensureConsumer(ctx context.Context, js jetstream.JetStream) error {
	stream, err := js.Stream(ctx, ec.stream.StreamName)
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}
	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          ec.config.Name,
		Durable:       ec.config.Name,
		Description:   "auction gateway websocket fan-out",
		FilterSubject: ec.stream.SubjectPrefix + ".>",
		DeliverPolicy: jetstream.DeliverNewPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    ec.config.MaxDeliver,
		AckWait:       ec.config.AckWait,
		MaxAckPending: ec.config.MaxAckPending,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}
	log.Info().
		Str("consumer", ec.config.Name).
		Str("stream", ec.stream.StreamName).
		Msg("JetStream consumer ready")
	ec.consumer = consumer
	return nil
}

// Start consumes until ctx ends. Messages are handled one at a time so the
// stream order is the order clients see.
func (ec *EventConsumer) Start(ctx context.Context) error {
	messageCh := make(chan jetstream.Msg, ec.config.MaxAckPending)
	consumeCtx, err := ec.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			_ = msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("event consumer shutting down")
			return nil
		case msg := <-messageCh:
			if err := ec.HandleMessage(ctx, msg.Data()); err != nil {
				log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to process message")
				if nakErr := msg.Nak(); nakErr != nil {
					log.Error().Err(nakErr).Msg("failed to NAK message")
				}
				continue
			}
			if ackErr := msg.Ack(); ackErr != nil {
				log.Error().Err(ackErr).Msg("failed to ACK message")
			}
		}
	}
}

// HandleMessage decodes one stream message and broadcasts it. A redelivered
// event that was already broadcast is acknowledged without sending it again.
func (ec *EventConsumer) HandleMessage(ctx context.Context, data []byte) error {
	var evt events.Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return fmt.Errorf("unmarshal event envelope: %w", err)
	}
	if evt.ID == uuid.Nil || evt.Type == "" {
		return fmt.Errorf("event envelope missing id or type")
	}
	if ec.markSeen(evt.ID) {
		log.Debug().Str("event_id", evt.ID.String()).Msg("skipping redelivered event")
		return nil
	}
	if err := ec.out.Publish(ctx, evt); err != nil {
		ec.forget(evt.ID)
		return err
	}
	return nil
}

// markSeen records id and reports whether it was already recorded
func (ec *EventConsumer) markSeen(id uuid.UUID) bool {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if ec.seen[id] {
		return true
	}
	if len(ec.ring) == seenWindow {
		delete(ec.seen, ec.ring[0])
		ec.ring = ec.ring[1:]
	}
	ec.ring = append(ec.ring, id)
	ec.seen[id] = true
	return false
}

func (ec *EventConsumer) forget(id uuid.UUID) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	delete(ec.seen, id)
}

// Info returns the consumer state from the server
func (ec *EventConsumer) Info(ctx context.Context) (*jetstream.ConsumerInfo, error) {
	return ec.consumer.Info(ctx)
}
