// Package push delivers game-server events to the engine over NATS
// JetStream. Subjects are room.events.<roomID>.<topic>; JetStream gives at-
// least-once, order-preserving-per-subject delivery, and the reconciler
// absorbs the duplicates.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mkral/clueroom/internal/room"
)

// Config holds NATS connection and stream settings.
type Config struct {
	URL           string
	StreamName    string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConfig returns the default push channel configuration.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		StreamName:    "ROOM_EVENTS",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// Consumer subscribes engine sessions to per-room event subjects.
type Consumer struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config Config
}

// NewConsumer connects to NATS and prepares the JetStream context.
func NewConsumer(config Config) (*Consumer, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	return &Consumer{nc: nc, js: js, config: config}, nil
}

// Subscribe attaches an ephemeral ordered consumer for one room and
// translates its messages into room events. The returned func detaches it.
func (c *Consumer) Subscribe(ctx context.Context, roomID int, deliver func(*room.Event)) (func(), error) {
	stream, err := c.js.Stream(ctx, c.config.StreamName)
	if err != nil {
		return nil, fmt.Errorf("get stream: %w", err)
	}

	consumer, err := stream.CreateConsumer(ctx, jetstream.ConsumerConfig{
		Description:   fmt.Sprintf("room %d view consumer", roomID),
		FilterSubject: fmt.Sprintf("room.events.%d.>", roomID),
		DeliverPolicy: jetstream.DeliverNewPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer: %w", err)
	}

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		ev, err := decodeMessage(msg)
		if err != nil {
			// Malformed payloads are dropped, not redelivered forever.
			log.Error().Err(err).Str("subject", msg.Subject()).Msg("dropping undecodable push message")
			_ = msg.Ack()
			return
		}
		deliver(ev)
		if err := msg.Ack(); err != nil {
			log.Error().Err(err).Msg("failed to ACK push message")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("start consumer: %w", err)
	}

	log.Info().Int("room_id", roomID).Msg("push listener attached")
	return func() {
		consumeCtx.Stop()
		log.Info().Int("room_id", roomID).Msg("push listener detached")
	}, nil
}

// Close shuts the NATS connection down.
func (c *Consumer) Close() {
	if c.nc != nil {
		c.nc.Close()
	}
}

// envelope is the broker message wrapper.
type envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	RoomID    int             `json:"roomId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

func decodeMessage(msg jetstream.Msg) (*room.Event, error) {
	var env envelope
	if err := json.Unmarshal(msg.Data(), &env); err != nil {
		return nil, fmt.Errorf("unmarshal event envelope: %w", err)
	}

	eventType, err := eventTypeFor(env.EventType, msg.Subject())
	if err != nil {
		return nil, err
	}

	return &room.Event{
		ID:        env.EventID,
		RoomID:    env.RoomID,
		Type:      eventType,
		Timestamp: env.Timestamp,
		Data:      env.Payload,
	}, nil
}

// eventTypeFor maps the envelope event type, falling back to the subject
// suffix when the envelope omits it.
func eventTypeFor(eventType, subject string) (room.EventType, error) {
	switch room.EventType(eventType) {
	case room.EventTypeChatNew, room.EventTypeRoundDescription, room.EventTypeRoundWon:
		return room.EventType(eventType), nil
	}

	parts := strings.Split(subject, ".")
	if len(parts) >= 2 {
		suffix := strings.Join(parts[len(parts)-2:], ".")
		switch suffix {
		case "chat.new":
			return room.EventTypeChatNew, nil
		case "round.description":
			return room.EventTypeRoundDescription, nil
		case "round.won":
			return room.EventTypeRoundWon, nil
		}
	}
	return "", fmt.Errorf("unknown event type %q on subject %q", eventType, subject)
}
