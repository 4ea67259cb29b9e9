package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/schollaertel/clocksynk/internal/models"
	"github.com/schollaertel/clocksynk/internal/store"
)

// Config holds JetStream connection settings for the game-state bus.
type Config struct {
	URL           string
	StreamName    string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConfig returns the default bus configuration.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		StreamName:    "GAME_STATE",
		SubjectPrefix: "games.state",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// Bus decorates a GameStateStore with a JetStream change feed: every
// successful Update is published to a per-game subject, and Subscribe
// consumes that subject. The stream retains only the latest record per game,
// so late subscribers start from current state.
type Bus struct {
	inner  store.GameStateStore
	nc     *nats.Conn
	js     jetstream.JetStream
	stream jetstream.Stream
	cfg    Config
}

// Wrap connects to NATS, ensures the game-state stream exists and returns the
// decorated store.
func Wrap(ctx context.Context, inner store.GameStateStore, cfg Config) (*Bus, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:              cfg.StreamName,
		Description:       "Latest scoreboard state per game",
		Subjects:          []string{cfg.SubjectPrefix + ".>"},
		MaxMsgsPerSubject: 1,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", cfg.StreamName, err)
	}

	return &Bus{inner: inner, nc: nc, js: js, stream: stream, cfg: cfg}, nil
}

// Close shuts down the NATS connection. The inner store is not closed.
func (b *Bus) Close() {
	b.nc.Close()
}

func (b *Bus) subject(gameID string) string {
	return b.cfg.SubjectPrefix + "." + gameID
}

func (b *Bus) Get(ctx context.Context, gameID string) (models.GameState, error) {
	return b.inner.Get(ctx, gameID)
}

func (b *Bus) Create(ctx context.Context, gameID string, initial models.GameState) (models.GameState, error) {
	created, err := b.inner.Create(ctx, gameID, initial)
	if err != nil {
		return models.GameState{}, err
	}
	b.publish(ctx, gameID, created)
	return created, nil
}

func (b *Bus) Update(ctx context.Context, gameID string, state models.GameState) (models.GameState, error) {
	updated, err := b.inner.Update(ctx, gameID, state)
	if err != nil {
		return models.GameState{}, err
	}
	b.publish(ctx, gameID, updated)
	return updated, nil
}

// publish broadcasts the authoritative record. Fire-and-forget: a publish
// failure is logged, never surfaced, because the write already landed.
func (b *Bus) publish(ctx context.Context, gameID string, state models.GameState) {
	data, err := json.Marshal(store.EncodeRecord(gameID, state))
	if err != nil {
		log.Error().Err(err).Str("game_id", gameID).Msg("failed to marshal game state for broadcast")
		return
	}
	if _, err := b.js.Publish(ctx, b.subject(gameID), data); err != nil {
		log.Error().Err(err).Str("game_id", gameID).Msg("failed to publish game state")
	}
}

// Subscribe delivers every broadcast record for the game to fn, starting with
// the latest retained one.
func (b *Bus) Subscribe(ctx context.Context, gameID string, fn func(models.GameState)) (store.Subscription, error) {
	consumer, err := b.stream.CreateConsumer(ctx, jetstream.ConsumerConfig{
		FilterSubject: b.subject(gameID),
		DeliverPolicy: jetstream.DeliverLastPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer for game %s: %w", gameID, err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		var rec store.Record
		if err := json.Unmarshal(msg.Data(), &rec); err != nil {
			log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to unmarshal broadcast record")
			msg.Ack()
			return
		}
		state, err := rec.Decode()
		if err != nil {
			log.Error().Err(err).Str("game_id", gameID).Msg("rejecting malformed broadcast record")
			msg.Ack()
			return
		}
		fn(state)
		if err := msg.Ack(); err != nil {
			log.Error().Err(err).Msg("failed to ACK broadcast message")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("start consumer for game %s: %w", gameID, err)
	}

	log.Debug().Str("game_id", gameID).Msg("subscribed to game state broadcasts")
	return &busSubscription{cc: cc}, nil
}

type busSubscription struct {
	cc   jetstream.ConsumeContext
	once sync.Once
}

func (s *busSubscription) Cancel() {
	s.once.Do(s.cc.Stop)
}
