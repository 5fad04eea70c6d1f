package notify

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stwalsh4118/lecturesfrom/internal/logger"
	"golang.org/x/sync/errgroup"
)

const (
	bridgePublishTimeout  = 2 * time.Second
	bridgeBreakerFailures = 5
	bridgeBreakerCooldown = 30 * time.Second
	bridgeOutboxSize      = 1024
	// batches drained into one pipeline round trip
	bridgeMaxDrain = 64
)

// envelope is the wire form of a change relayed between instances
type envelope struct {
	Origin string `json:"origin"`
	Change Change `json:"change"`
}

// RedisBridge relays changes between instances sharing a Redis server.
// Each instance publishes its local changes on prefix+event_id and delivers
// changes from other instances to its own hub.
type RedisBridge struct {
	client  *redis.Client
	hub     *Hub
	prefix  string
	origin  string
	breaker *Breaker
	outbox  chan []Change
}

// NewRedisBridge creates a bridge and registers it as the hub's forwarder
func NewRedisBridge(client *redis.Client, hub *Hub, prefix string) *RedisBridge {
	b := &RedisBridge{
		client:  client,
		hub:     hub,
		prefix:  prefix,
		origin:  uuid.NewString(),
		breaker: NewBreaker(bridgeBreakerFailures, bridgeBreakerCooldown),
		outbox:  make(chan []Change, bridgeOutboxSize),
	}
	hub.SetForwarder(b.forward)
	return b
}

func (b *RedisBridge) channel(eventID uuid.UUID) string {
	return b.prefix + eventID.String()
}

// forward queues local changes for the relay loop. It runs while the
// publisher holds the event lock, so it never waits on Redis; when the
// outbox is full the batch is dropped and remote subscribers recover
// through a full-state read.
func (b *RedisBridge) forward(changes []Change) {
	if len(changes) == 0 {
		return
	}
	select {
	case b.outbox <- changes:
	default:
		logger.Log.Warn().
			Str("event_id", changes[0].EventID.String()).
			Uint64("seq", changes[0].Seq).
			Int("changes", len(changes)).
			Msg("Relay outbox full, dropping changes")
	}
}

// Run relays local changes and receives changes from other instances until
// ctx is cancelled
func (b *RedisBridge) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b.relay(gctx)
		return nil
	})
	g.Go(func() error {
		return b.receive(gctx)
	})
	return g.Wait()
}

// relay publishes queued changes in order, one pipeline per drain
func (b *RedisBridge) relay(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case changes := <-b.outbox:
			batch := append([]Change(nil), changes...)
		drain:
			for i := 1; i < bridgeMaxDrain; i++ {
				select {
				case more := <-b.outbox:
					batch = append(batch, more...)
				default:
					break drain
				}
			}
			b.publish(ctx, batch)
		}
	}
}

// publish sends a batch of changes in a single round trip. Failures are
// logged and never reach the publisher.
func (b *RedisBridge) publish(ctx context.Context, changes []Change) {
	type message struct {
		channel string
		data    []byte
	}
	messages := make([]message, 0, len(changes))
	for _, c := range changes {
		data, err := json.Marshal(envelope{Origin: b.origin, Change: c})
		if err != nil {
			logger.Log.Error().Err(err).Str("event_id", c.EventID.String()).Msg("Failed to encode change for relay")
			continue
		}
		messages = append(messages, message{channel: b.channel(c.EventID), data: data})
	}
	if len(messages) == 0 {
		return
	}

	err := b.breaker.Do(func() error {
		ctx, cancel := context.WithTimeout(ctx, bridgePublishTimeout)
		defer cancel()
		_, err := b.client.Pipelined(ctx, func(p redis.Pipeliner) error {
			for _, m := range messages {
				p.Publish(ctx, m.channel, m.data)
			}
			return nil
		})
		return err
	})
	if err != nil {
		logger.Log.Warn().
			Err(err).
			Int("changes", len(messages)).
			Str("breaker", b.breaker.State().String()).
			Msg("Failed to relay changes")
	}
}

func (b *RedisBridge) receive(ctx context.Context) error {
	pubsub := b.client.PSubscribe(ctx, b.prefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	logger.Log.Info().
		Str("pattern", b.prefix+"*").
		Str("origin", b.origin).
		Msg("Change relay subscribed")

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			logger.Log.Info().Msg("Change relay stopped")
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			b.handle(msg)
		}
	}
}

func (b *RedisBridge) handle(msg *redis.Message) {
	var env envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		logger.Log.Warn().Err(err).Str("channel", msg.Channel).Msg("Discarding malformed relay message")
		return
	}
	if env.Origin == b.origin {
		return
	}

	eventID, err := uuid.Parse(strings.TrimPrefix(msg.Channel, b.prefix))
	if err != nil || eventID != env.Change.EventID {
		logger.Log.Warn().Str("channel", msg.Channel).Msg("Discarding relay message for mismatched event")
		return
	}

	b.hub.Deliver(env.Change)
}

// Origin returns this instance's relay identity
func (b *RedisBridge) Origin() string {
	return b.origin
}
