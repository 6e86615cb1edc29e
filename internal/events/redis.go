package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"slotbook/internal/metrics"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	DefaultChannel        = "slotbook:events"
	defaultPublishTimeout = 2 * time.Second
)

// RedisRelay fans events out across processes. Publish sends to a Redis
// channel; Run feeds everything received on that channel into the local bus,
// including events this process published.
type RedisRelay struct {
	rdb     *redis.Client
	bus     *Bus
	channel string
	timeout time.Duration
	logger  *zerolog.Logger
	ready   chan struct{}
}

type RelayOption func(*RedisRelay)

func WithChannel(channel string) RelayOption {
	return func(r *RedisRelay) {
		if channel != "" {
			r.channel = channel
		}
	}
}

func WithPublishTimeout(d time.Duration) RelayOption {
	return func(r *RedisRelay) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithRelayLogger(logger *zerolog.Logger) RelayOption {
	return func(r *RedisRelay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewRedisRelay(rdb *redis.Client, bus *Bus, opts ...RelayOption) *RedisRelay {
	nop := zerolog.New(io.Discard)
	r := &RedisRelay{
		rdb:     rdb,
		bus:     bus,
		channel: DefaultChannel,
		timeout: defaultPublishTimeout,
		logger:  &nop,
		ready:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Publish serialises e and sends it to the relay channel. A failure is logged
// and returned; the change it describes has already been committed.
func (r *RedisRelay) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	if err := r.rdb.Publish(ctx, r.channel, payload).Err(); err != nil {
		metrics.IncRelayError()
		r.logger.Warn().Err(err).
			Str("kind", string(e.Kind)).
			Str("operation", string(e.Operation)).
			Int64("id", e.EntityID()).
			Msg("Failed to relay event")
		return fmt.Errorf("publish to %s: %w", r.channel, err)
	}
	return nil
}

// Ready is closed once Run has an active subscription.
func (r *RedisRelay) Ready() <-chan struct{} {
	return r.ready
}

// Run subscribes to the relay channel and republishes each event on the local
// bus until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.rdb.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", r.channel, err)
	}
	close(r.ready)
	r.logger.Info().Str("channel", r.channel).Msg("Event relay subscribed")

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var e Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				metrics.IncRelayError()
				r.logger.Warn().Err(err).Msg("Discarding malformed relayed event")
				continue
			}
			if err := r.bus.Publish(ctx, e); err != nil {
				return nil
			}
		}
	}
}
