package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/hearsay/internal/rumor"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Stream is the Redis stream every event is appended to.
const Stream = "hearsay:events"

// maxLen caps the stream so an idle consumer cannot grow it forever.
const maxLen = 10000

// Kind classifies an Event.
type Kind string

const (
	KindTick    Kind = "tick"
	KindRemoved Kind = "rumor.removed"
)

// Event is one entry on the stream.
type Event struct {
	ID     string           `json:"id"`
	Kind   Kind             `json:"kind"`
	At     time.Time        `json:"at"`
	Stats  *rumor.TickStats `json:"stats,omitempty"`
	Rumor  *rumor.Rumor     `json:"rumor,omitempty"`
	Reason string           `json:"reason,omitempty"`
}

// Bus publishes simulation events over Redis Streams.
type Bus struct {
	rdb     *redis.Client
	timeout time.Duration
	logger  *zap.Logger
}

// New connects to redisURL and returns a Bus.
func New(redisURL string, logger *zap.Logger) (*Bus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.Info("Redis bus connected", zap.String("stream", Stream))
	return &Bus{rdb: rdb, timeout: 5 * time.Second, logger: logger}, nil
}

// Publish appends an event to the stream, filling in its id and time.
func (b *Bus) Publish(ctx context.Context, ev *Event) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	_, err = b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: Stream,
		MaxLen: maxLen,
		Values: map[string]interface{}{
			"kind": string(ev.Kind),
			"data": string(data),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", Stream, err)
	}

	b.logger.Debug("published event",
		zap.String("id", ev.ID),
		zap.String("kind", string(ev.Kind)))
	return nil
}

// OnDailyTick publishes the tick report.
func (b *Bus) OnDailyTick(ctx context.Context, at time.Time, stats rumor.TickStats) error {
	return b.Publish(ctx, &Event{Kind: KindTick, At: at, Stats: &stats})
}

// OnRumorRemoved publishes a removal event. Failures are logged.
func (b *Bus) OnRumorRemoved(r rumor.Rumor, reason rumor.RemovalReason) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	ev := &Event{Kind: KindRemoved, Rumor: &r, Reason: string(reason)}
	if err := b.Publish(ctx, ev); err != nil {
		b.logger.Warn("removal event dropped",
			zap.String("rumor", r.ID),
			zap.Error(err))
	}
}

// Subscribe streams events published after the call.
// Cancel the context to stop; the channel is then closed.
func (b *Bus) Subscribe(ctx context.Context) <-chan *Event {
	return b.SubscribeFrom(ctx, "$")
}

// SubscribeFrom streams events with a stream id greater than lastID.
// Pass "0" to replay the whole stream.
func (b *Bus) SubscribeFrom(ctx context.Context, lastID string) <-chan *Event {
	ch := make(chan *Event, 16)

	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			results, err := b.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{Stream, lastID},
				Count:   10,
				Block:   2 * time.Second,
			}).Result()
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				if !errors.Is(err, redis.Nil) {
					b.logger.Warn("stream read failed", zap.Error(err))
					select {
					case <-ctx.Done():
						return
					case <-time.After(time.Second):
					}
				}
				continue
			}

			for _, r := range results {
				for _, msg := range r.Messages {
					lastID = msg.ID
					ev, ok := decode(msg)
					if !ok {
						continue
					}
					select {
					case ch <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return ch
}

// Recent returns up to count of the latest events, newest first.
func (b *Bus) Recent(ctx context.Context, count int64) ([]*Event, error) {
	msgs, err := b.rdb.XRevRangeN(ctx, Stream, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("read recent events: %w", err)
	}
	out := make([]*Event, 0, len(msgs))
	for _, msg := range msgs {
		if ev, ok := decode(msg); ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

func decode(msg redis.XMessage) (*Event, bool) {
	data, ok := msg.Values["data"].(string)
	if !ok {
		return nil, false
	}
	var ev Event
	if json.Unmarshal([]byte(data), &ev) != nil {
		return nil, false
	}
	return &ev, true
}

// Close shuts down the Redis connection.
func (b *Bus) Close() error {
	return b.rdb.Close()
}
