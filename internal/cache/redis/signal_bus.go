package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/openpredict/ammd/internal/domain"
)

// SignalBus implements domain.SignalBus over Redis pub/sub and streams.
// Pub/sub carries live event fanout to websocket subscribers; streams
// give the settlement pipeline a durable, replayable callback log.
type SignalBus struct {
	rdb       *redis.Client
	maxStream int64
}

// NewSignalBus creates a signal bus. Streams are trimmed to roughly
// maxStream entries on append.
func NewSignalBus(client *Client, maxStream int64) *SignalBus {
	return &SignalBus{rdb: client.Underlying(), maxStream: maxStream}
}

// Publish sends a fire-and-forget message to a pub/sub channel.
func (b *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns a channel of payloads published to the given
// pub/sub channel. The subscription closes when ctx is canceled.
func (b *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	sub := b.rdb.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis: subscribe to %s: %w", channel, err)
	}

	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		defer sub.Close()
		in := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// StreamAppend appends a payload to a durable stream, trimming old
// entries past the configured cap.
func (b *SignalBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	err := b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: b.maxStream,
		Approx: true,
		Values: map[string]any{"payload": payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: append to stream %s: %w", stream, err)
	}
	return nil
}

// StreamRead returns up to count entries after lastID. Pass "" or "0"
// to read from the beginning. An empty result means the stream is
// caught up.
func (b *SignalBus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	start := "-"
	if lastID != "" && lastID != "0" {
		start = "(" + lastID
	}
	entries, err := b.rdb.XRangeN(ctx, stream, start, "+", int64(count)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: read stream %s: %w", stream, err)
	}

	msgs := make([]domain.StreamMessage, 0, len(entries))
	for _, entry := range entries {
		payload, _ := entry.Values["payload"].(string)
		msgs = append(msgs, domain.StreamMessage{ID: entry.ID, Payload: []byte(payload)})
	}
	return msgs, nil
}

var _ domain.SignalBus = (*SignalBus)(nil)
