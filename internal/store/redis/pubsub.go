package redis

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// noticeBuffer is how many undelivered notices a subscriber holds before the
// relay blocks. A notice only asks the reader to reload the board, so a slow
// reader that drains a burst at once loses nothing.
const noticeBuffer = 64

// PubSub carries board change notices between every process serving a board.
type PubSub struct {
	client *redis.Client
}

// New connects to Redis and verifies the connection with a ping.
func New(ctx context.Context, addr, password string, db int) (*PubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis.New: ping: %w", err)
	}

	return &PubSub{client: client}, nil
}

func (ps *PubSub) Close() error {
	if err := ps.client.Close(); err != nil {
		return fmt.Errorf("redis.PubSub.Close: %w", err)
	}
	return nil
}

// Publish sends one encoded notice on channel.
func (ps *PubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := ps.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis.PubSub.Publish: %w", err)
	}
	return nil
}

// Subscribe returns the notice payloads arriving on channel. The returned
// channel closes when ctx ends or the subscription is closed by cleanup.
// Subscribe returns only after Redis has confirmed the subscription, so a
// notice published afterwards is never missed.
func (ps *PubSub) Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error) {
	sub := ps.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("redis.PubSub.Subscribe: %s: %w", channel, err)
	}

	notices := make(chan []byte, noticeBuffer)
	go relay(ctx, sub.Channel(), notices)

	return notices, func() { _ = sub.Close() }, nil
}

// relay copies message payloads from in to out until ctx ends or in closes,
// then closes out.
func relay(ctx context.Context, in <-chan *redis.Message, out chan<- []byte) {
	defer close(out)
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
}

// BoardChannel returns the Redis channel carrying change notices for a board.
func BoardChannel(boardID uuid.UUID) string {
	return "board:" + boardID.String()
}
