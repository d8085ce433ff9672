package redisx

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-cv-evaluator/internal/domain"
)

// LogClient implements domain.LogClient over Redis Streams consumer groups.
type LogClient struct {
	client *redis.Client
}

// NewLogClient wraps an existing Redis client.
func NewLogClient(client *redis.Client) *LogClient {
	return &LogClient{client: client}
}

// Append adds fields to stream via XADD and returns the assigned entry id.
func (l *LogClient) Append(ctx domain.Context, stream string, fields map[string]string) (string, error) {
	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	id, err := l.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("op=logclient.append: %w", err)
	}
	return id, nil
}

// CreateGroup creates a consumer group, silently succeeding if it already
// exists (BUSYGROUP), matching the idempotent contract.
func (l *LogClient) CreateGroup(ctx domain.Context, stream, group, start string) error {
	if start == "" {
		start = "$"
	}
	err := l.client.XGroupCreateMkStream(ctx, stream, group, start).Err()
	if err != nil && !isBusyGroup(err) {
		return fmt.Errorf("op=logclient.creategroup: %w", err)
	}
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

// ReadGroup issues XREADGROUP with ">" semantics, returning new entries only
// (pending-for-consumer redelivery is the job of Reclaim).
func (l *LogClient) ReadGroup(ctx domain.Context, stream, group, consumer string, maxCount int64, block time.Duration) ([]domain.StreamEntry, error) {
	res, err := l.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    maxCount,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("op=logclient.readgroup: %w", err)
	}

	var out []domain.StreamEntry
	for _, s := range res {
		for _, msg := range s.Messages {
			out = append(out, toStreamEntry(msg))
		}
	}
	return out, nil
}

// Ack marks an entry delivered for the group.
func (l *LogClient) Ack(ctx domain.Context, stream, group, entryID string) error {
	if err := l.client.XAck(ctx, stream, group, entryID).Err(); err != nil {
		return fmt.Errorf("op=logclient.ack: %w", err)
	}
	return nil
}

// Reclaim uses XAUTOCLAIM to hand back to consumer any entries idle longer
// than minIdle, realizing at-least-once redelivery after a consumer crash.
func (l *LogClient) Reclaim(ctx domain.Context, stream, group, consumer string, minIdle time.Duration, count int64) ([]domain.StreamEntry, error) {
	messages, _, err := l.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    group,
		MinIdle:  minIdle,
		Start:    "0-0",
		Consumer: consumer,
		Count:    count,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("op=logclient.reclaim: %w", err)
	}

	out := make([]domain.StreamEntry, 0, len(messages))
	for _, msg := range messages {
		out = append(out, toStreamEntry(msg))
	}
	return out, nil
}

// Publish is best-effort, unpersisted pub/sub.
func (l *LogClient) Publish(ctx domain.Context, channel string, payload []byte) error {
	if err := l.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("op=logclient.publish: %w", err)
	}
	return nil
}

// Subscribe returns a channel of payloads for the given pub/sub channel.
func (l *LogClient) Subscribe(ctx domain.Context, channel string) (<-chan []byte, func() error, error) {
	pubsub := l.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("op=logclient.subscribe: %w", err)
	}

	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, pubsub.Close, nil
}

func toStreamEntry(msg redis.XMessage) domain.StreamEntry {
	fields := make(map[string]string, len(msg.Values))
	for k, v := range msg.Values {
		if s, ok := v.(string); ok {
			fields[k] = s
		} else {
			fields[k] = fmt.Sprintf("%v", v)
		}
	}
	return domain.StreamEntry{ID: msg.ID, Fields: fields}
}
