package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ricirt/appointment-reminders/internal/domain"
)

// DeadLetter records a delivery that exhausted its retries.
type DeadLetter struct {
	ID       string          `json:"id"`
	Source   string          `json:"source"`
	Payload  json.RawMessage `json:"payload"`
	Error    string          `json:"error"`
	Attempts int             `json:"attempts"`
	FailedAt time.Time       `json:"failed_at"`
}

// DeadLetters stores failed deliveries in Redis: a hash holds the entries by
// id and a sorted set indexes the ids by failure time.
type DeadLetters struct {
	client     redis.UniversalClient
	indexKey   string
	entriesKey string
}

func NewDeadLetters(client redis.UniversalClient, key string) *DeadLetters {
	return &DeadLetters{client: client, indexKey: key, entriesKey: key + ":entries"}
}

// Add stores dl, assigning an id and a failure time when they are missing.
func (d *DeadLetters) Add(ctx context.Context, dl DeadLetter) (string, error) {
	if dl.ID == "" {
		dl.ID = uuid.NewString()
	}
	if dl.FailedAt.IsZero() {
		dl.FailedAt = time.Now().UTC()
	}

	raw, err := json.Marshal(dl)
	if err != nil {
		return "", fmt.Errorf("marshal dead letter: %w", err)
	}

	_, err = d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, d.entriesKey, dl.ID, raw)
		pipe.ZAdd(ctx, d.indexKey, redis.Z{Score: float64(dl.FailedAt.UnixMilli()), Member: dl.ID})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("store dead letter %s: %w", dl.ID, err)
	}
	return dl.ID, nil
}

// List returns up to limit entries, newest first.
func (d *DeadLetters) List(ctx context.Context, limit int64) ([]DeadLetter, error) {
	if limit <= 0 {
		limit = 50
	}
	ids, err := d.client.ZRevRange(ctx, d.indexKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list dead letter ids: %w", err)
	}
	if len(ids) == 0 {
		return []DeadLetter{}, nil
	}

	values, err := d.client.HMGet(ctx, d.entriesKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("load dead letters: %w", err)
	}

	out := make([]DeadLetter, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var dl DeadLetter
		if err := json.Unmarshal([]byte(s), &dl); err != nil {
			return nil, fmt.Errorf("decode dead letter: %w", err)
		}
		out = append(out, dl)
	}
	return out, nil
}

// Take removes the entry and returns it. Two concurrent callers cannot both
// receive the same entry.
func (d *DeadLetters) Take(ctx context.Context, id string) (*DeadLetter, error) {
	var get *redis.StringCmd
	_, err := d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.HGet(ctx, d.entriesKey, id)
		pipe.HDel(ctx, d.entriesKey, id)
		pipe.ZRem(ctx, d.indexKey, id)
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrDeadLetterNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("take dead letter %s: %w", id, err)
	}

	var dl DeadLetter
	if err := json.Unmarshal([]byte(get.Val()), &dl); err != nil {
		return nil, fmt.Errorf("decode dead letter %s: %w", id, err)
	}
	return &dl, nil
}

// Delete discards an entry.
func (d *DeadLetters) Delete(ctx context.Context, id string) error {
	_, err := d.Take(ctx, id)
	return err
}

func (d *DeadLetters) Size(ctx context.Context) (int64, error) {
	n, err := d.client.ZCard(ctx, d.indexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("dead letter size: %w", err)
	}
	return n, nil
}
