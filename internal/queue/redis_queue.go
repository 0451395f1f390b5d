package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultPollInterval       = time.Second
	defaultScheduledBatchSize = 50
)

// Hooks carries metric callbacks injected by main. Nil fields are no-ops.
type Hooks struct {
	OnPublished  func(scheduled bool)
	OnPromoted   func(n int)
	OnDispatched func(latency time.Duration)
	OnError      func(stage string)
}

// Options configures a RedisQueue. Zero values fall back to the defaults.
type Options struct {
	QueueKey           string
	ScheduledKey       string
	PollInterval       time.Duration
	ScheduledBatchSize int64

	// AtomicPromotion runs the scheduled→immediate move as a Lua script
	// instead of a push/ZREM pair per entry.
	AtomicPromotion bool

	// FIFO pushes onto the head of the immediate list so RPOP serves the
	// oldest entry. The default appends to the tail, which makes the list a
	// stack: the newest entry is served first.
	FIFO bool

	Hooks Hooks
}

// Stats is a point-in-time depth snapshot.
type Stats struct {
	Immediate int64 `json:"immediate"`
	Scheduled int64 `json:"scheduled"`
}

// RedisQueue is a two-tier queue: an immediate list (RPUSH / RPOP, so the
// newest entry is served first) and a scheduled sorted set scored by due time
// in epoch milliseconds.
//
// A single polling goroutine, started by the first Subscribe, promotes due
// entries and drains the list one message at a time. Handlers run
// sequentially; the loop does not pop the next message until every handler
// has returned.
type RedisQueue[T any] struct {
	client redis.UniversalClient
	opts   Options
	logger *zap.Logger

	mu       sync.RWMutex
	handlers []Handler[T]
	started  bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

var _ MessageQueue[struct{}] = (*RedisQueue[struct{}])(nil)

func NewRedisQueue[T any](client redis.UniversalClient, opts Options, logger *zap.Logger) *RedisQueue[T] {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.ScheduledBatchSize <= 0 {
		opts.ScheduledBatchSize = defaultScheduledBatchSize
	}
	if opts.Hooks.OnPublished == nil {
		opts.Hooks.OnPublished = func(bool) {}
	}
	if opts.Hooks.OnPromoted == nil {
		opts.Hooks.OnPromoted = func(int) {}
	}
	if opts.Hooks.OnDispatched == nil {
		opts.Hooks.OnDispatched = func(time.Duration) {}
	}
	if opts.Hooks.OnError == nil {
		opts.Hooks.OnError = func(string) {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &RedisQueue[T]{
		client: client,
		opts:   opts,
		logger: logger.With(zap.String("queue", opts.QueueKey)),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Publish stores msg in the scheduled set when SendAt lies in the future and
// on the immediate list otherwise.
func (q *RedisQueue[T]) Publish(ctx context.Context, msg Message[T]) error {
	msg = EnsureID(msg)
	raw, err := Encode(msg)
	if err != nil {
		return err
	}

	if msg.SendAt != nil && msg.SendAt.After(time.Now()) {
		z := redis.Z{Score: float64(msg.SendAt.UnixMilli()), Member: string(raw)}
		if err := q.client.ZAdd(ctx, q.opts.ScheduledKey, z).Err(); err != nil {
			return fmt.Errorf("schedule message %s: %w", msg.ID, err)
		}
		q.opts.Hooks.OnPublished(true)
		return nil
	}

	if err := q.push(ctx, string(raw)); err != nil {
		return fmt.Errorf("enqueue message %s: %w", msg.ID, err)
	}
	q.opts.Hooks.OnPublished(false)
	return nil
}

// Subscribe registers h and starts the polling loop on first use.
// Subscribing after Close registers nothing.
func (q *RedisQueue[T]) Subscribe(h Handler[T]) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ctx.Err() != nil {
		return
	}
	q.handlers = append(q.handlers, h)
	if q.started {
		return
	}
	q.started = true
	go q.run()
}

// Close stops the polling loop between ticks and waits for it to exit.
// A handler that is already running is allowed to finish.
func (q *RedisQueue[T]) Close() {
	q.cancel()

	q.mu.RLock()
	started := q.started
	q.mu.RUnlock()
	if started {
		<-q.done
	}
}

// Stats reports the depth of both tiers.
func (q *RedisQueue[T]) Stats(ctx context.Context) (Stats, error) {
	pipe := q.client.Pipeline()
	immediate := pipe.LLen(ctx, q.opts.QueueKey)
	scheduled := pipe.ZCard(ctx, q.opts.ScheduledKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	return Stats{Immediate: immediate.Val(), Scheduled: scheduled.Val()}, nil
}

func (q *RedisQueue[T]) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue[T]) run() {
	defer close(q.done)

	q.logger.Info("queue polling loop started",
		zap.Duration("poll_interval", q.opts.PollInterval),
		zap.Int64("scheduled_batch_size", q.opts.ScheduledBatchSize),
		zap.Bool("atomic_promotion", q.opts.AtomicPromotion),
	)

	for {
		if q.ctx.Err() != nil {
			q.logger.Info("queue polling loop stopping")
			return
		}

		// Store calls and handlers are not cancelled by Close: a popped
		// message must reach its handlers.
		dispatched, err := q.tick(context.WithoutCancel(q.ctx))
		if err != nil {
			q.logger.Error("queue tick failed", zap.Error(err))
		}
		if dispatched {
			continue
		}

		select {
		case <-q.ctx.Done():
			q.logger.Info("queue polling loop stopping")
			return
		case <-time.After(q.opts.PollInterval):
		}
	}
}

// tick promotes due entries, then pops and dispatches at most one message.
// It reports whether a message was dispatched.
func (q *RedisQueue[T]) tick(ctx context.Context) (bool, error) {
	if err := q.promote(ctx); err != nil {
		q.opts.Hooks.OnError("promote")
		return false, fmt.Errorf("promote scheduled: %w", err)
	}

	raw, err := q.client.RPop(ctx, q.opts.QueueKey).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		q.opts.Hooks.OnError("drain")
		return false, fmt.Errorf("pop immediate: %w", err)
	}

	msg, err := Decode[T]([]byte(raw))
	if err != nil {
		q.opts.Hooks.OnError("decode")
		return false, fmt.Errorf("dropping message: %w", err)
	}

	q.dispatch(ctx, msg)
	return true, nil
}

func (q *RedisQueue[T]) promote(ctx context.Context) error {
	nowMs := time.Now().UnixMilli()

	if q.opts.AtomicPromotion {
		n, err := promoteScript.Run(ctx, q.client,
			[]string{q.opts.ScheduledKey, q.opts.QueueKey},
			nowMs, q.opts.ScheduledBatchSize, q.pushCommand(),
		).Int()
		if err != nil {
			return err
		}
		if n > 0 {
			q.opts.Hooks.OnPromoted(n)
			q.logger.Debug("promoted scheduled messages", zap.Int("count", n))
		}
		return nil
	}

	due, err := q.client.ZRangeByScore(ctx, q.opts.ScheduledKey, &redis.ZRangeBy{
		Min:   "0",
		Max:   strconv.FormatInt(nowMs, 10),
		Count: q.opts.ScheduledBatchSize,
	}).Result()
	if err != nil {
		return err
	}

	// Push before ZREM: a failure in between leaves a duplicate, never a loss.
	for _, raw := range due {
		if err := q.push(ctx, raw); err != nil {
			return err
		}
		if err := q.client.ZRem(ctx, q.opts.ScheduledKey, raw).Err(); err != nil {
			return err
		}
	}

	if len(due) > 0 {
		q.opts.Hooks.OnPromoted(len(due))
		q.logger.Debug("promoted scheduled messages", zap.Int("count", len(due)))
	}
	return nil
}

func (q *RedisQueue[T]) push(ctx context.Context, raw string) error {
	if q.opts.FIFO {
		return q.client.LPush(ctx, q.opts.QueueKey, raw).Err()
	}
	return q.client.RPush(ctx, q.opts.QueueKey, raw).Err()
}

func (q *RedisQueue[T]) pushCommand() string {
	if q.opts.FIFO {
		return "LPUSH"
	}
	return "RPUSH"
}

func (q *RedisQueue[T]) dispatch(ctx context.Context, msg Message[T]) {
	q.mu.RLock()
	handlers := make([]Handler[T], len(q.handlers))
	copy(handlers, q.handlers)
	q.mu.RUnlock()

	start := time.Now()
	for i, h := range handlers {
		if err := invoke(ctx, h, msg); err != nil {
			q.opts.Hooks.OnError("handler")
			q.logger.Error("queue handler failed",
				zap.String("message_id", msg.ID),
				zap.Int("handler", i),
				zap.Error(err),
			)
		}
	}
	q.opts.Hooks.OnDispatched(time.Since(start))
}

func invoke[T any](ctx context.Context, h Handler[T], msg Message[T]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, msg)
}
