package metrics

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisHook records command, pipeline and dial outcomes for a go-redis
// client. redis.Nil is a miss, not a failure.
type RedisHook struct {
	m *Metrics
}

var _ redis.Hook = (*RedisHook)(nil)

// RedisHook returns a hook bound to these instruments. Install it with
// client.AddHook.
func (m *Metrics) RedisHook() *RedisHook {
	return &RedisHook{m: m}
}

func (h *RedisHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		h.m.redisDials.WithLabelValues(status(err)).Inc()
		return conn, err
	}
}

func (h *RedisHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)

		name := cmd.Name()
		h.m.redisCommandDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		h.m.redisCommands.WithLabelValues(name, status(err)).Inc()
		return err
	}
}

func (h *RedisHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		if len(cmds) == 0 {
			return err
		}

		s := status(err)
		for _, cmd := range cmds {
			if status(cmd.Err()) == "error" {
				s = "error"
				break
			}
		}
		h.m.redisPipelines.WithLabelValues(s).Inc()
		return err
	}
}

func status(err error) string {
	if err != nil && !errors.Is(err, redis.Nil) {
		return "error"
	}
	return "success"
}
