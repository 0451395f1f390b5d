package notification

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ricirt/appointment-reminders/internal/domain"
	"github.com/ricirt/appointment-reminders/internal/queue"
)

// JobHandler processes one dequeued job.
type JobHandler interface {
	Handle(ctx context.Context, job domain.NotificationJob) error
}

// Consumer subscribes a JobHandler to the queue.
type Consumer struct {
	queue   queue.MessageQueue[domain.NotificationJob]
	handler JobHandler
	logger  *zap.Logger
	once    sync.Once
}

func NewConsumer(q queue.MessageQueue[domain.NotificationJob], handler JobHandler, logger *zap.Logger) *Consumer {
	return &Consumer{queue: q, handler: handler, logger: logger}
}

// Start subscribes once; later calls do nothing.
func (c *Consumer) Start() {
	c.once.Do(func() {
		c.queue.Subscribe(c.handle)
		c.logger.Info("notification consumer started")
	})
}

// handle never returns an error: a failed job is logged and dropped.
func (c *Consumer) handle(ctx context.Context, msg queue.Message[domain.NotificationJob]) error {
	job := msg.Payload
	if job.ID == "" {
		job.ID = msg.ID
	}
	if job.SendAt == nil {
		job.SendAt = msg.SendAt
	}

	if err := c.handler.Handle(ctx, job); err != nil {
		c.logger.Error("notification job failed",
			zap.String("job_id", job.ID),
			zap.String("type", string(job.Type)),
			zap.Error(err),
		)
	}
	return nil
}
