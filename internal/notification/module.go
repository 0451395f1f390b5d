package notification

import (
	"time"

	"go.uber.org/zap"

	"github.com/ricirt/appointment-reminders/internal/domain"
	"github.com/ricirt/appointment-reminders/internal/queue"
)

// Queue is a MessageQueue whose polling loop can be stopped.
type Queue interface {
	queue.MessageQueue[domain.NotificationJob]
	Close()
}

// Module owns one queue together with the publisher and consumer bound to it.
// Build one per process (or per test) and pass it to whatever schedules
// reminders.
type Module struct {
	Queue     Queue
	Publisher *Publisher
	Consumer  *Consumer
}

// NewModule wires a publisher and a consumer around q. Nothing is consumed
// until Start.
func NewModule(
	q Queue,
	claims ClaimStore,
	handler JobHandler,
	lead time.Duration,
	logger *zap.Logger,
	opts ...PublisherOption,
) *Module {
	return &Module{
		Queue:     q,
		Publisher: NewPublisher(q, claims, lead, logger.Named("publisher"), opts...),
		Consumer:  NewConsumer(q, handler, logger.Named("consumer")),
	}
}

// Start begins consuming.
func (m *Module) Start() {
	m.Consumer.Start()
}

// Close stops the polling loop and waits for it to exit.
func (m *Module) Close() {
	m.Queue.Close()
}
