package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ricirt/appointment-reminders/internal/domain"
	"github.com/ricirt/appointment-reminders/internal/queue"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	JobsPublished   *prometheus.CounterVec
	JobsPromoted    prometheus.Counter
	JobsDispatched  prometheus.Counter
	DispatchLatency prometheus.Histogram
	QueueErrors     *prometheus.CounterVec

	RemindersSuppressed prometheus.Counter

	NotificationsSent    *prometheus.CounterVec
	NotificationsFailed  *prometheus.CounterVec
	NotificationRetries  *prometheus.CounterVec
	NotificationLatency  *prometheus.HistogramVec
	QueueDepthImmediate  prometheus.Gauge
	QueueDepthScheduled  prometheus.Gauge
	DeadLetterDepth      prometheus.Gauge
	redisCommands        *prometheus.CounterVec
	redisCommandDuration *prometheus.HistogramVec
	redisPipelines       *prometheus.CounterVec
	redisDials           *prometheus.CounterVec
}

// New registers all instruments with reg. A custom registry keeps tests
// isolated from prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_jobs_published_total",
			Help: "Jobs written to the queue, by tier.",
		}, []string{"tier"}),
		JobsPromoted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notification_jobs_promoted_total",
			Help: "Scheduled jobs moved onto the immediate list.",
		}),
		JobsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notification_jobs_dispatched_total",
			Help: "Jobs popped and handed to every subscriber.",
		}),
		DispatchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "notification_dispatch_seconds",
			Help:    "Time spent running all handlers for one job.",
			Buckets: prometheus.DefBuckets,
		}),
		QueueErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_queue_errors_total",
			Help: "Polling loop failures, by stage (promote, drain, decode, handler).",
		}, []string{"stage"}),

		RemindersSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "appointment_reminders_suppressed_total",
			Help: "Reminder schedules dropped because the idempotency claim was already held.",
		}),

		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Total number of successfully delivered notifications.",
		}, []string{"channel"}),
		NotificationsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_failed_total",
			Help: "Deliveries that exhausted their retries and were dead-lettered.",
		}, []string{"channel"}),
		NotificationRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_retries_total",
			Help: "Delivery attempts repeated after a transient failure.",
		}, []string{"channel"}),
		NotificationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "notification_delivery_seconds",
			Help:    "Latency from first attempt to provider acknowledgement.",
			Buckets: prometheus.DefBuckets,
		}, []string{"channel"}),

		QueueDepthImmediate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_depth_immediate",
			Help: "Current number of jobs waiting on the immediate list.",
		}),
		QueueDepthScheduled: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_depth_scheduled",
			Help: "Current number of jobs waiting in the scheduled set.",
		}),
		DeadLetterDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dead_letter_depth",
			Help: "Current number of dead-lettered deliveries.",
		}),

		redisCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redis_commands_total",
			Help: "Total number of Redis commands executed.",
		}, []string{"command", "status"}),
		redisCommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "redis_command_duration_seconds",
			Help:    "Redis command execution time in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"command"}),
		redisPipelines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redis_pipelines_total",
			Help: "Total number of Redis pipeline executions.",
		}, []string{"status"}),
		redisDials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redis_connections_total",
			Help: "Total number of Redis connections dialled.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		m.JobsPublished,
		m.JobsPromoted,
		m.JobsDispatched,
		m.DispatchLatency,
		m.QueueErrors,
		m.RemindersSuppressed,
		m.NotificationsSent,
		m.NotificationsFailed,
		m.NotificationRetries,
		m.NotificationLatency,
		m.QueueDepthImmediate,
		m.QueueDepthScheduled,
		m.DeadLetterDepth,
		m.redisCommands,
		m.redisCommandDuration,
		m.redisPipelines,
		m.redisDials,
	)

	return m
}

// QueueHooks returns the callbacks expected by queue.Options.
func (m *Metrics) QueueHooks() queue.Hooks {
	return queue.Hooks{
		OnPublished: func(scheduled bool) {
			tier := "immediate"
			if scheduled {
				tier = "scheduled"
			}
			m.JobsPublished.WithLabelValues(tier).Inc()
		},
		OnPromoted: func(n int) { m.JobsPromoted.Add(float64(n)) },
		OnDispatched: func(latency time.Duration) {
			m.JobsDispatched.Inc()
			m.DispatchLatency.Observe(latency.Seconds())
		},
		OnError: func(stage string) { m.QueueErrors.WithLabelValues(stage).Inc() },
	}
}

// DeliveryHooks returns the metric callbacks expected by worker.DeliveryHooks.
// Centralises the prometheus observation calls so the worker stays import-free.
func (m *Metrics) DeliveryHooks() (
	onSent func(domain.Channel, time.Duration),
	onRetry func(domain.Channel),
	onFailed func(domain.Channel),
) {
	onSent = func(ch domain.Channel, latency time.Duration) {
		m.NotificationsSent.WithLabelValues(string(ch)).Inc()
		m.NotificationLatency.WithLabelValues(string(ch)).Observe(latency.Seconds())
	}
	onRetry = func(ch domain.Channel) {
		m.NotificationRetries.WithLabelValues(string(ch)).Inc()
	}
	onFailed = func(ch domain.Channel) {
		m.NotificationsFailed.WithLabelValues(string(ch)).Inc()
	}
	return
}

// OnDuplicate counts a suppressed reminder schedule.
func (m *Metrics) OnDuplicate() {
	m.RemindersSuppressed.Inc()
}

// SetDepths publishes a depth snapshot.
func (m *Metrics) SetDepths(immediate, scheduled, deadLetters int64) {
	m.QueueDepthImmediate.Set(float64(immediate))
	m.QueueDepthScheduled.Set(float64(scheduled))
	m.DeadLetterDepth.Set(float64(deadLetters))
}
