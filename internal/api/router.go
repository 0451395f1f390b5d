package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ricirt/appointment-reminders/internal/api/handler"
	apimw "github.com/ricirt/appointment-reminders/internal/api/middleware"
	"github.com/ricirt/appointment-reminders/internal/service"
)

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(
	svc *service.ReminderService,
	stats handler.QueueStats,
	deadLetters handler.DeadLetterCounter,
	checks []handler.HealthCheck,
	reg prometheus.Gatherer,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)          // recover panics, return 500
	r.Use(chimw.RealIP)             // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(1<<20)) // 1 MB max request body
	r.Use(apimw.CorrelationID)      // X-Correlation-ID inject / echo
	r.Use(apimw.RequestLogger(logger))

	// --- handler instances ---
	nh := handler.NewNotificationHandler(svc, logger)
	qh := handler.NewQueueHandler(stats, deadLetters)
	hh := handler.NewHealthHandler(checks...)

	// --- routes ---
	r.Get("/health", hh.Health)

	// Raw Prometheus scrape endpoint
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/queue/stats", qh.Stats)

		r.Post("/appointments/{id}/reminder", nh.ScheduleReminder)
		r.Post("/notifications", nh.Publish)

		r.Get("/dead-letters", nh.ListDeadLetters)
		r.Post("/dead-letters/{id}/requeue", nh.RequeueDeadLetter)
		r.Delete("/dead-letters/{id}", nh.DiscardDeadLetter)
	})

	return r
}
