package handler

import (
	"context"
	"net/http"

	"github.com/ricirt/appointment-reminders/internal/queue"
)

// QueueStats reports the depth of both queue tiers.
type QueueStats interface {
	Stats(ctx context.Context) (queue.Stats, error)
}

// DeadLetterCounter reports how many dead letters are waiting.
type DeadLetterCounter interface {
	Size(ctx context.Context) (int64, error)
}

// QueueHandler serves a human-readable JSON queue snapshot.
// Raw Prometheus metrics are available at /metrics via promhttp and are
// separate from this endpoint.
type QueueHandler struct {
	stats       QueueStats
	deadLetters DeadLetterCounter
}

func NewQueueHandler(stats QueueStats, deadLetters DeadLetterCounter) *QueueHandler {
	return &QueueHandler{stats: stats, deadLetters: deadLetters}
}

// Stats handles GET /api/v1/queue/stats
//
// @Summary  Real-time queue depth snapshot
// @Tags     queue
// @Produce  json
// @Success  200  {object}  map[string]int64
// @Failure  500  {object}  map[string]string
// @Router   /api/v1/queue/stats [get]
func (h *QueueHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.stats.Stats(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	dead, err := h.deadLetters.Size(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]int64{
		"immediate":    st.Immediate,
		"scheduled":    st.Scheduled,
		"dead_letters": dead,
	})
}
