package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/ricirt/appointment-reminders/internal/api/middleware"
	"github.com/ricirt/appointment-reminders/internal/domain"
	"github.com/ricirt/appointment-reminders/internal/service"
)

// NotificationHandler handles reminder scheduling, generic publishing and the
// dead-letter endpoints.
type NotificationHandler struct {
	svc    *service.ReminderService
	logger *zap.Logger
}

func NewNotificationHandler(svc *service.ReminderService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{svc: svc, logger: logger}
}

// ScheduleReminder handles POST /api/v1/appointments/{id}/reminder
//
// Scheduling the same appointment twice is accepted; the second call
// publishes nothing.
//
// @Summary  Schedule the reminder for a stored appointment
// @Tags     appointments
// @Produce  json
// @Param    id   path      string  true  "Appointment ID"
// @Success  202  {object}  map[string]any
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/appointments/{id}/reminder [post]
func (h *NotificationHandler) ScheduleReminder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	appt, err := h.svc.ScheduleForAppointment(r.Context(), id)
	if err != nil {
		apimw.Logger(r.Context(), h.logger).Warn("schedule reminder failed",
			zap.String("appointment_id", id),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]any{
		"appointment_id":   appt.ID,
		"appointment_date": appt.Date.UTC().Format(time.RFC3339),
		"status":           "scheduled",
	})
}

// Publish handles POST /api/v1/notifications
//
// @Summary  Publish a notification job, bypassing the idempotency guard
// @Tags     notifications
// @Accept   json
// @Produce  json
// @Param    body  body      domain.PublishJobRequest  true  "Job"
// @Success  202   {object}  domain.NotificationJob
// @Failure  422   {object}  map[string]string
// @Router   /api/v1/notifications [post]
func (h *NotificationHandler) Publish(w http.ResponseWriter, r *http.Request) {
	var req domain.PublishJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	job, err := h.svc.Publish(r.Context(), req)
	if err != nil {
		apimw.Logger(r.Context(), h.logger).Warn("publish notification failed", zap.Error(err))
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, job)
}

// ListDeadLetters handles GET /api/v1/dead-letters
//
// @Summary  List failed deliveries, newest first
// @Tags     dead-letters
// @Produce  json
// @Param    limit  query     int  false  "Max entries (default 50, max 500)"
// @Success  200    {object}  map[string]any
// @Router   /api/v1/dead-letters [get]
func (h *NotificationHandler) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	letters, err := h.svc.ListDeadLetters(r.Context(), parseLimit(r))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"data":  letters,
		"count": len(letters),
	})
}

// RequeueDeadLetter handles POST /api/v1/dead-letters/{id}/requeue
//
// @Summary  Republish a dead-lettered job on the channel that failed
// @Tags     dead-letters
// @Produce  json
// @Param    id   path      string  true  "Dead letter ID"
// @Success  202  {object}  domain.NotificationJob
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/dead-letters/{id}/requeue [post]
func (h *NotificationHandler) RequeueDeadLetter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := h.svc.RequeueDeadLetter(r.Context(), id)
	if err != nil {
		apimw.Logger(r.Context(), h.logger).Warn("requeue dead letter failed",
			zap.String("dead_letter_id", id),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, job)
}

// DiscardDeadLetter handles DELETE /api/v1/dead-letters/{id}
//
// @Summary  Drop a dead letter
// @Tags     dead-letters
// @Param    id   path      string  true  "Dead letter ID"
// @Success  204
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/dead-letters/{id} [delete]
func (h *NotificationHandler) DiscardDeadLetter(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DiscardDeadLetter(r.Context(), chi.URLParam(r, "id")); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseLimit(r *http.Request) int64 {
	limit := int64(50)
	if l, err := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 64); err == nil && l > 0 && l <= 500 {
		limit = l
	}
	return limit
}
