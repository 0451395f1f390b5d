package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ricirt/appointment-reminders/internal/domain"
	"github.com/ricirt/appointment-reminders/internal/queue"
	"github.com/ricirt/appointment-reminders/internal/repository"
	"github.com/ricirt/appointment-reminders/internal/service"
)

type scheduled struct {
	payload domain.AppointmentReminderPayload
	date    time.Time
}

type fakePublisher struct {
	published []domain.NotificationJob
	scheduled []scheduled
	err       error
}

func (p *fakePublisher) Publish(_ context.Context, job domain.NotificationJob) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, job)
	return nil
}

func (p *fakePublisher) ScheduleAppointmentReminder(_ context.Context, payload domain.AppointmentReminderPayload, date time.Time) error {
	if p.err != nil {
		return p.err
	}
	p.scheduled = append(p.scheduled, scheduled{payload: payload, date: date})
	return nil
}

var apptDate = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*service.ReminderService, *fakePublisher, *queue.DeadLetters, *observer.ObservedLogs) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := repository.NewMockLookupRepository()
	repo.PutAppointment(domain.Appointment{
		ID: "appt-1", UserID: "user-1", VetID: "vet-1", PetID: "pet-1", ServiceID: "svc-1", Date: apptDate,
	})

	pub := &fakePublisher{}
	dls := queue.NewDeadLetters(client, "test:dead")
	core, logs := observer.New(zapcore.InfoLevel)
	return service.NewReminderService(repo, pub, dls, zap.New(core)), pub, dls, logs
}

func addDeadLetter(t *testing.T, dls *queue.DeadLetters, source string, payload []byte) string {
	t.Helper()
	id, err := dls.Add(context.Background(), queue.DeadLetter{
		Source:   source,
		Payload:  payload,
		Error:    "provider timeout",
		Attempts: 4,
	})
	if err != nil {
		t.Fatalf("add dead letter: %v", err)
	}
	return id
}

func reminderJobJSON(t *testing.T) []byte {
	t.Helper()
	sendAt := apptDate.Add(-time.Hour)
	job, err := domain.NewAppointmentReminderJob(domain.AppointmentReminderPayload{AppointmentID: "appt-1", UserID: "user-1"}, &sendAt)
	if err != nil {
		t.Fatal(err)
	}
	job.ID = "original-job"
	raw, err := json.Marshal(job)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestReminderService_ScheduleForAppointment(t *testing.T) {
	svc, pub, _, _ := newService(t)

	appt, err := svc.ScheduleForAppointment(context.Background(), "appt-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if appt.ID != "appt-1" {
		t.Fatalf("expected appt-1, got %s", appt.ID)
	}
	if len(pub.scheduled) != 1 {
		t.Fatalf("expected one schedule, got %d", len(pub.scheduled))
	}
	got := pub.scheduled[0]
	if !got.date.Equal(apptDate) || got.payload.AppointmentDate != "2026-06-01T09:00:00Z" {
		t.Fatalf("unexpected schedule: %+v", got)
	}
}

func TestReminderService_ScheduleForAppointment_NotFound(t *testing.T) {
	svc, pub, _, _ := newService(t)

	_, err := svc.ScheduleForAppointment(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(pub.scheduled) != 0 {
		t.Fatal("nothing should be scheduled")
	}
}

func TestReminderService_OnAppointmentSavedSwallowsErrors(t *testing.T) {
	svc, pub, _, logs := newService(t)
	pub.err = errors.New("redis down")

	svc.OnAppointmentSaved(context.Background(), domain.Appointment{ID: "appt-2", UserID: "user-1", Date: apptDate})

	if logs.FilterMessage("failed to schedule appointment reminder").Len() != 1 {
		t.Fatal("expected the failure to be logged")
	}
}

func TestReminderService_Publish(t *testing.T) {
	svc, pub, _, _ := newService(t)

	job, err := svc.Publish(context.Background(), domain.PublishJobRequest{
		Type:     domain.JobAppointmentReminder,
		Payload:  []byte(`{"appointmentId":"appt-1","userId":"user-1"}`),
		Channels: []domain.Channel{domain.ChannelEmail},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.ID == "" {
		t.Fatal("expected a job id")
	}
	if len(pub.published) != 1 || pub.published[0].ID != job.ID {
		t.Fatalf("published job does not match: %+v", pub.published)
	}

	_, err = svc.Publish(context.Background(), domain.PublishJobRequest{Type: "BIRTHDAY", Payload: []byte(`{}`)})
	if !errors.Is(err, domain.ErrUnknownJobType) {
		t.Fatalf("expected ErrUnknownJobType, got %v", err)
	}
}

func TestReminderService_RequeueDeadLetter(t *testing.T) {
	svc, pub, dls, _ := newService(t)
	id := addDeadLetter(t, dls, "SMS", reminderJobJSON(t))

	job, err := svc.RequeueDeadLetter(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.ID == "" || job.ID == "original-job" {
		t.Fatalf("expected a fresh job id, got %q", job.ID)
	}
	if job.SendAt != nil {
		t.Fatal("requeued job must be immediate")
	}
	if len(job.Channels) != 1 || job.Channels[0] != domain.ChannelSMS {
		t.Fatalf("expected delivery restricted to SMS, got %v", job.Channels)
	}
	if len(pub.published) != 1 {
		t.Fatalf("expected one publish, got %d", len(pub.published))
	}

	if n, _ := dls.Size(context.Background()); n != 0 {
		t.Fatalf("dead letter should be consumed, size=%d", n)
	}
}

func TestReminderService_RequeueRestoresOnPublishFailure(t *testing.T) {
	svc, pub, dls, _ := newService(t)
	id := addDeadLetter(t, dls, "EMAIL", reminderJobJSON(t))
	pub.err = errors.New("redis down")

	if _, err := svc.RequeueDeadLetter(context.Background(), id); err == nil {
		t.Fatal("expected an error")
	}
	letters, err := dls.List(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(letters) != 1 || letters[0].ID != id {
		t.Fatalf("dead letter must be restored under its id, got %+v", letters)
	}
}

func TestReminderService_RequeueBadPayload(t *testing.T) {
	svc, _, dls, _ := newService(t)
	id := addDeadLetter(t, dls, "EMAIL", []byte(`"not a job"`))

	_, err := svc.RequeueDeadLetter(context.Background(), id)
	if !errors.Is(err, domain.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
	if n, _ := dls.Size(context.Background()); n != 1 {
		t.Fatal("undecodable dead letter must be kept")
	}
}

func TestReminderService_DeadLetterNotFound(t *testing.T) {
	svc, _, _, _ := newService(t)

	if _, err := svc.RequeueDeadLetter(context.Background(), "nope"); !errors.Is(err, domain.ErrDeadLetterNotFound) {
		t.Fatalf("expected ErrDeadLetterNotFound, got %v", err)
	}
	if err := svc.DiscardDeadLetter(context.Background(), "nope"); !errors.Is(err, domain.ErrDeadLetterNotFound) {
		t.Fatalf("expected ErrDeadLetterNotFound, got %v", err)
	}
}

func TestReminderService_ListAndDiscard(t *testing.T) {
	svc, _, dls, _ := newService(t)
	id := addDeadLetter(t, dls, "EMAIL", reminderJobJSON(t))

	letters, err := svc.ListDeadLetters(context.Background(), 0)
	if err != nil || len(letters) != 1 {
		t.Fatalf("expected one dead letter, got %d (%v)", len(letters), err)
	}
	if err := svc.DiscardDeadLetter(context.Background(), id); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if n, _ := dls.Size(context.Background()); n != 0 {
		t.Fatal("discarded dead letter still present")
	}
}
