package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/ricirt/appointment-reminders/internal/domain"
)

func TestChannel_IsValid(t *testing.T) {
	for _, ch := range domain.Channels {
		if !ch.IsValid() {
			t.Fatalf("channel %q: expected valid", ch)
		}
	}
	for _, ch := range []domain.Channel{"", "email", "FAX"} {
		if ch.IsValid() {
			t.Fatalf("channel %q: expected invalid", ch)
		}
	}
}

func TestNotificationJob_AppointmentReminder(t *testing.T) {
	payload := domain.AppointmentReminderPayload{
		AppointmentID:   "appointment-1",
		AppointmentDate: "2026-03-01T10:00:00Z",
		UserID:          "user-1",
		VetID:           "vet-1",
		ServiceID:       "service-1",
		PetID:           "pet-1",
	}

	t.Run("typed payload survives the raw encoding", func(t *testing.T) {
		job, err := domain.NewAppointmentReminderJob(payload, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if job.Type != domain.JobAppointmentReminder {
			t.Fatalf("expected type %s, got %s", domain.JobAppointmentReminder, job.Type)
		}
		got, err := job.AppointmentReminder()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != payload {
			t.Fatalf("expected %+v, got %+v", payload, got)
		}
	})

	t.Run("wrong type", func(t *testing.T) {
		job := domain.NotificationJob{Type: "WELCOME", Payload: []byte(`{}`)}
		if _, err := job.AppointmentReminder(); !errors.Is(err, domain.ErrUnknownJobType) {
			t.Fatalf("expected ErrUnknownJobType, got %v", err)
		}
	})

	t.Run("garbage payload", func(t *testing.T) {
		job := domain.NotificationJob{Type: domain.JobAppointmentReminder, Payload: []byte(`[1,2]`)}
		if _, err := job.AppointmentReminder(); !errors.Is(err, domain.ErrInvalidPayload) {
			t.Fatalf("expected ErrInvalidPayload, got %v", err)
		}
	})

	t.Run("missing identifiers", func(t *testing.T) {
		job := domain.NotificationJob{Type: domain.JobAppointmentReminder, Payload: []byte(`{"petId":"p"}`)}
		if _, err := job.AppointmentReminder(); !errors.Is(err, domain.ErrInvalidPayload) {
			t.Fatalf("expected ErrInvalidPayload, got %v", err)
		}
	})
}

func TestAppointment_ReminderPayload(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	a := domain.Appointment{
		ID: "a1", UserID: "u1", VetID: "v1", PetID: "p1", ServiceID: "s1",
		Date: time.Date(2026, 5, 4, 13, 30, 0, 0, loc),
	}

	p := a.ReminderPayload()
	if p.AppointmentDate != "2026-05-04T10:30:00Z" {
		t.Fatalf("expected UTC ISO date, got %s", p.AppointmentDate)
	}
	if p.AppointmentID != "a1" || p.UserID != "u1" || p.VetID != "v1" || p.PetID != "p1" || p.ServiceID != "s1" {
		t.Fatalf("identifiers not copied: %+v", p)
	}
}

func TestPublishJobRequest_Validate(t *testing.T) {
	valid := `{"appointmentId":"a-1","userId":"u-1"}`
	tests := []struct {
		name string
		req  domain.PublishJobRequest
		want error
	}{
		{"valid", domain.PublishJobRequest{Type: domain.JobAppointmentReminder, Payload: []byte(valid)}, nil},
		{"unknown type", domain.PublishJobRequest{Type: "BIRTHDAY", Payload: []byte(valid)}, domain.ErrUnknownJobType},
		{"missing ids", domain.PublishJobRequest{Type: domain.JobAppointmentReminder, Payload: []byte(`{}`)}, domain.ErrInvalidPayload},
		{"bad channel", domain.PublishJobRequest{
			Type: domain.JobAppointmentReminder, Payload: []byte(valid), Channels: []domain.Channel{"FAX"},
		}, domain.ErrInvalidChannel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.want == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
