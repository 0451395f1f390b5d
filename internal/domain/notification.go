package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Channel is a delivery medium for a notification.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
	ChannelPush  Channel = "PUSH"
)

// Channels lists every known channel in a stable order.
var Channels = []Channel{ChannelEmail, ChannelSMS, ChannelPush}

func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush:
		return true
	}
	return false
}

// JobType discriminates the payload carried by a NotificationJob.
type JobType string

const (
	JobAppointmentReminder JobType = "APPOINTMENT_REMINDER"
)

// NotificationJob is the unit of deferred work that travels through the queue.
//
// Payload stays raw so the job can be decoded without knowing its type; the
// typed accessors below map each JobType to its payload struct.
type NotificationJob struct {
	ID      string          `json:"id,omitempty"`
	Type    JobType         `json:"type"`
	SendAt  *time.Time      `json:"sendAt,omitempty"`
	Payload json.RawMessage `json:"payload"`

	// Channels optionally narrows delivery to a subset of the user's enabled
	// channels. Empty means every enabled channel.
	Channels []Channel `json:"channels,omitempty"`
}

// AppointmentReminderPayload identifies everything a reminder needs to render.
// AppointmentDate is the ISO-8601 instant the appointment was booked for.
type AppointmentReminderPayload struct {
	AppointmentID   string `json:"appointmentId"`
	AppointmentDate string `json:"appointmentDate"`
	UserID          string `json:"userId"`
	VetID           string `json:"vetId"`
	ServiceID       string `json:"serviceId"`
	PetID           string `json:"petId"`
}

// NewAppointmentReminderJob builds an APPOINTMENT_REMINDER job.
func NewAppointmentReminderJob(p AppointmentReminderPayload, sendAt *time.Time) (NotificationJob, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return NotificationJob{}, fmt.Errorf("marshal reminder payload: %w", err)
	}
	return NotificationJob{
		Type:    JobAppointmentReminder,
		SendAt:  sendAt,
		Payload: raw,
	}, nil
}

// AppointmentReminder decodes the payload of an APPOINTMENT_REMINDER job.
func (j NotificationJob) AppointmentReminder() (AppointmentReminderPayload, error) {
	var p AppointmentReminderPayload
	if j.Type != JobAppointmentReminder {
		return p, fmt.Errorf("%w: %q is not %s", ErrUnknownJobType, j.Type, JobAppointmentReminder)
	}
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if p.AppointmentID == "" || p.UserID == "" {
		return p, fmt.Errorf("%w: appointmentId and userId are required", ErrInvalidPayload)
	}
	return p, nil
}

// PublishJobRequest is the body accepted by the generic publish endpoint.
type PublishJobRequest struct {
	Type     JobType         `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	SendAt   *time.Time      `json:"sendAt,omitempty"`
	Channels []Channel       `json:"channels,omitempty"`
}

func (r *PublishJobRequest) Validate() error {
	for _, ch := range r.Channels {
		if !ch.IsValid() {
			return ErrInvalidChannel
		}
	}
	_, err := r.Job().AppointmentReminder()
	return err
}

// Job converts the request into a job without an ID.
func (r *PublishJobRequest) Job() NotificationJob {
	return NotificationJob{
		Type:     r.Type,
		SendAt:   r.SendAt,
		Payload:  r.Payload,
		Channels: r.Channels,
	}
}
