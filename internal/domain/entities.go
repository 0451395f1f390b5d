package domain

import "time"

// NotificationPreferences is owned by the user record.
type NotificationPreferences struct {
	Channels             []Channel            `json:"channels"`
	UpcomingAppointments UpcomingAppointments `json:"upcomingAppointments"`
}

type UpcomingAppointments struct {
	Enabled bool `json:"enabled"`
}

// User is also used for vets; only FullName matters in that role.
type User struct {
	ID                      string                  `json:"id"`
	Email                   string                  `json:"email"`
	PhoneNumber             string                  `json:"phone_number"`
	FullName                string                  `json:"full_name"`
	NotificationPreferences NotificationPreferences `json:"notification_preferences"`
}

type Appointment struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	VetID       string    `json:"vet_id"`
	PetID       string    `json:"pet_id"`
	ServiceID   string    `json:"service_id"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
}

// ReminderPayload builds the queue payload for this appointment.
func (a *Appointment) ReminderPayload() AppointmentReminderPayload {
	return AppointmentReminderPayload{
		AppointmentID:   a.ID,
		AppointmentDate: a.Date.UTC().Format(time.RFC3339Nano),
		UserID:          a.UserID,
		VetID:           a.VetID,
		ServiceID:       a.ServiceID,
		PetID:           a.PetID,
	}
}

type Pet struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Service struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
