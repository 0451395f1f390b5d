package notification

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ricirt/appointment-reminders/internal/domain"
	"github.com/ricirt/appointment-reminders/internal/provider"
)

const (
	reminderDateLayout  = "Mon, 02 Jan 2006 15:04:05 GMT"
	defaultServiceName  = "your appointment"
	defaultCountryCode  = "+1"
	appointmentTemplate = "appointmentReminder"
)

// ReminderContext is everything a channel needs to render one reminder.
// Pet, service and vet names are empty when the row no longer exists.
type ReminderContext struct {
	Job         domain.NotificationJob
	User        domain.User
	Appointment domain.Appointment
	PetName     string
	ServiceName string
	VetName     string
}

// ChannelAdapter delivers an appointment reminder over one channel.
type ChannelAdapter interface {
	SendAppointmentReminder(ctx context.Context, rc ReminderContext) error
}

// FormatReminderDate renders t in UTC as "Mon, 02 Jan 2006 15:04:05 GMT".
func FormatReminderDate(t time.Time) string {
	return t.UTC().Format(reminderDateLayout)
}

func serviceNameOrDefault(name string) string {
	if name == "" {
		return defaultServiceName
	}
	return name
}

// EmailAdapter sends the appointmentReminder template.
type EmailAdapter struct {
	mailer provider.Mailer
}

func NewEmailAdapter(mailer provider.Mailer) *EmailAdapter {
	return &EmailAdapter{mailer: mailer}
}

func (a *EmailAdapter) SendAppointmentReminder(ctx context.Context, rc ReminderContext) error {
	return a.mailer.Send(ctx, rc.User.Email, appointmentTemplate, map[string]string{
		"name":            rc.User.FullName,
		"appointmentDate": FormatReminderDate(rc.Appointment.Date),
		"serviceName":     serviceNameOrDefault(rc.ServiceName),
		"petName":         rc.PetName,
		"vetName":         rc.VetName,
	})
}

// SMSAdapter sends a plain-text reminder. Numbers without a leading '+' get
// the default country code.
type SMSAdapter struct {
	client      provider.SMSClient
	countryCode string
	logger      *zap.Logger
}

func NewSMSAdapter(client provider.SMSClient, countryCode string, logger *zap.Logger) *SMSAdapter {
	if countryCode == "" {
		countryCode = defaultCountryCode
	}
	return &SMSAdapter{client: client, countryCode: countryCode, logger: logger}
}

// SMSChannel returns an SMSAdapter, or an UnsupportedAdapter when client has
// no credentials.
func SMSChannel(client provider.SMSClient, countryCode string, logger *zap.Logger) ChannelAdapter {
	if !client.IsConfigured() {
		return NewUnsupportedAdapter(domain.ChannelSMS, logger)
	}
	return NewSMSAdapter(client, countryCode, logger)
}

func (a *SMSAdapter) SendAppointmentReminder(ctx context.Context, rc ReminderContext) error {
	if !a.client.IsConfigured() {
		a.logger.Warn("sms not configured, skipping reminder", zap.Error(domain.ErrChannelNotConfigured))
		return nil
	}
	if rc.User.PhoneNumber == "" {
		a.logger.Warn("skipping sms reminder",
			zap.String("user_id", rc.User.ID),
			zap.Error(domain.ErrMissingPhoneNumber),
		)
		return nil
	}

	return a.client.Send(ctx, NormalizePhoneNumber(rc.User.PhoneNumber, a.countryCode), ReminderSMSBody(rc))
}

// NormalizePhoneNumber prefixes countryCode unless number is already in
// international form.
func NormalizePhoneNumber(number, countryCode string) string {
	if strings.HasPrefix(number, "+") {
		return number
	}
	return countryCode + number
}

// ReminderSMSBody renders the SMS text, leaving out the pet and vet clauses
// when those names are empty.
func ReminderSMSBody(rc ReminderContext) string {
	parts := []string{
		"Hi " + rc.User.FullName + ",",
		"Reminder: " + serviceNameOrDefault(rc.ServiceName),
	}
	if rc.PetName != "" {
		parts = append(parts, "for "+rc.PetName)
	}
	parts = append(parts, "on "+FormatReminderDate(rc.Appointment.Date)+".")
	if rc.VetName != "" {
		parts = append(parts, "Vet: "+rc.VetName+".")
	}
	parts = append(parts, "Reply STOP to opt-out.")
	return strings.Join(parts, " ")
}

// UnsupportedAdapter stands in for a channel with no provider.
type UnsupportedAdapter struct {
	channel domain.Channel
	logger  *zap.Logger
}

func NewUnsupportedAdapter(ch domain.Channel, logger *zap.Logger) *UnsupportedAdapter {
	return &UnsupportedAdapter{channel: ch, logger: logger}
}

func (a *UnsupportedAdapter) SendAppointmentReminder(context.Context, ReminderContext) error {
	a.logger.Warn("no notification adapter configured for channel", zap.String("channel", string(a.channel)))
	return nil
}

var (
	_ ChannelAdapter = (*EmailAdapter)(nil)
	_ ChannelAdapter = (*SMSAdapter)(nil)
	_ ChannelAdapter = (*UnsupportedAdapter)(nil)
)
