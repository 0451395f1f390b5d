package notification_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ricirt/appointment-reminders/internal/domain"
	"github.com/ricirt/appointment-reminders/internal/idempotency"
	"github.com/ricirt/appointment-reminders/internal/notification"
)

func payloadFor(apptID string, at time.Time) domain.AppointmentReminderPayload {
	appt := domain.Appointment{ID: apptID, UserID: "user-1", VetID: "vet-1", PetID: "pet-1", ServiceID: "svc-1", Date: at}
	return appt.ReminderPayload()
}

func TestPublisher_ExactLeadTime(t *testing.T) {
	q := &memQueue{}
	claims := newMemClaims()
	now := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	p := notification.NewPublisher(q, claims, time.Hour, zap.NewNop(), notification.WithClock(func() time.Time { return now }))

	appt := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	require.NoError(t, p.ScheduleAppointmentReminder(context.Background(), payloadFor("appt-1", appt), appt))

	msgs := q.messages()
	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].SendAt)
	assert.Equal(t, appt.Add(-time.Hour).UnixMilli(), msgs[0].SendAt.UnixMilli())
	assert.NotEmpty(t, msgs[0].ID)
	assert.Equal(t, msgs[0].ID, msgs[0].Payload.ID)
	assert.Equal(t, domain.JobAppointmentReminder, msgs[0].Payload.Type)

	payload, err := msgs[0].Payload.AppointmentReminder()
	require.NoError(t, err)
	assert.Equal(t, "appt-1", payload.AppointmentID)
	assert.Equal(t, "2026-05-04T10:00:00Z", payload.AppointmentDate)

	// The claim outlives the reminder: time until the appointment plus the lead.
	key := notification.ReminderClaimKey("appt-1", appt)
	assert.Equal(t, "appointment-reminder:appt-1:2026-05-04T10:00:00Z", key)
	assert.Equal(t, 3*time.Hour, claims.held[key])
}

func TestPublisher_ImmediateFallback(t *testing.T) {
	q := &memQueue{}
	p := notification.NewPublisher(q, newMemClaims(), time.Hour, zap.NewNop())

	called := time.Now()
	appt := called.Add(30 * time.Minute)
	require.NoError(t, p.ScheduleAppointmentReminder(context.Background(), payloadFor("appt-soon", appt), appt))

	msgs := q.messages()
	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].SendAt)
	assert.WithinDuration(t, called, *msgs[0].SendAt, time.Second)
}

func TestPublisher_PastAppointmentSendsNow(t *testing.T) {
	q := &memQueue{}
	claims := newMemClaims()
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	p := notification.NewPublisher(q, claims, time.Hour, zap.NewNop(), notification.WithClock(func() time.Time { return now }))

	appt := now.Add(-2 * time.Hour)
	require.NoError(t, p.ScheduleAppointmentReminder(context.Background(), payloadFor("appt-past", appt), appt))

	msgs := q.messages()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].SendAt.Equal(now))
	// TTL never drops below the lead.
	assert.Equal(t, time.Hour, claims.held[notification.ReminderClaimKey("appt-past", appt)])
}

func TestPublisher_DuplicateSuppressed(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	guard := idempotency.NewRedisGuard(client, "test:idem", true, zap.NewNop())

	q := &memQueue{}
	duplicates := 0
	p := notification.NewPublisher(q, guard, time.Hour, zap.NewNop(),
		notification.WithDuplicateHook(func() { duplicates++ }))

	appt := time.Now().Add(48 * time.Hour).Truncate(time.Second)
	payload := payloadFor("appt-1", appt)
	ctx := context.Background()

	require.NoError(t, p.ScheduleAppointmentReminder(ctx, payload, appt))
	require.NoError(t, p.ScheduleAppointmentReminder(ctx, payload, appt))

	assert.Len(t, q.messages(), 1)
	assert.Equal(t, 1, duplicates)

	// A rescheduled appointment is a different claim.
	moved := appt.Add(time.Hour)
	require.NoError(t, p.ScheduleAppointmentReminder(ctx, payloadFor("appt-1", moved), moved))
	assert.Len(t, q.messages(), 2)
}

func TestPublisher_ClaimErrorPropagates(t *testing.T) {
	q := &memQueue{}
	claims := newMemClaims()
	claims.err = errProviderDown
	p := notification.NewPublisher(q, claims, time.Hour, zap.NewNop())

	appt := time.Now().Add(24 * time.Hour)
	err := p.ScheduleAppointmentReminder(context.Background(), payloadFor("appt-1", appt), appt)
	assert.ErrorIs(t, err, errProviderDown)
	assert.Empty(t, q.messages())
}

func TestPublisher_StoreErrorPropagates(t *testing.T) {
	q := &memQueue{err: errProviderDown}
	p := notification.NewPublisher(q, newMemClaims(), time.Hour, zap.NewNop())

	appt := time.Now().Add(24 * time.Hour)
	err := p.ScheduleAppointmentReminder(context.Background(), payloadFor("appt-1", appt), appt)
	assert.ErrorIs(t, err, errProviderDown)
}

func TestPublisher_PublishBypassesClaims(t *testing.T) {
	q := &memQueue{}
	claims := newMemClaims()
	claims.err = errProviderDown
	p := notification.NewPublisher(q, claims, time.Hour, zap.NewNop())

	job := reminderJob("")
	require.NoError(t, p.Publish(context.Background(), job))
	require.NoError(t, p.Publish(context.Background(), job))

	msgs := q.messages()
	require.Len(t, msgs, 2)
	assert.NotEqual(t, msgs[0].ID, msgs[1].ID)
}

func TestPublisher_DefaultLead(t *testing.T) {
	q := &memQueue{}
	now := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)
	p := notification.NewPublisher(q, newMemClaims(), -time.Minute, zap.NewNop(), notification.WithClock(func() time.Time { return now }))

	appt := now.Add(5 * time.Hour)
	require.NoError(t, p.ScheduleAppointmentReminder(context.Background(), payloadFor("a", appt), appt))
	assert.True(t, q.messages()[0].SendAt.Equal(appt.Add(-notification.DefaultReminderLead)))
}

func TestPublisher_ZeroLeadSendsAtAppointment(t *testing.T) {
	q := &memQueue{}
	claims := newMemClaims()
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	p := notification.NewPublisher(q, claims, 0, zap.NewNop(), notification.WithClock(func() time.Time { return now }))

	appt := time.Date(2026, 5, 4, 11, 0, 0, 0, time.UTC)
	require.NoError(t, p.ScheduleAppointmentReminder(context.Background(), payloadFor("a", appt), appt))
	require.Len(t, q.messages(), 1)
	assert.True(t, q.messages()[0].SendAt.Equal(appt), "send at %v", q.messages()[0].SendAt)

	// Already due: sent now, and the claim still expires.
	due := now.Add(-time.Minute)
	require.NoError(t, p.ScheduleAppointmentReminder(context.Background(), payloadFor("b", due), due))
	assert.True(t, q.messages()[1].SendAt.Equal(now))
	assert.Positive(t, claims.held[notification.ReminderClaimKey("b", due)])
}
