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
	"github.com/ricirt/appointment-reminders/internal/queue"
)

// TestModule_EndToEnd schedules a reminder for an appointment inside the lead
// window and expects it to reach the email adapter through Redis.
func TestModule_EndToEnd(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := zap.NewNop()
	q := queue.NewRedisQueue[domain.NotificationJob](client, queue.Options{
		QueueKey:     "e2e:queue",
		ScheduledKey: "e2e:scheduled",
		PollInterval: 50 * time.Millisecond,
	}, logger)

	repo := seedRepo()
	email := &recordingAdapter{}
	sender := notification.NewSender(repo, map[domain.Channel]notification.ChannelAdapter{
		domain.ChannelEmail: email,
	}, logger)
	guard := idempotency.NewRedisGuard(client, "e2e:idem", true, logger)

	m := notification.NewModule(q, guard, sender, time.Hour, logger)
	m.Start()
	t.Cleanup(m.Close)

	appt := time.Now().Add(10 * time.Minute)
	repo.PutAppointment(domain.Appointment{
		ID: "appt-9", UserID: "user-1", VetID: "vet-1", PetID: "pet-1", ServiceID: "svc-1", Date: appt,
	})
	a, _ := repo.GetAppointment(context.Background(), "appt-9")

	ctx := context.Background()
	require.NoError(t, m.Publisher.ScheduleAppointmentReminder(ctx, a.ReminderPayload(), appt))
	require.NoError(t, m.Publisher.ScheduleAppointmentReminder(ctx, a.ReminderPayload(), appt))

	require.Eventually(t, func() bool { return len(email.received()) == 1 }, 3*time.Second, 20*time.Millisecond)

	rc := email.received()[0]
	assert.NotEmpty(t, rc.Job.ID)
	assert.Equal(t, "appt-9", rc.Appointment.ID)

	// The duplicate schedule never reached the queue.
	time.Sleep(200 * time.Millisecond)
	assert.Len(t, email.received(), 1)
}

func TestConsumer_StartIsIdempotent(t *testing.T) {
	q := &memQueue{}
	c := notification.NewConsumer(q, notification.NewSender(seedRepo(), nil, zap.NewNop()), zap.NewNop())

	c.Start()
	c.Start()

	q.mu.Lock()
	defer q.mu.Unlock()
	assert.Len(t, q.handlers, 1)
}

func TestConsumer_FillsJobIDAndSwallowsErrors(t *testing.T) {
	q := &memQueue{}
	repo := seedRepo()
	repo.GetUserErr = errProviderDown
	email := &recordingAdapter{}
	sender := notification.NewSender(repo, map[domain.Channel]notification.ChannelAdapter{domain.ChannelEmail: email}, zap.NewNop())
	c := notification.NewConsumer(q, sender, zap.NewNop())
	c.Start()

	job := reminderJob("")
	err := q.handlers[0](context.Background(), queue.Message[domain.NotificationJob]{ID: "msg-1", Payload: job})
	assert.NoError(t, err)

	repo.GetUserErr = nil
	require.NoError(t, q.handlers[0](context.Background(), queue.Message[domain.NotificationJob]{ID: "msg-2", Payload: job}))
	require.Len(t, email.received(), 1)
	assert.Equal(t, "msg-2", email.received()[0].Job.ID)
}

func TestModule_CloseStopsQueue(t *testing.T) {
	q := &memQueue{}
	m := notification.NewModule(q, newMemClaims(), notification.NewSender(seedRepo(), nil, zap.NewNop()), time.Hour, zap.NewNop())
	m.Start()
	m.Close()

	q.mu.Lock()
	defer q.mu.Unlock()
	assert.True(t, q.closed)
}
