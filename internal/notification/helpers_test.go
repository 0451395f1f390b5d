package notification_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ricirt/appointment-reminders/internal/domain"
	"github.com/ricirt/appointment-reminders/internal/notification"
	"github.com/ricirt/appointment-reminders/internal/queue"
	"github.com/ricirt/appointment-reminders/internal/repository"
)

// memQueue records published messages and never consumes them.
type memQueue struct {
	mu        sync.Mutex
	published []queue.Message[domain.NotificationJob]
	handlers  []queue.Handler[domain.NotificationJob]
	err       error
	closed    bool
}

func (q *memQueue) Publish(_ context.Context, msg queue.Message[domain.NotificationJob]) error {
	if q.err != nil {
		return q.err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published = append(q.published, msg)
	return nil
}

func (q *memQueue) Subscribe(h queue.Handler[domain.NotificationJob]) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers = append(q.handlers, h)
}

func (q *memQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

func (q *memQueue) messages() []queue.Message[domain.NotificationJob] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queue.Message[domain.NotificationJob](nil), q.published...)
}

// memClaims is an in-memory ClaimStore that ignores TTLs.
type memClaims struct {
	mu   sync.Mutex
	held map[string]time.Duration
	err  error
}

func newMemClaims() *memClaims {
	return &memClaims{held: map[string]time.Duration{}}
}

func (c *memClaims) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.held[key]; ok {
		return false, nil
	}
	c.held[key] = ttl
	return true, nil
}

// recordingAdapter records every reminder it is asked to send.
type recordingAdapter struct {
	mu    sync.Mutex
	calls []notification.ReminderContext
	err   error
	panic bool
}

func (a *recordingAdapter) SendAppointmentReminder(_ context.Context, rc notification.ReminderContext) error {
	a.mu.Lock()
	a.calls = append(a.calls, rc)
	a.mu.Unlock()
	if a.panic {
		panic("adapter exploded")
	}
	return a.err
}

func (a *recordingAdapter) received() []notification.ReminderContext {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]notification.ReminderContext(nil), a.calls...)
}

var errProviderDown = errors.New("provider down")

var appointmentAt = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

// seedRepo stores a user with EMAIL and SMS enabled, a vet, a pet, a service
// and one appointment "appt-1".
func seedRepo() *repository.MockLookupRepository {
	repo := repository.NewMockLookupRepository()
	repo.PutUser(domain.User{
		ID:          "user-1",
		Email:       "jane@example.com",
		PhoneNumber: "5551234567",
		FullName:    "Jane Doe",
		NotificationPreferences: domain.NotificationPreferences{
			Channels:             []domain.Channel{domain.ChannelEmail, domain.ChannelSMS},
			UpcomingAppointments: domain.UpcomingAppointments{Enabled: true},
		},
	})
	repo.PutUser(domain.User{ID: "vet-1", FullName: "Dr. Who"})
	repo.PutPet(domain.Pet{ID: "pet-1", Name: "Rex"})
	repo.PutService(domain.Service{ID: "svc-1", Name: "Vaccination"})
	repo.PutAppointment(domain.Appointment{
		ID: "appt-1", UserID: "user-1", VetID: "vet-1", PetID: "pet-1", ServiceID: "svc-1",
		Date: appointmentAt,
	})
	return repo
}

func reminderJob(id string) domain.NotificationJob {
	appt := domain.Appointment{
		ID: "appt-1", UserID: "user-1", VetID: "vet-1", PetID: "pet-1", ServiceID: "svc-1",
		Date: appointmentAt,
	}
	job, err := domain.NewAppointmentReminderJob(appt.ReminderPayload(), nil)
	if err != nil {
		panic(err)
	}
	job.ID = id
	return job
}
