package repository

import (
	"context"
	"sync"

	"github.com/ricirt/appointment-reminders/internal/domain"
)

// MockLookupRepository is a hand-written, in-memory LookupRepository for
// unit tests.
type MockLookupRepository struct {
	mu           sync.RWMutex
	users        map[string]domain.User
	appointments map[string]domain.Appointment
	pets         map[string]domain.Pet
	services     map[string]domain.Service

	// Optional error overrides used to simulate an unavailable database.
	GetUserErr        error
	GetAppointmentErr error
}

func NewMockLookupRepository() *MockLookupRepository {
	return &MockLookupRepository{
		users:        make(map[string]domain.User),
		appointments: make(map[string]domain.Appointment),
		pets:         make(map[string]domain.Pet),
		services:     make(map[string]domain.Service),
	}
}

func (m *MockLookupRepository) PutUser(u domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *MockLookupRepository) PutAppointment(a domain.Appointment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appointments[a.ID] = a
}

func (m *MockLookupRepository) PutPet(p domain.Pet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pets[p.ID] = p
}

func (m *MockLookupRepository) PutService(s domain.Service) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[s.ID] = s
}

func (m *MockLookupRepository) DeleteAppointment(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.appointments, id)
}

func (m *MockLookupRepository) GetUser(_ context.Context, id string) (*domain.User, error) {
	if m.GetUserErr != nil {
		return nil, m.GetUserErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

func (m *MockLookupRepository) GetAppointment(_ context.Context, id string) (*domain.Appointment, error) {
	if m.GetAppointmentErr != nil {
		return nil, m.GetAppointmentErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &a, nil
}

func (m *MockLookupRepository) GetPet(_ context.Context, id string) (*domain.Pet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (m *MockLookupRepository) GetService(_ context.Context, id string) (*domain.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.services[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

var _ LookupRepository = (*MockLookupRepository)(nil)
