package repository

import (
	"context"

	"github.com/ricirt/appointment-reminders/internal/domain"
)

// LookupRepository is the read-only view of the appointment backend that the
// reminder pipeline needs. Every method returns domain.ErrNotFound when the
// row does not exist.
// The pgx implementation is in pg_lookup_repo.go.
// Tests use a hand-written mock (mock_lookup_repo.go).
type LookupRepository interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetAppointment(ctx context.Context, id string) (*domain.Appointment, error)
	GetPet(ctx context.Context, id string) (*domain.Pet, error)
	GetService(ctx context.Context, id string) (*domain.Service, error)
}
