package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ricirt/appointment-reminders/internal/domain"
)

type pgLookupRepository struct {
	pool *pgxpool.Pool
}

// NewPgLookupRepository returns a LookupRepository backed by PostgreSQL.
func NewPgLookupRepository(pool *pgxpool.Pool) LookupRepository {
	return &pgLookupRepository{pool: pool}
}

func (r *pgLookupRepository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, COALESCE(phone_number, ''), full_name, notification_preferences
		FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &u.PhoneNumber, &u.FullName, &u.NotificationPreferences)
	if err != nil {
		return nil, notFound(err, "user", id)
	}
	return &u, nil
}

func (r *pgLookupRepository) GetAppointment(ctx context.Context, id string) (*domain.Appointment, error) {
	var a domain.Appointment
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, vet_id, pet_id, service_id, date, description
		FROM appointments WHERE id = $1`, id,
	).Scan(&a.ID, &a.UserID, &a.VetID, &a.PetID, &a.ServiceID, &a.Date, &a.Description)
	if err != nil {
		return nil, notFound(err, "appointment", id)
	}
	return &a, nil
}

func (r *pgLookupRepository) GetPet(ctx context.Context, id string) (*domain.Pet, error) {
	var p domain.Pet
	err := r.pool.QueryRow(ctx, `SELECT id, name FROM pets WHERE id = $1`, id).Scan(&p.ID, &p.Name)
	if err != nil {
		return nil, notFound(err, "pet", id)
	}
	return &p, nil
}

func (r *pgLookupRepository) GetService(ctx context.Context, id string) (*domain.Service, error) {
	var s domain.Service
	err := r.pool.QueryRow(ctx, `SELECT id, name FROM services WHERE id = $1`, id).Scan(&s.ID, &s.Name)
	if err != nil {
		return nil, notFound(err, "service", id)
	}
	return &s, nil
}

func notFound(err error, entity, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return fmt.Errorf("get %s %s: %w", entity, id, err)
}
