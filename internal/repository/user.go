package repository

import (
	"context"
	"errors"

	"trilex-backend/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository reads accounts and bookings owned by other services.
type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) GetUser(ctx context.Context, id string) (*model.User, error) {
	var (
		u    model.User
		role string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, role, COALESCE(display_name, '') FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Email, &role, &u.DisplayName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	return &u, nil
}

// GetTransaction resolves a booking to its client and provider. The provider
// kind comes from the role of the booked user.
func (r *UserRepository) GetTransaction(ctx context.Context, bookingID string) (*model.Transaction, error) {
	var (
		t    model.Transaction
		role string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT b.id, b.created_by, b.created_to, u.role
		FROM bookings b JOIN users u ON u.id = b.created_to
		WHERE b.id = $1
	`, bookingID).Scan(&t.ID, &t.ClientID, &t.ProviderID, &role)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.ProviderRole = model.Role(role)
	return &t, nil
}

// IsAffiliated reports whether userID is on the roster of the firm account firmUserID.
func (r *UserRepository) IsAffiliated(ctx context.Context, firmUserID, userID string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM firm_members WHERE firm_user_id = $1 AND member_user_id = $2)
	`, firmUserID, userID).Scan(&ok)
	return ok, err
}
