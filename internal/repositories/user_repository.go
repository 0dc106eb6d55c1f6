package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"backcoffee-chat/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository reads the customer profiles owned by the account service.
type UserRepository interface {
	GetProfile(ctx context.Context, userID string) (models.UserProfile, error)
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// GetProfile fetches a user's profile by id.
func (r *UserRepo) GetProfile(ctx context.Context, userID string) (models.UserProfile, error) {
	var profile models.UserProfile
	err := r.db.GetContext(ctx, &profile, `SELECT id, first_name, last_name, email, phone, is_admin FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.UserProfile{}, ErrUserNotFound
	}
	return profile, err
}
