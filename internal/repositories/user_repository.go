package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chatrooms-service/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository resolves verified user ids to identity records.
type UserRepository interface {
	GetUser(ctx context.Context, userID string) (models.User, error)
	ListUsersByIDs(ctx context.Context, ids []string) ([]models.User, error)
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// GetUser fetches one user.
func (r *UserRepo) GetUser(ctx context.Context, userID string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT id, nickname, avatar_url, is_active, created_at FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// ListUsersByIDs fetches multiple users in one query. Unknown ids are skipped.
func (r *UserRepo) ListUsersByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	var users []models.User
	err := r.db.SelectContext(ctx, &users, `SELECT id, nickname, avatar_url, is_active, created_at FROM users WHERE id = ANY($1)`, pq.Array(ids))
	return users, err
}
