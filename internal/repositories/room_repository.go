package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"chatrooms-service/internal/models"
)

var ErrRoomNotFound = errors.New("room not found")

// RoomRepository abstracts room persistence and membership.
type RoomRepository interface {
	CreateRoom(ctx context.Context, creatorID, name string, description *string, isPrivate bool) (models.Room, error)
	GetRoom(ctx context.Context, roomID string) (models.Room, error)
	ListRoomsForUser(ctx context.Context, userID string) ([]models.Room, error)
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
	AddMember(ctx context.Context, roomID, userID string) error
}

// RoomRepo is a sqlx implementation of RoomRepository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

const roomColumns = `r.id, r.name, r.description, r.is_private, r.created_by, r.created_at,
	(SELECT COUNT(*) FROM room_members rm WHERE rm.room_id = r.id) AS member_count`

// CreateRoom creates a room and enrolls the creator as its first member atomically.
func (r *RoomRepo) CreateRoom(ctx context.Context, creatorID, name string, description *string, isPrivate bool) (models.Room, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Room{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	room := models.Room{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		IsPrivate:   isPrivate,
		CreatedBy:   creatorID,
	}
	if err = tx.QueryRowxContext(ctx, `INSERT INTO rooms (id, name, description, is_private, created_by) VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		room.ID, room.Name, room.Description, room.IsPrivate, room.CreatedBy).Scan(&room.CreatedAt); err != nil {
		return models.Room{}, err
	}

	if _, err = tx.ExecContext(ctx, `INSERT INTO room_members (room_id, user_id) VALUES ($1, $2)`, room.ID, creatorID); err != nil {
		return models.Room{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Room{}, err
	}
	room.MemberCount = 1
	return room, nil
}

// GetRoom fetches a single room with its member count.
func (r *RoomRepo) GetRoom(ctx context.Context, roomID string) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room, `SELECT `+roomColumns+` FROM rooms r WHERE r.id=$1`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	return room, err
}

// ListRoomsForUser returns public rooms plus private rooms the user belongs to.
func (r *RoomRepo) ListRoomsForUser(ctx context.Context, userID string) ([]models.Room, error) {
	var rooms []models.Room
	query := `SELECT ` + roomColumns + ` FROM rooms r
		WHERE r.is_private = FALSE
		OR EXISTS(SELECT 1 FROM room_members rm WHERE rm.room_id = r.id AND rm.user_id = $1)
		ORDER BY r.created_at DESC`
	err := r.db.SelectContext(ctx, &rooms, query, userID)
	return rooms, err
}

// IsMember checks room membership.
func (r *RoomRepo) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM room_members WHERE room_id=$1 AND user_id=$2)`, roomID, userID)
	return exists, err
}

// AddMember enrolls a user into a room. Joining twice is a no-op.
func (r *RoomRepo) AddMember(ctx context.Context, roomID, userID string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO room_members (room_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, roomID, userID)
	return err
}
