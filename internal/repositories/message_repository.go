package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"chatrooms-service/internal/models"
)

// MessageRepository is the append-only room message log.
type MessageRepository interface {
	AppendMessage(ctx context.Context, msg models.Message) error
	ListRoomMessages(ctx context.Context, roomID string, limit int) ([]models.Message, error)
	ListRecentSenderIDs(ctx context.Context, roomID string, limit int) ([]string, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// AppendMessage stores a fully constructed message. Messages are immutable
// once written; there is no update path.
func (r *MessageRepo) AppendMessage(ctx context.Context, msg models.Message) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO messages (id, content, room_id, user_id, user_name, user_avatar, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		msg.ID, msg.Content, msg.RoomID, msg.UserID, msg.UserName, msg.UserAvatar, msg.CreatedAt)
	return err
}

// ListRoomMessages returns the latest messages in a room, oldest first.
// The store is queried newest-first so the limit keeps the most recent page,
// then the page is reversed for display order.
func (r *MessageRepo) ListRoomMessages(ctx context.Context, roomID string, limit int) ([]models.Message, error) {
	var msgs []models.Message
	query := `SELECT id, content, room_id, user_id, user_name, user_avatar, created_at
		FROM messages WHERE room_id=$1 ORDER BY created_at DESC LIMIT $2`
	if err := r.db.SelectContext(ctx, &msgs, query, roomID, limit); err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// ListRecentSenderIDs returns author ids of the latest messages, newest first.
// Duplicates are preserved; callers dedupe.
func (r *MessageRepo) ListRecentSenderIDs(ctx context.Context, roomID string, limit int) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `SELECT user_id FROM messages WHERE room_id=$1 ORDER BY created_at DESC LIMIT $2`, roomID, limit)
	return ids, err
}
