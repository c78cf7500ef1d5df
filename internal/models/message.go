package models

import "time"

// Message represents a room message. Author name and avatar are denormalized
// at send time and never updated retroactively.
type Message struct {
	ID         string    `db:"id" json:"id"`
	Content    string    `db:"content" json:"content"`
	RoomID     string    `db:"room_id" json:"room_id"`
	UserID     string    `db:"user_id" json:"user_id"`
	UserName   string    `db:"user_name" json:"user_name"`
	UserAvatar *string   `db:"user_avatar" json:"user_avatar"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// MessageEvent is broadcast through websockets to room subscribers.
type MessageEvent struct {
	Message
	Type string `json:"type"`
}

// ErrorFrame is sent back on the originating connection only.
type ErrorFrame struct {
	Error string `json:"error"`
}
