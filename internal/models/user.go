package models

import "time"

// User is the identity record resolved for message authors.
// Rows are created by the account service; this service only reads them.
type User struct {
	ID        string    `db:"id" json:"id"`
	Nickname  string    `db:"nickname" json:"nickname"`
	AvatarURL *string   `db:"avatar_url" json:"avatar_url"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
