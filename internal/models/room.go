package models

import "time"

// Room is a named channel scoping messages and access control.
type Room struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description"`
	IsPrivate   bool      `db:"is_private" json:"is_private"`
	CreatedBy   string    `db:"created_by" json:"created_by"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	MemberCount int       `db:"member_count" json:"member_count"`
}
