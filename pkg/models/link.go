package models

import (
	"time"

	"github.com/google/uuid"
)

// Link is a rotatable outbound destination with a completion quota. Links are
// seeded out of band and only the rotation coordinator mutates them.
type Link struct {
	ID            uuid.UUID `db:"id" json:"id"`
	URL           string    `db:"url" json:"url"`
	Threshold     int       `db:"threshold" json:"threshold"`
	VerifiedCount int       `db:"verified_count" json:"verified_count"`
	Position      int       `db:"position" json:"position"`
	Active        bool      `db:"active" json:"active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (Link) TableName() string {
	return "links"
}

// Exhausted reports whether the link has met its completion quota.
func (l Link) Exhausted() bool {
	return l.VerifiedCount >= l.Threshold
}
