package models

import (
	"time"

	"github.com/google/uuid"
)

// Verification records the proof that moved a lead to the verified state.
// Exactly one row is created per verified lead. MediaURL may be empty when
// URL signing failed; the verification itself still stands.
type Verification struct {
	ID        uuid.UUID `db:"id" json:"id"`
	LeadID    uuid.UUID `db:"lead_id" json:"lead_id"`
	MediaKey  string    `db:"media_key" json:"media_key"`
	MediaURL  string    `db:"media_url" json:"media_url"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// TableName returns the database table name
func (Verification) TableName() string {
	return "verifications"
}
