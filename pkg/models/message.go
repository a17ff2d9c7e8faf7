package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageDirection distinguishes inbound from outbound SMS traffic
type MessageDirection string

const (
	MessageDirectionInbound  MessageDirection = "inbound"
	MessageDirectionOutbound MessageDirection = "outbound"
)

// Message is an append-only log entry of one SMS exchanged with a lead.
// Rows are never updated or deleted.
type Message struct {
	ID        uuid.UUID        `db:"id" json:"id"`
	Phone     string           `db:"phone" json:"phone"`
	Direction MessageDirection `db:"direction" json:"direction"`
	Text      string           `db:"text" json:"text"`
	HasMedia  bool             `db:"has_media" json:"has_media"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}

// TableName returns the database table name
func (Message) TableName() string {
	return "messages"
}
