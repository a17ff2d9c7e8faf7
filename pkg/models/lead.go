package models

import (
	"time"

	"github.com/google/uuid"
)

// LeadState represents where a lead is in the verification funnel
type LeadState string

const (
	// LeadStateAwaitingDone means the lead has been sent a link and has not yet claimed completion
	LeadStateAwaitingDone LeadState = "awaiting_done"
	// LeadStateAwaitingProof means the lead claimed completion and owes media proof
	LeadStateAwaitingProof LeadState = "awaiting_proof"
	// LeadStateVerified is terminal; proof was received and the completion recorded
	LeadStateVerified LeadState = "verified"
)

// Valid reports whether s is one of the known funnel states.
func (s LeadState) Valid() bool {
	switch s {
	case LeadStateAwaitingDone, LeadStateAwaitingProof, LeadStateVerified:
		return true
	}
	return false
}

// CanAdvanceTo reports whether a transition from s to next moves forward in the
// funnel. Regressions are never allowed.
func (s LeadState) CanAdvanceTo(next LeadState) bool {
	switch s {
	case LeadStateAwaitingDone:
		return next == LeadStateAwaitingProof
	case LeadStateAwaitingProof:
		return next == LeadStateVerified
	}
	return false
}

// Lead is a prospective participant tracked through the verification funnel.
// AssignedLinkID is set once at creation and never changes.
type Lead struct {
	ID             uuid.UUID `db:"id" json:"id"`
	Phone          string    `db:"phone" json:"phone"`
	Handle         string    `db:"handle" json:"handle"`
	AssignedLinkID uuid.UUID `db:"assigned_link_id" json:"assigned_link_id"`
	State          LeadState `db:"state" json:"state"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (Lead) TableName() string {
	return "leads"
}
