package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/models"
)

// LinkRepo defines the interface for link pool repository operations
type LinkRepo interface {
	ListByPosition(ctx context.Context) ([]models.Link, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Link, error)
	// IncrementVerified atomically increments verified_count by exactly 1 inside a
	// transaction. Returns ErrLinkNotFound with no mutation when the id is unknown.
	IncrementVerified(ctx context.Context, id uuid.UUID) (int, error)
	// SetActive rewrites the active flag across the pool so only activeID (or no
	// row, when nil) carries it.
	SetActive(ctx context.Context, activeID *uuid.UUID) error
}

// LeadRepo defines the interface for lead repository operations
type LeadRepo interface {
	Create(ctx context.Context, lead *models.Lead) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Lead, error)
	// GetLatestByPhone returns (nil, nil) when no lead exists for the phone.
	GetLatestByPhone(ctx context.Context, phone string) (*models.Lead, error)
	UpdateState(ctx context.Context, id uuid.UUID, state models.LeadState) error
}

// MessageRepo defines the interface for the append-only message log
type MessageRepo interface {
	Append(ctx context.Context, message *models.Message) error
	ListByPhone(ctx context.Context, phone string, limit int) ([]models.Message, error)
}

// VerificationRepo defines the interface for verification records
type VerificationRepo interface {
	Create(ctx context.Context, verification *models.Verification) error
	GetByLeadID(ctx context.Context, leadID uuid.UUID) (*models.Verification, error)
}

// MediaRepo defines the interface for stored proof media
type MediaRepo interface {
	Store(ctx context.Context, object *models.MediaObject) error
	GetByKey(ctx context.Context, key string) (*models.MediaObject, error)
}
