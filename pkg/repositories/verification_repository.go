package repositories

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/internal/database"
	"github.com/Ramsey-B/clover/internal/tracing"
	"github.com/Ramsey-B/clover/pkg/models"
)

const verificationsTable = "verifications"

var verificationStruct = database.NewStruct(new(models.Verification))

// VerificationRepository handles database operations for verification records
type VerificationRepository struct {
	*Repository
}

// NewVerificationRepository creates a new verification repository
func NewVerificationRepository(db database.DB, logger ectologger.Logger) *VerificationRepository {
	return &VerificationRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create inserts the verification record for a lead
func (r *VerificationRepository) Create(ctx context.Context, verification *models.Verification) error {
	ctx, span := tracing.StartSpan(ctx, "VerificationRepository.Create")
	defer span.End()

	if verification.ID == uuid.Nil {
		verification.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(verificationsTable).
		Cols("id", "lead_id", "media_key", "media_url", "created_at").
		Values(verification.ID, verification.LeadID, verification.MediaKey, verification.MediaURL,
			sqlbuilder.Raw("NOW()")).
		Returning("created_at")

	query, args := ib.Build()
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&verification.CreatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"verification_id": verification.ID,
			"lead_id":         verification.LeadID,
		}).Error("failed to create verification")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create verification")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"verification_id": verification.ID,
		"lead_id":         verification.LeadID,
	}).Debugf("Created %s", verificationsTable)
	return nil
}

// GetByLeadID retrieves the verification for a lead
func (r *VerificationRepository) GetByLeadID(ctx context.Context, leadID uuid.UUID) (*models.Verification, error) {
	ctx, span := tracing.StartSpan(ctx, "VerificationRepository.GetByLeadID")
	defer span.End()

	sb := verificationStruct.SelectFrom(verificationsTable)
	sb.Where(sb.Equal("lead_id", leadID))

	query, args := sb.Build()
	var verification models.Verification
	err := r.DB().GetContext(ctx, &verification, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "no verification for lead %s", leadID)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"lead_id": leadID,
		}).Error("failed to get verification by lead ID")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get verification by lead ID")
	}

	return &verification, nil
}
