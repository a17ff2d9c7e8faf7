package repositories

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/internal/database"
	"github.com/Ramsey-B/clover/internal/tracing"
	"github.com/Ramsey-B/clover/pkg/models"
)

const linksTable = "links"

var linkStruct = database.NewStruct(new(models.Link))

// LinkRepository handles database operations for the link pool
type LinkRepository struct {
	*Repository
}

// NewLinkRepository creates a new link repository
func NewLinkRepository(db database.DB, logger ectologger.Logger) *LinkRepository {
	return &LinkRepository{
		Repository: NewRepository(db, logger),
	}
}

// ListByPosition returns the whole pool ordered by rotation position
func (r *LinkRepository) ListByPosition(ctx context.Context) ([]models.Link, error) {
	ctx, span := tracing.StartSpan(ctx, "LinkRepository.ListByPosition")
	defer span.End()

	sb := linkStruct.SelectFrom(linksTable)
	sb.OrderBy("position").Asc()

	query, args := sb.Build()
	links := []models.Link{}
	err := r.DB().SelectContext(ctx, &links, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list links")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list links")
	}

	return links, nil
}

// GetByID retrieves a link by ID
func (r *LinkRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Link, error) {
	ctx, span := tracing.StartSpan(ctx, "LinkRepository.GetByID")
	defer span.End()

	sb := linkStruct.SelectFrom(linksTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var link models.Link
	err := r.DB().GetContext(ctx, &link, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLinkNotFound
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"link_id": id,
		}).Error("failed to get link by ID")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get link by ID")
	}

	return &link, nil
}

// IncrementVerified increments verified_count for the link by exactly 1. The read
// and the write share one transaction so concurrent completions cannot drop an
// increment even if the caller's serialization is ever bypassed.
func (r *LinkRepository) IncrementVerified(ctx context.Context, id uuid.UUID) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "LinkRepository.IncrementVerified")
	defer span.End()

	txCtx, tx, err := r.DB().GetTx(ctx, nil)
	if err != nil {
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to begin completion transaction")
	}
	defer tx.Rollback(ctx)

	var current struct {
		VerifiedCount int `db:"verified_count"`
		Threshold     int `db:"threshold"`
	}
	err = tx.GetContext(txCtx, &current,
		"SELECT verified_count, threshold FROM links WHERE id = $1 FOR UPDATE", id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrLinkNotFound
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"link_id": id,
		}).Error("failed to read link for completion")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to read link for completion")
	}

	newCount := current.VerifiedCount + 1
	_, err = tx.ExecContext(txCtx,
		"UPDATE links SET verified_count = $1, updated_at = NOW() WHERE id = $2", newCount, id)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"link_id": id,
		}).Error("failed to increment verified count")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to increment verified count")
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit completion")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"link_id":        id,
		"verified_count": newCount,
		"threshold":      current.Threshold,
	}).Debugf("Incremented verified count for %s", linksTable)
	return newCount, nil
}

// SetActive clears the active flag across the pool and sets it on activeID when
// given, leaving at most one active row.
func (r *LinkRepository) SetActive(ctx context.Context, activeID *uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "LinkRepository.SetActive")
	defer span.End()

	txCtx, tx, err := r.DB().GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to begin active flag transaction")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.ExecContext(txCtx, "UPDATE links SET active = FALSE WHERE active"); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to clear active flags")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to clear active flags")
	}

	if activeID != nil {
		if _, err := tx.ExecContext(txCtx, "UPDATE links SET active = TRUE WHERE id = $1", *activeID); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"link_id": *activeID,
			}).Error("failed to set active flag")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to set active flag")
		}
	}

	return tx.Commit(ctx)
}
