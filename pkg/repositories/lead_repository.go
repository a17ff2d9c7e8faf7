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

const leadsTable = "leads"

var leadStruct = database.NewStruct(new(models.Lead))

// LeadRepository handles database operations for leads
type LeadRepository struct {
	*Repository
}

// NewLeadRepository creates a new lead repository
func NewLeadRepository(db database.DB, logger ectologger.Logger) *LeadRepository {
	return &LeadRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create inserts a new lead. AssignedLinkID and State must already be set; the
// database fills the timestamps.
func (r *LeadRepository) Create(ctx context.Context, lead *models.Lead) error {
	ctx, span := tracing.StartSpan(ctx, "LeadRepository.Create")
	defer span.End()

	if lead.ID == uuid.Nil {
		lead.ID = uuid.New()
	}
	if lead.State == "" {
		lead.State = models.LeadStateAwaitingDone
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(leadsTable).
		Cols("id", "phone", "handle", "assigned_link_id", "state", "created_at", "updated_at").
		Values(lead.ID, lead.Phone, lead.Handle, lead.AssignedLinkID, lead.State,
			sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&lead.CreatedAt, &lead.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"lead_id": lead.ID,
		}).Error("failed to create lead")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create lead")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"lead_id": lead.ID,
	}).Debugf("Created %s", leadsTable)
	return nil
}

// GetByID retrieves a lead by ID
func (r *LeadRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Lead, error) {
	ctx, span := tracing.StartSpan(ctx, "LeadRepository.GetByID")
	defer span.End()

	sb := leadStruct.SelectFrom(leadsTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var lead models.Lead
	err := r.DB().GetContext(ctx, &lead, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "lead %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"lead_id": id,
		}).Error("failed to get lead by ID")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get lead by ID")
	}

	return &lead, nil
}

// GetLatestByPhone retrieves the most recent lead for a phone number, or nil when
// the sender is unknown.
func (r *LeadRepository) GetLatestByPhone(ctx context.Context, phone string) (*models.Lead, error) {
	ctx, span := tracing.StartSpan(ctx, "LeadRepository.GetLatestByPhone")
	defer span.End()

	sb := leadStruct.SelectFrom(leadsTable)
	sb.Where(sb.Equal("phone", phone))
	sb.OrderBy("created_at").Desc()
	sb.Limit(1)

	query, args := sb.Build()
	var lead models.Lead
	err := r.DB().GetContext(ctx, &lead, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"phone": phone,
		}).Error("failed to get lead by phone")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get lead by phone")
	}

	return &lead, nil
}

// UpdateState writes the lead's funnel state. Forward-only ordering is enforced by
// the funnel service before calling; same-lead races resolve last-write-wins.
func (r *LeadRepository) UpdateState(ctx context.Context, id uuid.UUID, state models.LeadState) error {
	ctx, span := tracing.StartSpan(ctx, "LeadRepository.UpdateState")
	defer span.End()

	if !state.Valid() {
		return BadRequest("invalid lead state")
	}

	_, err := r.DB().ExecContext(ctx,
		"UPDATE leads SET state = $1, updated_at = NOW() WHERE id = $2", state, id)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"lead_id": id,
			"state":   state,
		}).Error("failed to update lead state")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update lead state")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"lead_id": id,
		"state":   state,
	}).Debugf("Updated %s state", leadsTable)
	return nil
}
