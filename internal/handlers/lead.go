package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/rotation"
)

// LeadRegistrar is the slice of the funnel service used for signups
type LeadRegistrar interface {
	RegisterLead(ctx context.Context, phone, handle string) (*models.Lead, error)
}

// LeadHandler handles lead signup requests
type LeadHandler struct {
	funnel   LeadRegistrar
	validate *validator.Validate
	logger   ectologger.Logger
}

// NewLeadHandler creates a new lead handler
func NewLeadHandler(funnelService LeadRegistrar, logger ectologger.Logger) *LeadHandler {
	return &LeadHandler{
		funnel:   funnelService,
		validate: validator.New(),
		logger:   logger,
	}
}

// CreateLeadRequest is the request body for registering a lead
type CreateLeadRequest struct {
	Phone  string `json:"phone" validate:"required,e164"`
	Handle string `json:"handle" validate:"required,min=3"`
}

// RegisterRoutes registers the lead routes
func (h *LeadHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/lead", h.Create)
}

// Create handles POST /lead
func (h *LeadHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	var req CreateLeadRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}

	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := map[string]any{}
			for _, ve := range verrs {
				fields[ve.Field()] = ve.Tag()
			}
			httperr := httperror.NewHTTPError(http.StatusBadRequest, "validation failed")
			httperr.Meta = fields
			return httperr
		}
		return BadRequest("validation failed")
	}

	lead, err := h.funnel.RegisterLead(ctx, req.Phone, req.Handle)
	if err != nil {
		if errors.Is(err, rotation.ErrNoLinksConfigured) {
			return httperror.NewHTTPError(http.StatusServiceUnavailable, "no referral links configured")
		}
		return err
	}

	return CreatedResponse(c, lead)
}
