package handlers

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/rotation"
)

// AdminHandler exposes operator-facing pool inspection
type AdminHandler struct {
	coordinator *rotation.Coordinator
	logger      ectologger.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(coordinator *rotation.Coordinator, logger ectologger.Logger) *AdminHandler {
	return &AdminHandler{
		coordinator: coordinator,
		logger:      logger,
	}
}

// RegisterRoutes registers the admin routes
func (h *AdminHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/status", h.Status)
}

// Status handles GET /status. The snapshot is read fresh from the database so
// operators see live counts, not the coordinator's cache.
func (h *AdminHandler) Status(c echo.Context) error {
	ctx := c.Request().Context()

	snapshot, err := h.coordinator.Status(ctx)
	if err != nil {
		return err
	}

	return SuccessResponse(c, snapshot)
}
