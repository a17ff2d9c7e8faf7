package handlers

import (
	"net/http"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/media"
	"github.com/Ramsey-B/clover/pkg/metrics"
)

// MediaHandler serves stored proof media behind signed URLs
type MediaHandler struct {
	store  *media.Store
	logger ectologger.Logger
}

// NewMediaHandler creates a new media handler
func NewMediaHandler(store *media.Store, logger ectologger.Logger) *MediaHandler {
	return &MediaHandler{
		store:  store,
		logger: logger,
	}
}

// RegisterRoutes registers the media routes. Keys contain slashes, so the route
// is a wildcard.
func (h *MediaHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/media/*", h.Serve)
}

// Serve handles GET /media/{key}?token=...
func (h *MediaHandler) Serve(c echo.Context) error {
	ctx := c.Request().Context()

	key := c.Param("*")
	if key == "" {
		return BadRequest("missing media key")
	}

	token := c.QueryParam("token")
	if !h.store.VerifyToken(token, key) {
		metrics.MediaFetchesTotal.WithLabelValues("unauthorized").Inc()
		return Unauthorized("invalid or expired token")
	}

	object, err := h.store.Get(ctx, key)
	if err != nil {
		return err
	}

	metrics.MediaFetchesTotal.WithLabelValues("served").Inc()
	return c.Blob(http.StatusOK, object.ContentType, object.Body)
}
