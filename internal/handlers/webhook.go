package handlers

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/funnel"
)

// InboundHandler is the slice of the funnel service used for inbound messages
type InboundHandler interface {
	HandleInbound(ctx context.Context, in funnel.Inbound) error
}

// WebhookHandler receives inbound SMS callbacks from Telnyx
type WebhookHandler struct {
	funnel InboundHandler
	logger ectologger.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(funnelService InboundHandler, logger ectologger.Logger) *WebhookHandler {
	return &WebhookHandler{
		funnel: funnelService,
		logger: logger,
	}
}

// TelnyxWebhook is the envelope Telnyx posts for message events
type TelnyxWebhook struct {
	Data struct {
		EventType string `json:"event_type"`
		Payload   struct {
			From struct {
				PhoneNumber string `json:"phone_number"`
			} `json:"from"`
			Text  string `json:"text"`
			Media []struct {
				URL         string `json:"url"`
				ContentType string `json:"content_type"`
			} `json:"media"`
		} `json:"payload"`
	} `json:"data"`
}

// RegisterRoutes registers the webhook routes
func (h *WebhookHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/telnyx", h.Receive)
}

// Receive handles POST /telnyx. It always acknowledges with 200 so the carrier
// does not retry; handling faults are logged and surfaced through metrics.
func (h *WebhookHandler) Receive(c echo.Context) error {
	ctx := c.Request().Context()

	var hook TelnyxWebhook
	if err := c.Bind(&hook); err != nil {
		h.logger.WithContext(ctx).WithError(err).Warn("unparseable webhook payload")
		return c.JSON(http.StatusOK, map[string]bool{"ok": true})
	}

	if hook.Data.EventType != "message.received" {
		return c.JSON(http.StatusOK, map[string]bool{"ok": true})
	}

	payload := hook.Data.Payload
	if payload.From.PhoneNumber == "" {
		h.logger.WithContext(ctx).Warn("webhook payload missing sender phone number")
		return c.JSON(http.StatusOK, map[string]bool{"ok": true})
	}

	in := funnel.Inbound{
		From:     payload.From.PhoneNumber,
		Text:     payload.Text,
		HasMedia: len(payload.Media) > 0,
	}
	if in.HasMedia {
		in.MediaRef = payload.Media[0].URL
	}

	if err := h.funnel.HandleInbound(ctx, in); err != nil {
		h.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"from": in.From,
		}).Error("failed to handle inbound message")
	}

	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}
