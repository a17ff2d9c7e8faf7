// Package sms sends outbound messages through the Telnyx v2 API. Sends are
// best-effort: a failure is reported to the caller as a boolean, never an error
// that would abort funnel handling.
package sms

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/internal/tracing"
	"github.com/Ramsey-B/clover/pkg/httpclient"
	"github.com/Ramsey-B/clover/pkg/metrics"
)

const defaultMessagesURL = "https://api.telnyx.com/v2/messages"

// Sender delivers one SMS/MMS. Implementations must be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, to string, text string, mediaURLs []string) bool
}

// TelnyxSender sends messages through the Telnyx messages endpoint
type TelnyxSender struct {
	client      *httpclient.Client
	logger      ectologger.Logger
	apiKey      string
	fromNumber  string
	messagesURL string
}

// NewTelnyxSender creates a Telnyx-backed sender
func NewTelnyxSender(client *httpclient.Client, logger ectologger.Logger, apiKey, fromNumber string) *TelnyxSender {
	return &TelnyxSender{
		client:      client,
		logger:      logger,
		apiKey:      apiKey,
		fromNumber:  fromNumber,
		messagesURL: defaultMessagesURL,
	}
}

// SetMessagesURL overrides the API endpoint, used by tests
func (s *TelnyxSender) SetMessagesURL(url string) {
	s.messagesURL = url
}

type sendRequest struct {
	From      string   `json:"from"`
	To        string   `json:"to"`
	Text      string   `json:"text"`
	MediaURLs []string `json:"media_urls,omitempty"`
}

// Send delivers one message. Returns true only when the provider accepted it.
func (s *TelnyxSender) Send(ctx context.Context, to string, text string, mediaURLs []string) bool {
	ctx, span := tracing.StartSpan(ctx, "sms.TelnyxSender.Send")
	defer span.End()

	payload := sendRequest{
		From:      s.fromNumber,
		To:        to,
		Text:      text,
		MediaURLs: mediaURLs,
	}

	headers := map[string]string{
		"Authorization": "Bearer " + s.apiKey,
	}

	resp, err := s.client.PostJSON(ctx, s.messagesURL, headers, payload)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"to": to,
		}).Error("failed to send SMS")
		metrics.SMSSendsTotal.WithLabelValues("error").Inc()
		return false
	}

	if !resp.OK() {
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"to":     to,
			"status": resp.StatusCode,
		}).Error("SMS send rejected by provider")
		metrics.SMSSendsTotal.WithLabelValues("rejected").Inc()
		return false
	}

	metrics.SMSSendsTotal.WithLabelValues("ok").Inc()
	return true
}
