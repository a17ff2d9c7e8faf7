package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/internal/handlers"
	"github.com/Ramsey-B/clover/pkg/funnel"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

type fakeInboundHandler struct {
	received []funnel.Inbound
	err      error
}

func (f *fakeInboundHandler) HandleInbound(ctx context.Context, in funnel.Inbound) error {
	f.received = append(f.received, in)
	return f.err
}

func postWebhook(t *testing.T, handler *handlers.WebhookHandler, body string) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/hooks/telnyx", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, handler.Receive(c))
	return rec
}

func TestWebhookDeliversInboundMessage(t *testing.T) {
	fake := &fakeInboundHandler{}
	handler := handlers.NewWebhookHandler(fake, getTestLogger())

	body := `{"data":{"event_type":"message.received","payload":{
		"from":{"phone_number":"+15551230001"},
		"text":"DONE",
		"media":[]
	}}}`
	rec := postWebhook(t, handler, body)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, fake.received, 1)
	assert.Equal(t, "+15551230001", fake.received[0].From)
	assert.Equal(t, "DONE", fake.received[0].Text)
	assert.False(t, fake.received[0].HasMedia)
}

func TestWebhookCarriesFirstMediaURL(t *testing.T) {
	fake := &fakeInboundHandler{}
	handler := handlers.NewWebhookHandler(fake, getTestLogger())

	body := `{"data":{"event_type":"message.received","payload":{
		"from":{"phone_number":"+15551230001"},
		"text":"",
		"media":[
			{"url":"https://mms.telnyx.com/m/first","content_type":"image/jpeg"},
			{"url":"https://mms.telnyx.com/m/second","content_type":"image/png"}
		]
	}}}`
	postWebhook(t, handler, body)

	require.Len(t, fake.received, 1)
	assert.True(t, fake.received[0].HasMedia)
	assert.Equal(t, "https://mms.telnyx.com/m/first", fake.received[0].MediaRef)
}

func TestWebhookIgnoresOtherEventTypes(t *testing.T) {
	fake := &fakeInboundHandler{}
	handler := handlers.NewWebhookHandler(fake, getTestLogger())

	body := `{"data":{"event_type":"message.sent","payload":{"from":{"phone_number":"+15551230001"}}}}`
	rec := postWebhook(t, handler, body)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, fake.received)
}

func TestWebhookAcksEvenWhenHandlingFails(t *testing.T) {
	fake := &fakeInboundHandler{err: assert.AnError}
	handler := handlers.NewWebhookHandler(fake, getTestLogger())

	body := `{"data":{"event_type":"message.received","payload":{
		"from":{"phone_number":"+15551230001"},"text":"hi"
	}}}`
	rec := postWebhook(t, handler, body)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

func TestWebhookAcksMalformedPayload(t *testing.T) {
	fake := &fakeInboundHandler{}
	handler := handlers.NewWebhookHandler(fake, getTestLogger())

	rec := postWebhook(t, handler, `{"data":{"event_type":"message.received","payload":{"text":"no sender"}}}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, fake.received)
}
