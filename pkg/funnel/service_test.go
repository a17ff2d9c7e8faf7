package funnel_test

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/funnel"
	"github.com/Ramsey-B/clover/pkg/media"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/rotation"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

var testTemplates = funnel.Templates{
	Intro:        "welcome, your link is {{LINK}}",
	AskProof:     "send a screenshot",
	ReminderDone: "reply DONE when finished",
	ReminderMMS:  "still waiting on that screenshot",
	Verified:     "you are verified",
	Resend:       "could not read that, send it again",
	AllSet:       "you are all set",
	Unknown:      "text START to sign up",
	Operator:     "verified {{PHONE}} ({{HANDLE}}) link={{LINK}} proof={{URL}}",
}

type fakeCoordinator struct {
	assignment      *rotation.Assignment
	assignErr       error
	completionCalls int
	completionErr   error
	result          *rotation.CompletionResult
}

func (f *fakeCoordinator) Assign(ctx context.Context) (*rotation.Assignment, error) {
	if f.assignErr != nil {
		return nil, f.assignErr
	}
	return f.assignment, nil
}

func (f *fakeCoordinator) RecordCompletion(ctx context.Context, linkID uuid.UUID) (*rotation.CompletionResult, error) {
	f.completionCalls++
	if f.completionErr != nil {
		return nil, f.completionErr
	}
	if f.result != nil {
		return f.result, nil
	}
	return &rotation.CompletionResult{NewCount: 1}, nil
}

type fakeLeadRepo struct {
	leads map[uuid.UUID]*models.Lead
}

func newFakeLeadRepo() *fakeLeadRepo {
	return &fakeLeadRepo{leads: map[uuid.UUID]*models.Lead{}}
}

func (f *fakeLeadRepo) Create(ctx context.Context, lead *models.Lead) error {
	if lead.ID == uuid.Nil {
		lead.ID = uuid.New()
	}
	copied := *lead
	f.leads[lead.ID] = &copied
	return nil
}

func (f *fakeLeadRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Lead, error) {
	l, ok := f.leads[id]
	if !ok {
		return nil, nil
	}
	copied := *l
	return &copied, nil
}

func (f *fakeLeadRepo) GetLatestByPhone(ctx context.Context, phone string) (*models.Lead, error) {
	var latest *models.Lead
	for _, l := range f.leads {
		if l.Phone != phone {
			continue
		}
		if latest == nil || latest.CreatedAt.Before(l.CreatedAt) {
			latest = l
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

func (f *fakeLeadRepo) UpdateState(ctx context.Context, id uuid.UUID, state models.LeadState) error {
	f.leads[id].State = state
	return nil
}

type fakeLinkRepo struct {
	links map[uuid.UUID]*models.Link
}

func (f *fakeLinkRepo) ListByPosition(ctx context.Context) ([]models.Link, error) { return nil, nil }

func (f *fakeLinkRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Link, error) {
	if l, ok := f.links[id]; ok {
		copied := *l
		return &copied, nil
	}
	return nil, rotation.ErrLinkNotFound
}

func (f *fakeLinkRepo) IncrementVerified(ctx context.Context, id uuid.UUID) (int, error) {
	return 0, nil
}

func (f *fakeLinkRepo) SetActive(ctx context.Context, activeID *uuid.UUID) error { return nil }

type fakeMessageRepo struct {
	messages []models.Message
}

func (f *fakeMessageRepo) Append(ctx context.Context, message *models.Message) error {
	f.messages = append(f.messages, *message)
	return nil
}

func (f *fakeMessageRepo) ListByPhone(ctx context.Context, phone string, limit int) ([]models.Message, error) {
	return f.messages, nil
}

func (f *fakeMessageRepo) inbound() int {
	count := 0
	for _, m := range f.messages {
		if m.Direction == models.MessageDirectionInbound {
			count++
		}
	}
	return count
}

type fakeVerificationRepo struct {
	verifications []models.Verification
}

func (f *fakeVerificationRepo) Create(ctx context.Context, verification *models.Verification) error {
	f.verifications = append(f.verifications, *verification)
	return nil
}

func (f *fakeVerificationRepo) GetByLeadID(ctx context.Context, leadID uuid.UUID) (*models.Verification, error) {
	for i := range f.verifications {
		if f.verifications[i].LeadID == leadID {
			return &f.verifications[i], nil
		}
	}
	return nil, nil
}

type fakeMediaStore struct {
	fetchErr   error
	fetchCalls int
	saved      map[string][]byte
}

func newFakeMediaStore() *fakeMediaStore {
	return &fakeMediaStore{saved: map[string][]byte{}}
}

func (f *fakeMediaStore) FetchRemote(ctx context.Context, ref string) ([]byte, string, error) {
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, "", f.fetchErr
	}
	return []byte("image-bytes"), "image/jpeg", nil
}

func (f *fakeMediaStore) Save(ctx context.Context, phone string, body []byte, contentType string) (string, error) {
	key := "proofs/" + phone + "/proof.jpg"
	f.saved[key] = body
	return key, nil
}

func (f *fakeMediaStore) SignURL(key string) string {
	return "https://media.example.com/" + key + "?token=signed"
}

type sentText struct {
	to   string
	text string
}

type fakeSender struct {
	sent []sentText
}

func (f *fakeSender) Send(ctx context.Context, to, text string, mediaURLs []string) bool {
	f.sent = append(f.sent, sentText{to: to, text: text})
	return true
}

func (f *fakeSender) textsTo(phone string) []string {
	var out []string
	for _, s := range f.sent {
		if s.to == phone {
			out = append(out, s.text)
		}
	}
	return out
}

type fakeEmitter struct {
	events []events.FunnelEvent
}

func (f *fakeEmitter) Emit(ctx context.Context, event events.FunnelEvent) error {
	f.events = append(f.events, event)
	return nil
}

type harness struct {
	service       *funnel.Service
	coordinator   *fakeCoordinator
	leads         *fakeLeadRepo
	links         *fakeLinkRepo
	messages      *fakeMessageRepo
	verifications *fakeVerificationRepo
	media         *fakeMediaStore
	sender        *fakeSender
	emitter       *fakeEmitter
	linkID        uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	linkID := uuid.New()
	h := &harness{
		coordinator: &fakeCoordinator{
			assignment: &rotation.Assignment{LinkID: linkID, URL: "https://ref.example.com/a"},
		},
		leads: newFakeLeadRepo(),
		links: &fakeLinkRepo{links: map[uuid.UUID]*models.Link{
			linkID: {ID: linkID, URL: "https://ref.example.com/a", Threshold: 3},
		}},
		messages:      &fakeMessageRepo{},
		verifications: &fakeVerificationRepo{},
		media:         newFakeMediaStore(),
		sender:        &fakeSender{},
		emitter:       &fakeEmitter{},
		linkID:        linkID,
	}

	h.service = funnel.NewService(
		h.coordinator, h.leads, h.links, h.messages, h.verifications,
		h.media, h.sender, h.emitter, getTestLogger(), testTemplates,
		"DONE", "+15550009999",
	)
	return h
}

func TestRegisterLeadAssignsLinkAndSendsIntro(t *testing.T) {
	h := newHarness(t)

	lead, err := h.service.RegisterLead(context.Background(), "+15551230001", "alice")
	require.NoError(t, err)

	assert.Equal(t, models.LeadStateAwaitingDone, lead.State)
	assert.Equal(t, h.linkID, lead.AssignedLinkID)

	texts := h.sender.textsTo("+15551230001")
	require.Len(t, texts, 1)
	assert.Equal(t, "welcome, your link is https://ref.example.com/a", texts[0])

	require.Len(t, h.emitter.events, 1)
	assert.Equal(t, events.EventLeadCreated, h.emitter.events[0].EventType)
}

func TestRegisterLeadEmptyPool(t *testing.T) {
	h := newHarness(t)
	h.coordinator.assignErr = rotation.ErrNoLinksConfigured

	_, err := h.service.RegisterLead(context.Background(), "+15551230001", "alice")
	require.ErrorIs(t, err, rotation.ErrNoLinksConfigured)
	assert.Empty(t, h.sender.sent)
	assert.Empty(t, h.leads.leads)
}

func TestUnknownSenderGetsGuidanceWithoutLogging(t *testing.T) {
	h := newHarness(t)

	err := h.service.HandleInbound(context.Background(), funnel.Inbound{
		From: "+15557770000",
		Text: "hello?",
	})
	require.NoError(t, err)

	texts := h.sender.textsTo("+15557770000")
	require.Len(t, texts, 1)
	assert.Equal(t, testTemplates.Unknown, texts[0])

	// unknown senders never touch the message log
	assert.Empty(t, h.messages.messages)
	assert.Empty(t, h.leads.leads)
}

func TestFullVerificationFlow(t *testing.T) {
	h := newHarness(t)
	phone := "+15551230001"

	lead, err := h.service.RegisterLead(context.Background(), phone, "alice")
	require.NoError(t, err)

	// completion keyword matches case-insensitively with surrounding whitespace
	err = h.service.HandleInbound(context.Background(), funnel.Inbound{From: phone, Text: "  done "})
	require.NoError(t, err)

	stored, err := h.leads.GetByID(context.Background(), lead.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeadStateAwaitingProof, stored.State)
	assert.Contains(t, h.sender.textsTo(phone), testTemplates.AskProof)

	h.sender.sent = nil
	err = h.service.HandleInbound(context.Background(), funnel.Inbound{
		From:     phone,
		Text:     "",
		HasMedia: true,
		MediaRef: "https://mms.telnyx.com/m/abc",
	})
	require.NoError(t, err)

	stored, err = h.leads.GetByID(context.Background(), lead.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeadStateVerified, stored.State)

	assert.Equal(t, 1, h.coordinator.completionCalls)
	assert.Equal(t, 1, h.media.fetchCalls)

	require.Len(t, h.verifications.verifications, 1)
	verification := h.verifications.verifications[0]
	assert.Equal(t, lead.ID, verification.LeadID)
	assert.NotEmpty(t, verification.MediaKey)
	assert.Contains(t, verification.MediaURL, "token=signed")

	// exactly two outbound texts: the confirmation and the operator alert
	require.Len(t, h.sender.sent, 2)
	assert.Equal(t, testTemplates.Verified, h.sender.textsTo(phone)[0])
	operatorTexts := h.sender.textsTo("+15550009999")
	require.Len(t, operatorTexts, 1)
	assert.Contains(t, operatorTexts[0], phone)
	assert.Contains(t, operatorTexts[0], "alice")
	assert.Contains(t, operatorTexts[0], "https://ref.example.com/a")
}

func TestMediaFetchFailureKeepsAwaitingProof(t *testing.T) {
	h := newHarness(t)
	phone := "+15551230001"

	lead, err := h.service.RegisterLead(context.Background(), phone, "alice")
	require.NoError(t, err)
	require.NoError(t, h.leads.UpdateState(context.Background(), lead.ID, models.LeadStateAwaitingProof))

	h.media.fetchErr = media.ErrFetchFailed
	h.sender.sent = nil

	err = h.service.HandleInbound(context.Background(), funnel.Inbound{
		From:     phone,
		HasMedia: true,
		MediaRef: "https://mms.telnyx.com/m/broken",
	})
	require.NoError(t, err)

	stored, err := h.leads.GetByID(context.Background(), lead.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeadStateAwaitingProof, stored.State)

	assert.Zero(t, h.coordinator.completionCalls)
	assert.Empty(t, h.verifications.verifications)
	assert.Equal(t, []string{testTemplates.Resend}, h.sender.textsTo(phone))

	// a later good submission completes normally
	h.media.fetchErr = nil
	err = h.service.HandleInbound(context.Background(), funnel.Inbound{
		From:     phone,
		HasMedia: true,
		MediaRef: "https://mms.telnyx.com/m/ok",
	})
	require.NoError(t, err)

	stored, err = h.leads.GetByID(context.Background(), lead.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeadStateVerified, stored.State)
	assert.Equal(t, 1, h.coordinator.completionCalls)
}

func TestRepeatedKeywordIsIdempotent(t *testing.T) {
	h := newHarness(t)
	phone := "+15551230001"

	lead, err := h.service.RegisterLead(context.Background(), phone, "alice")
	require.NoError(t, err)
	require.NoError(t, h.leads.UpdateState(context.Background(), lead.ID, models.LeadStateAwaitingProof))
	h.sender.sent = nil

	err = h.service.HandleInbound(context.Background(), funnel.Inbound{From: phone, Text: "DONE"})
	require.NoError(t, err)

	stored, err := h.leads.GetByID(context.Background(), lead.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeadStateAwaitingProof, stored.State)
	assert.Zero(t, h.coordinator.completionCalls)
	assert.Equal(t, []string{testTemplates.ReminderMMS}, h.sender.textsTo(phone))
}

func TestVerifiedLeadNeverMovesBackward(t *testing.T) {
	h := newHarness(t)
	phone := "+15551230001"

	lead, err := h.service.RegisterLead(context.Background(), phone, "alice")
	require.NoError(t, err)
	require.NoError(t, h.leads.UpdateState(context.Background(), lead.ID, models.LeadStateVerified))
	h.sender.sent = nil

	inputs := []funnel.Inbound{
		{From: phone, Text: "DONE"},
		{From: phone, HasMedia: true, MediaRef: "https://mms.telnyx.com/m/again"},
		{From: phone, Text: "hello"},
	}
	for _, in := range inputs {
		require.NoError(t, h.service.HandleInbound(context.Background(), in))

		stored, err := h.leads.GetByID(context.Background(), lead.ID)
		require.NoError(t, err)
		assert.Equal(t, models.LeadStateVerified, stored.State)
	}

	assert.Zero(t, h.coordinator.completionCalls)
	assert.Empty(t, h.verifications.verifications)
	for _, text := range h.sender.textsTo(phone) {
		assert.Equal(t, testTemplates.AllSet, text)
	}
}

func TestRemindersByState(t *testing.T) {
	h := newHarness(t)
	phone := "+15551230001"

	lead, err := h.service.RegisterLead(context.Background(), phone, "alice")
	require.NoError(t, err)
	h.sender.sent = nil

	err = h.service.HandleInbound(context.Background(), funnel.Inbound{From: phone, Text: "when do I get paid"})
	require.NoError(t, err)
	assert.Equal(t, []string{testTemplates.ReminderDone}, h.sender.textsTo(phone))

	require.NoError(t, h.leads.UpdateState(context.Background(), lead.ID, models.LeadStateAwaitingProof))
	h.sender.sent = nil

	err = h.service.HandleInbound(context.Background(), funnel.Inbound{From: phone, Text: "ok"})
	require.NoError(t, err)
	assert.Equal(t, []string{testTemplates.ReminderMMS}, h.sender.textsTo(phone))
}

func TestMissingLinkToleratedOnVerification(t *testing.T) {
	h := newHarness(t)
	phone := "+15551230001"

	lead, err := h.service.RegisterLead(context.Background(), phone, "alice")
	require.NoError(t, err)
	require.NoError(t, h.leads.UpdateState(context.Background(), lead.ID, models.LeadStateAwaitingProof))

	// the assigned link has been deleted out from under the lead
	delete(h.links.links, h.linkID)
	h.coordinator.completionErr = rotation.ErrLinkNotFound
	h.sender.sent = nil

	err = h.service.HandleInbound(context.Background(), funnel.Inbound{
		From:     phone,
		HasMedia: true,
		MediaRef: "https://mms.telnyx.com/m/ok",
	})
	require.NoError(t, err)

	stored, err := h.leads.GetByID(context.Background(), lead.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeadStateVerified, stored.State)
	require.Len(t, h.verifications.verifications, 1)

	// operator alert still goes out with a blank link placeholder
	operatorTexts := h.sender.textsTo("+15550009999")
	require.Len(t, operatorTexts, 1)
	assert.Contains(t, operatorTexts[0], "link= proof=")
}

func TestInboundMessagesAreLogged(t *testing.T) {
	h := newHarness(t)
	phone := "+15551230001"

	_, err := h.service.RegisterLead(context.Background(), phone, "alice")
	require.NoError(t, err)

	require.NoError(t, h.service.HandleInbound(context.Background(), funnel.Inbound{From: phone, Text: "done"}))
	require.NoError(t, h.service.HandleInbound(context.Background(), funnel.Inbound{From: phone, Text: "wait what"}))

	assert.Equal(t, 2, h.messages.inbound())
}
