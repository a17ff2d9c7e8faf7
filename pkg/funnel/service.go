// Package funnel drives each lead through the verification lifecycle:
// awaiting_done -> awaiting_proof -> verified, strictly forward. It is the only
// caller of the rotation coordinator.
package funnel

import (
	"context"
	"errors"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/internal/tracing"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/media"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories"
	"github.com/Ramsey-B/clover/pkg/rotation"
	"github.com/Ramsey-B/clover/pkg/sms"
)

// RotationCoordinator is the slice of the coordinator the funnel consumes. Each
// lead triggers Assign exactly once (at creation) and RecordCompletion exactly
// once (at verification).
type RotationCoordinator interface {
	Assign(ctx context.Context) (*rotation.Assignment, error)
	RecordCompletion(ctx context.Context, linkID uuid.UUID) (*rotation.CompletionResult, error)
}

// MediaStore fetches, persists and signs proof media
type MediaStore interface {
	FetchRemote(ctx context.Context, ref string) ([]byte, string, error)
	Save(ctx context.Context, phone string, body []byte, contentType string) (string, error)
	SignURL(key string) string
}

// EventEmitter publishes funnel lifecycle events
type EventEmitter interface {
	Emit(ctx context.Context, event events.FunnelEvent) error
}

// Templates holds the user-facing message texts. {{LINK}}, {{PHONE}}, {{HANDLE}}
// and {{URL}} placeholders are replaced at send time.
type Templates struct {
	Intro        string
	AskProof     string
	ReminderDone string
	ReminderMMS  string
	Verified     string
	Resend       string
	AllSet       string
	Unknown      string
	Operator     string
}

// Inbound is the normalized inbound-message envelope handed over by the webhook
type Inbound struct {
	From     string
	Text     string
	HasMedia bool
	MediaRef string
}

// Service implements the lead verification state machine
type Service struct {
	coordinator   RotationCoordinator
	leads         repositories.LeadRepo
	links         repositories.LinkRepo
	messages      repositories.MessageRepo
	verifications repositories.VerificationRepo
	media         MediaStore
	sender        sms.Sender
	emitter       EventEmitter
	logger        ectologger.Logger
	templates     Templates
	keyword       string
	operatorPhone string
}

// NewService creates the funnel service
func NewService(
	coordinator RotationCoordinator,
	leads repositories.LeadRepo,
	links repositories.LinkRepo,
	messages repositories.MessageRepo,
	verifications repositories.VerificationRepo,
	mediaStore MediaStore,
	sender sms.Sender,
	emitter EventEmitter,
	logger ectologger.Logger,
	templates Templates,
	keyword string,
	operatorPhone string,
) *Service {
	return &Service{
		coordinator:   coordinator,
		leads:         leads,
		links:         links,
		messages:      messages,
		verifications: verifications,
		media:         mediaStore,
		sender:        sender,
		emitter:       emitter,
		logger:        logger,
		templates:     templates,
		keyword:       strings.ToUpper(strings.TrimSpace(keyword)),
		operatorPhone: operatorPhone,
	}
}

// RegisterLead handles first contact: assigns a link, creates the lead in
// awaiting_done and sends the intro text.
func (s *Service) RegisterLead(ctx context.Context, phone, handle string) (*models.Lead, error) {
	ctx, span := tracing.StartSpan(ctx, "funnel.Service.RegisterLead")
	defer span.End()

	assignment, err := s.coordinator.Assign(ctx)
	if err != nil {
		return nil, err
	}

	lead := &models.Lead{
		ID:             uuid.New(),
		Phone:          phone,
		Handle:         handle,
		AssignedLinkID: assignment.LinkID,
		State:          models.LeadStateAwaitingDone,
	}
	if err := s.leads.Create(ctx, lead); err != nil {
		return nil, err
	}

	s.emit(ctx, events.FunnelEvent{
		EventType: events.EventLeadCreated,
		LeadID:    lead.ID,
		Phone:     lead.Phone,
		LinkID:    lead.AssignedLinkID,
	})

	intro := render(s.templates.Intro, map[string]string{"{{LINK}}": assignment.URL})
	s.sendAndLog(ctx, phone, intro, nil)

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"lead_id": lead.ID,
		"link_id": lead.AssignedLinkID,
	}).Info("registered lead")
	return lead, nil
}

// HandleInbound routes one inbound message through the transition table. The
// return value reflects handling faults only; every recognized situation ends in
// a reply to the sender, not an error.
func (s *Service) HandleInbound(ctx context.Context, in Inbound) error {
	ctx, span := tracing.StartSpan(ctx, "funnel.Service.HandleInbound")
	defer span.End()

	lead, err := s.leads.GetLatestByPhone(ctx, in.From)
	if err != nil {
		return err
	}

	if lead == nil {
		// unknown sender: guide them to sign up, no lead and no message rows
		metrics.WebhookEventsTotal.WithLabelValues("unknown_sender").Inc()
		s.sender.Send(ctx, in.From, s.templates.Unknown, nil)
		return nil
	}

	if err := s.messages.Append(ctx, &models.Message{
		Phone:     in.From,
		Direction: models.MessageDirectionInbound,
		Text:      in.Text,
		HasMedia:  in.HasMedia,
	}); err != nil {
		return err
	}

	normalized := strings.ToUpper(strings.TrimSpace(in.Text))

	switch {
	case normalized == s.keyword && lead.State == models.LeadStateAwaitingDone:
		return s.handleCompletionClaim(ctx, lead)
	case in.HasMedia && lead.State == models.LeadStateAwaitingProof:
		return s.handleProof(ctx, lead, in)
	default:
		return s.handleReminder(ctx, lead)
	}
}

func (s *Service) handleCompletionClaim(ctx context.Context, lead *models.Lead) error {
	if !lead.State.CanAdvanceTo(models.LeadStateAwaitingProof) {
		return s.handleReminder(ctx, lead)
	}

	if err := s.leads.UpdateState(ctx, lead.ID, models.LeadStateAwaitingProof); err != nil {
		return err
	}

	metrics.WebhookEventsTotal.WithLabelValues("completion_claim").Inc()
	s.sendAndLog(ctx, lead.Phone, s.templates.AskProof, nil)
	return nil
}

func (s *Service) handleProof(ctx context.Context, lead *models.Lead, in Inbound) error {
	body, contentType, err := s.media.FetchRemote(ctx, in.MediaRef)
	if err != nil {
		if errors.Is(err, media.ErrFetchFailed) {
			// recoverable: stay in awaiting_proof and ask for a resend
			metrics.WebhookEventsTotal.WithLabelValues("proof_retry").Inc()
			s.sendAndLog(ctx, lead.Phone, s.templates.Resend, nil)
			return nil
		}
		return err
	}

	key, err := s.media.Save(ctx, lead.Phone, body, contentType)
	if err != nil {
		return err
	}

	result, err := s.coordinator.RecordCompletion(ctx, lead.AssignedLinkID)
	if err != nil && !errors.Is(err, rotation.ErrLinkNotFound) {
		// the increment aborted cleanly; keep the lead in awaiting_proof so the
		// next submission retries the whole step
		return err
	}
	if errors.Is(err, rotation.ErrLinkNotFound) {
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"lead_id": lead.ID,
			"link_id": lead.AssignedLinkID,
		}).Warn("completion referenced a missing link, continuing without rotation")
	}

	signedURL := s.media.SignURL(key)

	if err := s.verifications.Create(ctx, &models.Verification{
		LeadID:   lead.ID,
		MediaKey: key,
		MediaURL: signedURL,
	}); err != nil {
		return err
	}

	if err := s.leads.UpdateState(ctx, lead.ID, models.LeadStateVerified); err != nil {
		return err
	}

	metrics.WebhookEventsTotal.WithLabelValues("proof_accepted").Inc()
	metrics.LeadsVerifiedTotal.Inc()

	s.emit(ctx, events.FunnelEvent{
		EventType: events.EventLeadVerified,
		LeadID:    lead.ID,
		Phone:     lead.Phone,
		LinkID:    lead.AssignedLinkID,
	})
	if result != nil && result.Rotated {
		s.emit(ctx, events.FunnelEvent{
			EventType:     events.EventRotationAdvanced,
			LinkID:        lead.AssignedLinkID,
			NewActiveID:   result.NewActiveID,
			VerifiedCount: result.NewCount,
		})
	}

	s.sendAndLog(ctx, lead.Phone, s.templates.Verified, nil)
	s.notifyOperator(ctx, lead, signedURL)

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"lead_id":   lead.ID,
		"media_key": key,
	}).Info("lead verified")
	return nil
}

func (s *Service) handleReminder(ctx context.Context, lead *models.Lead) error {
	metrics.WebhookEventsTotal.WithLabelValues("reminder").Inc()

	var text string
	switch lead.State {
	case models.LeadStateAwaitingDone:
		text = s.templates.ReminderDone
	case models.LeadStateAwaitingProof:
		text = s.templates.ReminderMMS
	default:
		text = s.templates.AllSet
	}

	s.sendAndLog(ctx, lead.Phone, text, nil)
	return nil
}

// notifyOperator is best-effort; a missing link row only blanks the link
// placeholder, it never unwinds the verification.
func (s *Service) notifyOperator(ctx context.Context, lead *models.Lead, signedURL string) {
	if s.operatorPhone == "" {
		return
	}

	linkURL := ""
	if link, err := s.links.GetByID(ctx, lead.AssignedLinkID); err == nil {
		linkURL = link.URL
	}

	text := render(s.templates.Operator, map[string]string{
		"{{PHONE}}":  lead.Phone,
		"{{HANDLE}}": lead.Handle,
		"{{LINK}}":   linkURL,
		"{{URL}}":    signedURL,
	})

	s.sendAndLog(ctx, s.operatorPhone, text, nil)
}

// sendAndLog delivers a text best-effort and appends it to the message log. A
// failed append is logged but does not fail the event, the log is advisory for
// outbound traffic.
func (s *Service) sendAndLog(ctx context.Context, phone, text string, mediaURLs []string) {
	s.sender.Send(ctx, phone, text, mediaURLs)

	if err := s.messages.Append(ctx, &models.Message{
		Phone:     phone,
		Direction: models.MessageDirectionOutbound,
		Text:      text,
		HasMedia:  len(mediaURLs) > 0,
	}); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("failed to log outbound message")
	}
}

func (s *Service) emit(ctx context.Context, event events.FunnelEvent) {
	if s.emitter == nil {
		return
	}
	if err := s.emitter.Emit(ctx, event); err != nil {
		s.logger.WithContext(ctx).WithError(err).Errorf("failed to emit %s event", event.EventType)
	}
}

func render(template string, values map[string]string) string {
	out := template
	for placeholder, value := range values {
		out = strings.ReplaceAll(out, placeholder, value)
	}
	return out
}
