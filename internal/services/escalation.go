package services

import (
	"context"
	"log/slog"

	"github.com/OdannysDeLaCruz/intrabb-backend-sub000/internal/models"
	"github.com/OdannysDeLaCruz/intrabb-backend-sub000/internal/repository"
	"github.com/OdannysDeLaCruz/intrabb-backend-sub000/pkg/metrics"
)

const (
	smsTemplate          = "{{title}}: {{body}}"
	emailSubjectTemplate = "{{title}}"
	emailBodyTemplate    = "<p>{{body}}</p>"
)

// SMSSender delivers an out-of-band text message.
type SMSSender interface {
	Send(ctx context.Context, phone, text string) error
}

// EmailSender delivers an out-of-band email.
type EmailSender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// ContactDirectory resolves a user's escalation addresses.
type ContactDirectory interface {
	Get(ctx context.Context, userID string) (*repository.Contact, error)
}

// DigestAppender accumulates opportunity notifications for batched delivery.
type DigestAppender interface {
	Append(ctx context.Context, userID string, entry repository.DigestEntry) error
}

// Resolver closes a failure record once an out-of-band channel reached the
// user. Backed by the ledger manager.
type Resolver interface {
	Resolve(ctx context.Context, recordID, method string) error
}

// EscalationHandler is the terminal station for notifications that exhausted
// their retries. It routes by category: critical-flagged categories go out of
// band (SMS, then email), opportunity categories land in the user's digest,
// and anything else is logged for operator review. It never retries delivery
// and never reports failure back to the retry worker.
type EscalationHandler struct {
	contacts    ContactDirectory
	sms         SMSSender
	email       EmailSender
	digests     DigestAppender
	resolver    Resolver
	critical    map[string]struct{}
	opportunity map[string]struct{}
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func NewEscalationHandler(
	contacts ContactDirectory,
	sms SMSSender,
	email EmailSender,
	digests DigestAppender,
	resolver Resolver,
	criticalCategories, opportunityCategories []string,
	m *metrics.Metrics,
	logger *slog.Logger,
) *EscalationHandler {
	return &EscalationHandler{
		contacts:    contacts,
		sms:         sms,
		email:       email,
		digests:     digests,
		resolver:    resolver,
		critical:    toSet(criticalCategories),
		opportunity: toSet(opportunityCategories),
		metrics:     m,
		logger:      logger,
	}
}

// Escalate routes a permanently failed notification. All errors are absorbed
// here; the record stays frozen either way.
func (h *EscalationHandler) Escalate(ctx context.Context, rec *models.FailureRecord, payload models.NotificationPayload) {
	h.metrics.IncEscalated()
	log := h.logger.With(
		slog.String("record_id", rec.ID),
		slog.String("user_id", rec.UserID),
		slog.String("event", rec.Event),
		slog.String("category", payload.Category),
	)

	switch {
	case h.isCritical(rec, payload):
		h.escalateOutOfBand(ctx, rec, payload, log)
	case h.isOpportunity(payload):
		h.escalateToDigest(ctx, rec, payload, log)
	default:
		log.Warn("notification exhausted retries, needs operator review",
			slog.String("last_error", rec.LastError))
	}
}

func (h *EscalationHandler) isCritical(rec *models.FailureRecord, payload models.NotificationPayload) bool {
	if rec.Priority == models.PriorityCritical {
		return true
	}
	_, ok := h.critical[payload.Category]
	return ok
}

func (h *EscalationHandler) isOpportunity(payload models.NotificationPayload) bool {
	_, ok := h.opportunity[payload.Category]
	return ok
}

func (h *EscalationHandler) escalateOutOfBand(ctx context.Context, rec *models.FailureRecord, payload models.NotificationPayload, log *slog.Logger) {
	contact, err := h.contacts.Get(ctx, rec.UserID)
	if err != nil {
		log.Error("contact lookup failed", slog.Any("error", err))
		return
	}
	if contact == nil {
		log.Warn("no escalation contact registered")
		return
	}

	vars := map[string]string{
		"title": payload.Title,
		"body":  payload.Body,
	}

	if contact.Phone != "" {
		err := h.sms.Send(ctx, contact.Phone, RenderMessage(smsTemplate, vars))
		if err == nil {
			h.resolveRecord(ctx, rec.ID, models.MethodSMS, log)
			log.Info("escalated via sms")
			return
		}
		log.Warn("sms escalation failed", slog.Any("error", err))
	}

	if contact.Email != "" {
		subject := RenderMessage(emailSubjectTemplate, vars)
		body := RenderMessage(emailBodyTemplate, vars)
		err := h.email.Send(ctx, contact.Email, subject, body)
		if err == nil {
			h.resolveRecord(ctx, rec.ID, models.MethodEmail, log)
			log.Info("escalated via email")
			return
		}
		log.Warn("email escalation failed", slog.Any("error", err))
	}

	log.Warn("out-of-band escalation exhausted every channel")
}

func (h *EscalationHandler) escalateToDigest(ctx context.Context, rec *models.FailureRecord, payload models.NotificationPayload, log *slog.Logger) {
	entry := repository.DigestEntry{
		Event:    rec.Event,
		Category: payload.Category,
		Title:    payload.Title,
		Body:     payload.Body,
		QueuedAt: rec.CreatedAt,
	}
	if err := h.digests.Append(ctx, rec.UserID, entry); err != nil {
		log.Error("digest append failed", slog.Any("error", err))
		return
	}
	log.Info("escalated to digest")
}

func (h *EscalationHandler) resolveRecord(ctx context.Context, recordID, method string, log *slog.Logger) {
	if err := h.resolver.Resolve(ctx, recordID, method); err != nil {
		log.Error("failed to resolve escalated record",
			slog.String("method", method), slog.Any("error", err))
	}
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
