package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OdannysDeLaCruz/intrabb-backend-sub000/internal/models"
	"github.com/OdannysDeLaCruz/intrabb-backend-sub000/internal/repository"
	"github.com/OdannysDeLaCruz/intrabb-backend-sub000/pkg/metrics"
)

type fakeContacts struct {
	contact *repository.Contact
	err     error
}

func (f *fakeContacts) Get(ctx context.Context, userID string) (*repository.Contact, error) {
	return f.contact, f.err
}

type fakeSMS struct {
	err   error
	sent  []string
	texts []string
}

func (f *fakeSMS) Send(ctx context.Context, phone, text string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, phone)
	f.texts = append(f.texts, text)
	return nil
}

type fakeEmail struct {
	err      error
	sent     []string
	subjects []string
}

func (f *fakeEmail) Send(ctx context.Context, to, subject, htmlBody string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to)
	f.subjects = append(f.subjects, subject)
	return nil
}

type fakeDigest struct {
	entries map[string][]repository.DigestEntry
}

func (f *fakeDigest) Append(ctx context.Context, userID string, entry repository.DigestEntry) error {
	if f.entries == nil {
		f.entries = make(map[string][]repository.DigestEntry)
	}
	f.entries[userID] = append(f.entries[userID], entry)
	return nil
}

type fakeResolver struct {
	resolved map[string]string
}

func (f *fakeResolver) Resolve(ctx context.Context, recordID, method string) error {
	if f.resolved == nil {
		f.resolved = make(map[string]string)
	}
	if _, ok := f.resolved[recordID]; !ok {
		f.resolved[recordID] = method
	}
	return nil
}

func newTestEscalation(contacts ContactDirectory, sms SMSSender, email EmailSender, digests DigestAppender, resolver Resolver) *EscalationHandler {
	return NewEscalationHandler(
		contacts, sms, email, digests, resolver,
		[]string{"quotation_accepted", "appointment_cancelled"},
		[]string{"new_request", "new_job_offer"},
		metrics.New(), testLogger(),
	)
}

func exhaustedRecord(category string, priority models.Priority) (*models.FailureRecord, models.NotificationPayload) {
	payload := models.NotificationPayload{
		Title:    "Appointment update",
		Body:     "Your appointment was cancelled",
		Category: category,
	}
	snapshot, _ := models.EncodePayload(payload)
	rec := &models.FailureRecord{
		ID:          "rec-1",
		UserID:      "u1",
		Event:       "appointment.cancelled",
		Priority:    priority,
		Payload:     snapshot,
		Attempt:     3,
		MaxAttempts: 3,
		LastError:   "channel failure: fcm rejected all 1 tokens",
		CreatedAt:   time.Now(),
	}
	return rec, payload
}

func TestEscalateCriticalCategoryViaSMS(t *testing.T) {
	sms := &fakeSMS{}
	email := &fakeEmail{}
	resolver := &fakeResolver{}
	contacts := &fakeContacts{contact: &repository.Contact{UserID: "u1", Phone: "+573001112233", Email: "u1@example.com"}}
	h := newTestEscalation(contacts, sms, email, &fakeDigest{}, resolver)

	rec, payload := exhaustedRecord("appointment_cancelled", models.PriorityNormal)
	h.Escalate(context.Background(), rec, payload)

	require.Len(t, sms.sent, 1)
	assert.Equal(t, "+573001112233", sms.sent[0])
	assert.Equal(t, "Appointment update: Your appointment was cancelled", sms.texts[0])
	assert.Empty(t, email.sent, "email is only the fallback")
	assert.Equal(t, models.MethodSMS, resolver.resolved["rec-1"])
}

func TestEscalateFallsBackToEmail(t *testing.T) {
	sms := &fakeSMS{err: fmt.Errorf("gateway timeout")}
	email := &fakeEmail{}
	resolver := &fakeResolver{}
	contacts := &fakeContacts{contact: &repository.Contact{UserID: "u1", Phone: "+57300", Email: "u1@example.com"}}
	h := newTestEscalation(contacts, sms, email, &fakeDigest{}, resolver)

	rec, payload := exhaustedRecord("appointment_cancelled", models.PriorityNormal)
	h.Escalate(context.Background(), rec, payload)

	require.Len(t, email.sent, 1)
	assert.Equal(t, "u1@example.com", email.sent[0])
	assert.Equal(t, "Appointment update", email.subjects[0])
	assert.Equal(t, models.MethodEmail, resolver.resolved["rec-1"])
}

func TestEscalateCriticalPriorityWithoutCriticalCategory(t *testing.T) {
	sms := &fakeSMS{}
	resolver := &fakeResolver{}
	contacts := &fakeContacts{contact: &repository.Contact{UserID: "u1", Phone: "+57300"}}
	h := newTestEscalation(contacts, sms, &fakeEmail{}, &fakeDigest{}, resolver)

	rec, payload := exhaustedRecord("some_other_category", models.PriorityCritical)
	h.Escalate(context.Background(), rec, payload)

	assert.Len(t, sms.sent, 1, "critical priority goes out of band regardless of category")
}

func TestEscalateOpportunityToDigest(t *testing.T) {
	digest := &fakeDigest{}
	sms := &fakeSMS{}
	resolver := &fakeResolver{}
	h := newTestEscalation(&fakeContacts{}, sms, &fakeEmail{}, digest, resolver)

	rec, payload := exhaustedRecord("new_job_offer", models.PriorityNormal)
	h.Escalate(context.Background(), rec, payload)

	require.Len(t, digest.entries["u1"], 1)
	entry := digest.entries["u1"][0]
	assert.Equal(t, "new_job_offer", entry.Category)
	assert.Equal(t, "appointment.cancelled", entry.Event)
	assert.Empty(t, sms.sent)
	assert.Empty(t, resolver.resolved, "digest escalation leaves the record unresolved")
}

func TestEscalateUnknownCategoryOnlyLogs(t *testing.T) {
	digest := &fakeDigest{}
	sms := &fakeSMS{}
	email := &fakeEmail{}
	resolver := &fakeResolver{}
	h := newTestEscalation(&fakeContacts{}, sms, email, digest, resolver)

	rec, payload := exhaustedRecord("mystery_category", models.PriorityNormal)
	h.Escalate(context.Background(), rec, payload)

	assert.Empty(t, sms.sent)
	assert.Empty(t, email.sent)
	assert.Empty(t, digest.entries)
	assert.Empty(t, resolver.resolved)
}

func TestEscalateMissingContactDegradesToLog(t *testing.T) {
	sms := &fakeSMS{}
	h := newTestEscalation(&fakeContacts{contact: nil}, sms, &fakeEmail{}, &fakeDigest{}, &fakeResolver{})

	rec, payload := exhaustedRecord("appointment_cancelled", models.PriorityNormal)
	h.Escalate(context.Background(), rec, payload)

	assert.Empty(t, sms.sent)
}
