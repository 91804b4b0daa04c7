package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/OdannysDeLaCruz/intrabb-backend-sub000/internal/models"
)

// LedgerStore persists failure records. All mutation happens through the
// ledger manager; this type only translates its operations to SQL.
type LedgerStore struct {
	db *gorm.DB
}

func NewLedgerStore(db *gorm.DB) *LedgerStore {
	if err := db.AutoMigrate(&models.FailureRecord{}); err != nil {
		// AutoMigrate error is ignored here to keep constructor signature simple.
		// The caller is expected to have validated connectivity beforehand.
	}
	return &LedgerStore{db: db}
}

func (s *LedgerStore) Create(ctx context.Context, rec *models.FailureRecord) error {
	return s.db.WithContext(ctx).Create(rec).Error
}

// Get returns the record or nil when it no longer exists.
func (s *LedgerStore) Get(ctx context.Context, id string) (*models.FailureRecord, error) {
	var rec models.FailureRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateRetryState persists the outcome of a failed attempt in one write.
func (s *LedgerStore) UpdateRetryState(ctx context.Context, id string, attempt int, nextRetryAt time.Time, lastError string) error {
	return s.db.WithContext(ctx).Model(&models.FailureRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempt":       attempt,
			"next_retry_at": nextRetryAt,
			"last_error":    lastError,
		}).Error
}

// MarkResolved closes a record. The resolved guard makes the write
// first-writer-wins: a second call with a different method changes nothing.
func (s *LedgerStore) MarkResolved(ctx context.Context, id, method string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&models.FailureRecord{}).
		Where("id = ? AND resolved = ?", id, false).
		Updates(map[string]interface{}{
			"resolved":        true,
			"resolved_at":     at,
			"resolved_method": method,
		}).Error
}

// Due returns up to limit unresolved records whose retry time has passed,
// oldest first.
func (s *LedgerStore) Due(ctx context.Context, now time.Time, limit int) ([]models.FailureRecord, error) {
	var recs []models.FailureRecord
	err := s.db.WithContext(ctx).
		Where("resolved = ? AND next_retry_at <= ?", false, now).
		Order("next_retry_at asc").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}

// Counts reports resolved vs pending record totals.
func (s *LedgerStore) Counts(ctx context.Context) (resolved, pending int64, err error) {
	if err = s.db.WithContext(ctx).Model(&models.FailureRecord{}).
		Where("resolved = ?", true).Count(&resolved).Error; err != nil {
		return 0, 0, err
	}
	if err = s.db.WithContext(ctx).Model(&models.FailureRecord{}).
		Where("resolved = ?", false).Count(&pending).Error; err != nil {
		return 0, 0, err
	}
	return resolved, pending, nil
}

// CreatedSince counts records created after the cutoff.
func (s *LedgerStore) CreatedSince(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.FailureRecord{}).
		Where("created_at >= ?", cutoff).Count(&n).Error
	return n, err
}

// DeleteResolvedBefore removes resolved records older than the cutoff.
func (s *LedgerStore) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("resolved = ? AND created_at < ?", true, cutoff).
		Delete(&models.FailureRecord{})
	return res.RowsAffected, res.Error
}

// DeleteUnresolvedBefore removes never-resolved records older than the cutoff.
// This is the safety valve against unbounded ledger growth.
func (s *LedgerStore) DeleteUnresolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("resolved = ? AND created_at < ?", false, cutoff).
		Delete(&models.FailureRecord{})
	return res.RowsAffected, res.Error
}
