package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/OdannysDeLaCruz/intrabb-backend-sub000/internal/models"
)

// TokenStore reads a user's push-addressable device tokens and deactivates
// the ones a provider reports as permanently invalid.
type TokenStore struct {
	db *gorm.DB
}

func NewTokenStore(db *gorm.DB) *TokenStore {
	if err := db.AutoMigrate(&models.DeviceToken{}); err != nil {
		// See NewLedgerStore: connectivity is validated by the caller.
	}
	return &TokenStore{db: db}
}

// ActiveTokens returns the user's active tokens.
func (s *TokenStore) ActiveTokens(ctx context.Context, userID string) ([]models.DeviceToken, error) {
	var tokens []models.DeviceToken
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND active = ?", userID, true).
		Find(&tokens).Error
	return tokens, err
}

// Deactivate marks every row carrying the token value as inactive. Matching
// by value keeps the write safe when a token appears under multiple users.
func (s *TokenStore) Deactivate(ctx context.Context, token string) error {
	return s.db.WithContext(ctx).Model(&models.DeviceToken{}).
		Where("token = ?", token).
		Update("active", false).Error
}
