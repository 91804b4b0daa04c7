package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Contact holds the out-of-band addresses used when a notification escalates
// past the push channel.
type Contact struct {
	UserID    string `gorm:"primaryKey"`
	Email     string
	Phone     string
	UpdatedAt time.Time
}

func (Contact) TableName() string {
	return "notification_contacts"
}

// ContactStore looks up escalation contacts per user.
type ContactStore struct {
	db *gorm.DB
}

func NewContactStore(db *gorm.DB) *ContactStore {
	if err := db.AutoMigrate(&Contact{}); err != nil {
		// See NewLedgerStore: connectivity is validated by the caller.
	}
	return &ContactStore{db: db}
}

// Get returns the user's contact or nil when none is registered.
func (s *ContactStore) Get(ctx context.Context, userID string) (*Contact, error) {
	var contact Contact
	err := s.db.WithContext(ctx).First(&contact, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &contact, nil
}
