package models

import (
	"strings"
	"time"
)

// DeviceToken represents a user device that can receive push notifications.
// Tokens are owned by the device token store; the core only reads active
// tokens and requests deactivation when a provider reports one as
// permanently invalid.
type DeviceToken struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"index" json:"user_id"`
	Token     string    `gorm:"index" json:"token"`
	Platform  string    `json:"platform"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (DeviceToken) TableName() string {
	return "device_tokens"
}

// SupportsPush reports whether the platform is push-addressable.
func SupportsPush(platform string) bool {
	switch strings.ToLower(platform) {
	case "android", "ios", "web":
		return true
	default:
		return false
	}
}
