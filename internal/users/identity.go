package users

import (
	"strings"
	"time"
)

// Identity maps a provider-specific login to the canonical guest identifier
// used as the RSVP storage key.
type Identity struct {
	Provider    string    `gorm:"column:provider;primaryKey;size:32;not null"`
	Subject     string    `gorm:"column:subject;primaryKey;size:190;not null"`
	GuestID     string    `gorm:"column:guest_id;size:190;not null;index"`
	Email       string    `gorm:"column:user_email;size:320"`
	DisplayName string    `gorm:"column:user_display_name;size:320"`
	LastSeenAt  time.Time `gorm:"column:last_seen_at;autoUpdateTime"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing guest identities.
func (Identity) TableName() string {
	return "guest_identities"
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
