package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditLog records admin-facing actions (registration, verification, poll
// creation and closing) for operator visibility.
type AuditLog struct {
	ID       string  `gorm:"primaryKey;type:uuid" json:"id"`
	AdminID  *string `gorm:"type:uuid;index" json:"admin_id"`
	Admin    *Admin  `gorm:"foreignKey:AdminID" json:"admin,omitempty"`
	Action   string  `gorm:"not null;index" json:"action"`
	Resource string  `gorm:"index" json:"resource"`
	Result   string  `gorm:"not null" json:"result"`

	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
	Metadata  string `gorm:"type:json" json:"metadata"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
