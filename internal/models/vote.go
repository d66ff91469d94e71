package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Vote is one ballot cast for one option of one poll. Rows are append-only:
// votes are never mutated or deleted.
type Vote struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	PollID   string `gorm:"type:uuid;not null;index" json:"poll_id"`
	OptionID string `gorm:"type:uuid;not null;index" json:"option_id"`

	// VoterToken is an opaque client-supplied hint. It is stored as-is and
	// never used to accept or reject a vote.
	VoterToken *string `gorm:"index" json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (v *Vote) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return nil
}
