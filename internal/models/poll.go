package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Question and option text limits enforced at creation time.
const (
	QuestionMaxLen   = 200
	OptionTextMaxLen = 100
	MinOptions       = 2
	MaxOptions       = 5
)

// Poll is a single question with a fixed set of options. The option set is
// established atomically at creation and never changes; the only mutation a
// poll ever sees is the one-way close transition (IsActive true -> false).
type Poll struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	Question string `gorm:"size:200;not null" json:"question"`
	IsActive bool   `gorm:"default:true;not null" json:"is_active"`

	AdminID string `gorm:"type:uuid;not null;index" json:"admin_id"`
	Admin   *Admin `gorm:"foreignKey:AdminID" json:"-"`

	Options []Option `gorm:"foreignKey:PollID" json:"options,omitempty"`
	Votes   []Vote   `gorm:"foreignKey:PollID" json:"-"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (p *Poll) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// Option is one selectable choice belonging to exactly one poll. Immutable
// after creation.
type Option struct {
	ID   string `gorm:"primaryKey;type:uuid" json:"id"`
	Text string `gorm:"size:100;not null" json:"text"`

	// Position preserves creation order; uuid primary keys carry no ordering.
	Position int `gorm:"not null" json:"position"`

	PollID string `gorm:"type:uuid;not null;index" json:"poll_id"`

	Votes []Vote `gorm:"foreignKey:OptionID" json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (o *Option) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}
