package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Admin represents an account that owns polls. Accounts are created on
// registration and become usable once the email address is verified through
// the OTP flow.
type Admin struct {
	ID    string `gorm:"primaryKey;type:uuid" json:"id"`
	Email string `gorm:"uniqueIndex;not null" json:"email"`
	Name  string `gorm:"not null" json:"name"`

	// EmailVerifiedAt stays nil until the first successful OTP verification.
	EmailVerifiedAt *time.Time `json:"email_verified_at"`

	// HashedOTP holds the sha256 hex digest of the last issued code. Both
	// fields are cleared once the code is consumed.
	HashedOTP    *string    `json:"-"`
	OTPExpiresAt *time.Time `json:"-"`

	Polls []Poll `gorm:"foreignKey:AdminID" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Verified reports whether the admin completed email verification.
func (a *Admin) Verified() bool {
	return a != nil && a.EmailVerifiedAt != nil
}

// BeforeCreate ensures a UUID is present before persisting.
func (a *Admin) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
