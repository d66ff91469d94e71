package services

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/pollhive/pollhive/internal/models"
	"github.com/pollhive/pollhive/pkg/crypto"
	"github.com/pollhive/pollhive/pkg/mail"
)

const (
	defaultOTPExpiry = 10 * time.Minute
	defaultOTPDigits = 6
)

var (
	// ErrEmailRegistered indicates a verified admin already uses the email.
	ErrEmailRegistered = errors.New("auth service: email already registered")
	// ErrAdminNotFound indicates no verified account exists for the email.
	ErrAdminNotFound = errors.New("auth service: account not found")
	// ErrInvalidOTP indicates the submitted code does not match.
	ErrInvalidOTP = errors.New("auth service: invalid code")
	// ErrOTPExpired indicates the code is past its validity window.
	ErrOTPExpired = errors.New("auth service: otp expired")
)

// AuthOption customises the AuthService.
type AuthOption func(*AuthService)

// WithOTPExpiry overrides the code lifetime.
func WithOTPExpiry(d time.Duration) AuthOption {
	return func(s *AuthService) {
		if d > 0 {
			s.otpExpiry = d
		}
	}
}

// WithOTPDigits adjusts the number of digits in generated codes.
func WithOTPDigits(digits int) AuthOption {
	return func(s *AuthService) {
		if digits > 0 {
			s.otpDigits = digits
		}
	}
}

// WithClock injects a custom time source.
func WithClock(clock func() time.Time) AuthOption {
	return func(s *AuthService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// AuthService manages admin registration and the email OTP login flow. Codes
// are stored hashed and expire after a short window; a successful
// verification marks the admin verified and clears the OTP fields.
type AuthService struct {
	db        *gorm.DB
	mailer    mail.Mailer
	otpExpiry time.Duration
	otpDigits int
	now       func() time.Time
}

// NewAuthService constructs an auth service with the provided dependencies.
func NewAuthService(db *gorm.DB, mailer mail.Mailer, opts ...AuthOption) (*AuthService, error) {
	if db == nil {
		return nil, errors.New("auth service: db is required")
	}

	service := &AuthService{
		db:        db,
		mailer:    mailer,
		otpExpiry: defaultOTPExpiry,
		otpDigits: defaultOTPDigits,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// Register creates an unverified admin (or refreshes the pending one) and
// dispatches a verification code. A verified admin on the same email yields
// ErrEmailRegistered.
func (s *AuthService) Register(ctx context.Context, email, name string) error {
	ctx = ensuredContext(ctx)

	email = normaliseEmail(email)
	name = strings.TrimSpace(name)
	if email == "" {
		return errors.New("auth service: email is required")
	}
	if name == "" {
		return errors.New("auth service: name is required")
	}

	existing, err := s.findByEmail(ctx, email)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	if existing != nil && existing.Verified() {
		return ErrEmailRegistered
	}

	if existing != nil {
		return s.issueOTP(ctx, existing)
	}

	admin := models.Admin{Email: email, Name: name}
	if err := s.db.WithContext(ctx).Create(&admin).Error; err != nil {
		if isUniqueConstraintError(err) {
			return ErrEmailRegistered
		}
		return fmt.Errorf("auth service: create admin: %w", err)
	}

	return s.issueOTP(ctx, &admin)
}

// Login issues a fresh code for an existing verified admin.
func (s *AuthService) Login(ctx context.Context, email string) error {
	ctx = ensuredContext(ctx)

	admin, err := s.findByEmail(ctx, normaliseEmail(email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAdminNotFound
		}
		return err
	}
	if !admin.Verified() {
		return ErrAdminNotFound
	}

	return s.issueOTP(ctx, admin)
}

// ResendOTP reissues a code for any known admin, verified or not.
func (s *AuthService) ResendOTP(ctx context.Context, email string) error {
	ctx = ensuredContext(ctx)

	admin, err := s.findByEmail(ctx, normaliseEmail(email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAdminNotFound
		}
		return err
	}

	return s.issueOTP(ctx, admin)
}

// VerifyOTP checks the submitted code against the stored hash and expiry. On
// success the admin is marked verified and the OTP fields are cleared.
func (s *AuthService) VerifyOTP(ctx context.Context, email, code string) (*models.Admin, error) {
	ctx = ensuredContext(ctx)

	admin, err := s.findByEmail(ctx, normaliseEmail(email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidOTP
		}
		return nil, err
	}

	now := s.now()
	if admin.OTPExpiresAt == nil || now.After(*admin.OTPExpiresAt) {
		return nil, ErrOTPExpired
	}

	code = strings.TrimSpace(code)
	if admin.HashedOTP == nil || subtle.ConstantTimeCompare([]byte(hashOTP(code)), []byte(*admin.HashedOTP)) != 1 {
		return nil, ErrInvalidOTP
	}

	if err := s.db.WithContext(ctx).
		Model(admin).
		Updates(map[string]any{
			"email_verified_at": now,
			"hashed_otp":        nil,
			"otp_expires_at":    nil,
		}).Error; err != nil {
		return nil, fmt.Errorf("auth service: mark verified: %w", err)
	}

	admin.EmailVerifiedAt = &now
	admin.HashedOTP = nil
	admin.OTPExpiresAt = nil
	return admin, nil
}

// GetAdmin fetches an admin by id.
func (s *AuthService) GetAdmin(ctx context.Context, id string) (*models.Admin, error) {
	ctx = ensuredContext(ctx)

	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrAdminNotFound
	}

	var admin models.Admin
	if err := s.db.WithContext(ctx).First(&admin, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAdminNotFound
		}
		return nil, fmt.Errorf("auth service: find admin: %w", err)
	}
	return &admin, nil
}

func (s *AuthService) issueOTP(ctx context.Context, admin *models.Admin) error {
	code, err := crypto.GenerateOTP(s.otpDigits)
	if err != nil {
		return fmt.Errorf("auth service: generate otp: %w", err)
	}

	hashed := hashOTP(code)
	expiresAt := s.now().Add(s.otpExpiry)

	if err := s.db.WithContext(ctx).
		Model(admin).
		Updates(map[string]any{
			"hashed_otp":     hashed,
			"otp_expires_at": expiresAt,
		}).Error; err != nil {
		return fmt.Errorf("auth service: store otp: %w", err)
	}

	if s.mailer != nil {
		message := mail.Message{
			To:      []string{admin.Email},
			Subject: "Your verification code",
			Body:    fmt.Sprintf("Your code is: %s. It expires in %d minutes.\n", code, int(s.otpExpiry.Minutes())),
		}
		if mailErr := s.mailer.Send(ctx, message); mailErr != nil && !errors.Is(mailErr, mail.ErrSMTPDisabled) {
			return fmt.Errorf("auth service: send otp email: %w", mailErr)
		}
	}

	return nil
}

func (s *AuthService) findByEmail(ctx context.Context, email string) (*models.Admin, error) {
	if email == "" {
		return nil, gorm.ErrRecordNotFound
	}

	var admin models.Admin
	if err := s.db.WithContext(ctx).First(&admin, "email = ?", email).Error; err != nil {
		return nil, err
	}
	return &admin, nil
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func hashOTP(code string) string {
	digest := sha256.Sum256([]byte(code))
	return hex.EncodeToString(digest[:])
}
