package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	iauth "github.com/pollhive/pollhive/internal/auth"
	"github.com/pollhive/pollhive/internal/models"
	"github.com/pollhive/pollhive/internal/services"
	"github.com/pollhive/pollhive/pkg/logger"
)

const (
	defaultAuditRetentionDays = 90
	defaultOTPSpec            = "@hourly"
	defaultAuditSpec          = "@daily"
	defaultTokenSpec          = "@hourly"

	// staleAdminAge is how long a never-verified admin row may linger after
	// its last OTP expired before it is removed outright.
	staleAdminAge = 7 * 24 * time.Hour
)

// Cleaner coordinates background maintenance tasks: purging expired OTP
// state, pruning stale audit logs, and sweeping spent exchange tokens.
type Cleaner struct {
	db        *gorm.DB
	tokens    *iauth.TokenStore
	audit     *services.AuditService
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	enabled   bool
	retention int

	otpSchedule   string
	auditSchedule string
	tokenSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for scheduling and cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithAuditRetentionDays adjusts how long audit logs are retained before cleanup.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithOTPSchedule overrides the cron specification for OTP cleanup.
func WithOTPSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.otpSchedule = spec
		}
	}
}

// WithAuditSchedule overrides the cron specification for audit retention enforcement.
func WithAuditSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.auditSchedule = spec
		}
	}
}

// WithTokenSchedule overrides the cron specification for exchange token sweeps.
func WithTokenSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.tokenSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. Any nil dependency
// results in the corresponding cleanup job being skipped.
func NewCleaner(db *gorm.DB, tokens *iauth.TokenStore, audit *services.AuditService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		db:            db,
		tokens:        tokens,
		audit:         audit,
		now:           time.Now,
		retention:     defaultAuditRetentionDays,
		otpSchedule:   defaultOTPSpec,
		auditSchedule: defaultAuditSpec,
		tokenSchedule: defaultTokenSpec,
		log:           logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	cleaner.enabled = cleaner.db != nil || cleaner.audit != nil || cleaner.tokens != nil

	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it if at
// least one cleanup is enabled.
func (c *Cleaner) Start() error {
	if !c.enabled {
		return nil
	}

	if c.db != nil {
		if _, err := c.cron.AddFunc(c.otpSchedule, func() {
			ctx := context.Background()
			if _, err := CleanupExpiredOTPs(ctx, c.db, c.now()); err != nil {
				c.log.Warn("otp cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.audit != nil && c.retention > 0 {
		if _, err := c.cron.AddFunc(c.auditSchedule, func() {
			ctx := context.Background()
			if _, err := c.audit.CleanupOlderThan(ctx, c.retention); err != nil {
				c.log.Warn("audit cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.tokens != nil {
		if _, err := c.cron.AddFunc(c.tokenSchedule, func() {
			c.tokens.Purge()
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Primarily
// used in tests and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.db != nil {
		if _, err := CleanupExpiredOTPs(ctx, c.db, c.now()); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.audit != nil && c.retention > 0 {
		if _, err := c.audit.CleanupOlderThan(ctx, c.retention); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.tokens != nil {
		c.tokens.Purge()
	}

	return errs
}

// OTPCleanupStats captures the number of records touched by an OTP sweep.
type OTPCleanupStats struct {
	ClearedCodes  int64
	RemovedAdmins int64
}

// CleanupExpiredOTPs clears expired verification codes and removes admin rows
// that never completed verification and have been stale for a week.
func CleanupExpiredOTPs(ctx context.Context, db *gorm.DB, now time.Time) (OTPCleanupStats, error) {
	if db == nil {
		return OTPCleanupStats{}, errors.New("cleanup otps: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	stats := OTPCleanupStats{}

	result := db.WithContext(ctx).
		Model(&models.Admin{}).
		Where("hashed_otp IS NOT NULL AND otp_expires_at < ?", now).
		Updates(map[string]any{"hashed_otp": nil, "otp_expires_at": nil})
	if result.Error != nil {
		return stats, fmt.Errorf("cleanup otps: clear expired codes: %w", result.Error)
	}
	stats.ClearedCodes = result.RowsAffected

	cutoff := now.Add(-staleAdminAge)
	result = db.WithContext(ctx).
		Where("email_verified_at IS NULL AND created_at < ?", cutoff).
		Delete(&models.Admin{})
	if result.Error != nil {
		return stats, fmt.Errorf("cleanup otps: remove stale admins: %w", result.Error)
	}
	stats.RemovedAdmins = result.RowsAffected

	return stats, nil
}
