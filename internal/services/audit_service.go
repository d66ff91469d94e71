package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/pollhive/pollhive/internal/models"
)

// Audit actions recorded by the service.
const (
	AuditActionRegister   = "auth.register"
	AuditActionVerify     = "auth.verify"
	AuditActionPollCreate = "poll.create"
	AuditActionPollClose  = "poll.close"
)

// AuditService persists a trail of admin-facing actions.
type AuditService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewAuditService constructs an audit service once a database handle is supplied.
func NewAuditService(db *gorm.DB) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("audit service: db is required")
	}
	return &AuditService{db: db, now: time.Now}, nil
}

// AuditEntry describes one action to record.
type AuditEntry struct {
	AdminID   string
	Action    string
	Resource  string
	Result    string
	IPAddress string
	UserAgent string
	Metadata  map[string]any
}

// Record appends one audit log row. Metadata is JSON encoded.
func (s *AuditService) Record(ctx context.Context, entry AuditEntry) error {
	ctx = ensuredContext(ctx)

	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return errors.New("audit service: action is required")
	}

	result := strings.TrimSpace(entry.Result)
	if result == "" {
		result = "success"
	}

	record := models.AuditLog{
		Action:    action,
		Resource:  strings.TrimSpace(entry.Resource),
		Result:    result,
		IPAddress: entry.IPAddress,
		UserAgent: entry.UserAgent,
	}

	if adminID := strings.TrimSpace(entry.AdminID); adminID != "" {
		record.AdminID = &adminID
	}

	if len(entry.Metadata) > 0 {
		payload, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("audit service: encode metadata: %w", err)
		}
		record.Metadata = string(payload)
	}

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("audit service: record entry: %w", err)
	}
	return nil
}

// ListOptions filters audit listings.
type ListOptions struct {
	AdminID string
	Action  string
	Limit   int
}

// List returns audit rows matching the filters, newest first.
func (s *AuditService) List(ctx context.Context, opts ListOptions) ([]models.AuditLog, error) {
	ctx = ensuredContext(ctx)

	q := s.db.WithContext(ctx).Model(&models.AuditLog{}).Order("created_at DESC")
	if adminID := strings.TrimSpace(opts.AdminID); adminID != "" {
		q = q.Where("admin_id = ?", adminID)
	}
	if action := strings.TrimSpace(opts.Action); action != "" {
		q = q.Where("action = ?", action)
	}
	limit := opts.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var rows []models.AuditLog
	if err := q.Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("audit service: list: %w", err)
	}
	return rows, nil
}

// CleanupOlderThan removes audit rows older than the retention window and
// reports how many were deleted.
func (s *AuditService) CleanupOlderThan(ctx context.Context, days int) (int64, error) {
	ctx = ensuredContext(ctx)

	if days <= 0 {
		return 0, errors.New("audit service: retention days must be positive")
	}

	cutoff := s.now().AddDate(0, 0, -days)
	result := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.AuditLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("audit service: cleanup: %w", result.Error)
	}
	return result.RowsAffected, nil
}
