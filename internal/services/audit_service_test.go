package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pollhive/pollhive/internal/database/testutil"
	"github.com/pollhive/pollhive/internal/models"
)

func TestAuditRecordAndList(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc, err := NewAuditService(db)
	require.NoError(t, err)
	ctx := context.Background()

	admin := seedAdmin(t, db, "owner@example.com")

	require.NoError(t, svc.Record(ctx, AuditEntry{
		AdminID:  admin.ID,
		Action:   AuditActionPollCreate,
		Resource: "poll-1",
		Metadata: map[string]any{"question": "Favourite colour?"},
	}))
	require.NoError(t, svc.Record(ctx, AuditEntry{
		AdminID:  admin.ID,
		Action:   AuditActionPollClose,
		Resource: "poll-1",
	}))

	rows, err := svc.List(ctx, ListOptions{AdminID: admin.ID})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "success", rows[0].Result)

	rows, err = svc.List(ctx, ListOptions{Action: AuditActionPollCreate})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Contains(t, rows[0].Metadata, "Favourite colour?")
}

func TestAuditRecordRequiresAction(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc, err := NewAuditService(db)
	require.NoError(t, err)

	require.Error(t, svc.Record(context.Background(), AuditEntry{}))
}

func TestAuditCleanupOlderThan(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc, err := NewAuditService(db)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, svc.Record(ctx, AuditEntry{Action: AuditActionRegister}))
	require.NoError(t, svc.Record(ctx, AuditEntry{Action: AuditActionVerify}))

	// Age one row past the retention window.
	var rows []models.AuditLog
	require.NoError(t, db.Find(&rows).Error)
	require.NoError(t, db.Model(&models.AuditLog{}).
		Where("id = ?", rows[0].ID).
		Update("created_at", time.Now().AddDate(0, 0, -120)).Error)

	removed, err := svc.CleanupOlderThan(ctx, 90)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	_, err = svc.CleanupOlderThan(ctx, 0)
	require.Error(t, err)
}
