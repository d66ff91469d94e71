package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pollhive/pollhive/internal/database/testutil"
	"github.com/pollhive/pollhive/internal/models"
	"github.com/pollhive/pollhive/pkg/mail"
)

// captureMailer records outbound messages for assertions.
type captureMailer struct {
	mu       sync.Mutex
	messages []mail.Message
}

func (m *captureMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *captureMailer) last(t *testing.T) mail.Message {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.messages)
	return m.messages[len(m.messages)-1]
}

// lastCode extracts the 6-digit code out of "Your code is: 123456. ..."
func (m *captureMailer) lastCode(t *testing.T) string {
	t.Helper()
	body := m.last(t).Body
	const prefix = "Your code is: "
	idx := len(prefix)
	require.Greater(t, len(body), idx+6)
	return body[idx : idx+6]
}

func newAuthService(t *testing.T, opts ...AuthOption) (*AuthService, *captureMailer, *gorm.DB) {
	t.Helper()
	db := testutil.MustOpenTestDB(t)
	mailer := &captureMailer{}
	svc, err := NewAuthService(db, mailer, opts...)
	require.NoError(t, err)
	return svc, mailer, db
}

func TestRegisterCreatesUnverifiedAdminAndSendsCode(t *testing.T) {
	svc, mailer, db := newAuthService(t)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, "Admin@Example.com", "Poll Admin"))

	var admin models.Admin
	require.NoError(t, db.First(&admin, "email = ?", "admin@example.com").Error)
	require.False(t, admin.Verified())
	require.NotNil(t, admin.HashedOTP)
	require.NotNil(t, admin.OTPExpiresAt)

	msg := mailer.last(t)
	require.Equal(t, []string{"admin@example.com"}, msg.To)
	require.Equal(t, "Your verification code", msg.Subject)
}

func TestRegisterVerifiedEmailConflicts(t *testing.T) {
	svc, mailer, _ := newAuthService(t)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, "admin@example.com", "Poll Admin"))
	code := mailer.lastCode(t)
	_, err := svc.VerifyOTP(ctx, "admin@example.com", code)
	require.NoError(t, err)

	err = svc.Register(ctx, "admin@example.com", "Poll Admin")
	require.ErrorIs(t, err, ErrEmailRegistered)
}

func TestRegisterPendingAdminGetsFreshCode(t *testing.T) {
	svc, mailer, _ := newAuthService(t)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, "admin@example.com", "Poll Admin"))
	require.NoError(t, svc.Register(ctx, "admin@example.com", "Poll Admin"))

	mailer.mu.Lock()
	sent := len(mailer.messages)
	mailer.mu.Unlock()
	require.Equal(t, 2, sent)
}

func TestVerifyOTPFlow(t *testing.T) {
	svc, mailer, _ := newAuthService(t)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, "admin@example.com", "Poll Admin"))

	_, err := svc.VerifyOTP(ctx, "admin@example.com", "000000")
	require.ErrorIs(t, err, ErrInvalidOTP)

	code := mailer.lastCode(t)
	admin, err := svc.VerifyOTP(ctx, "admin@example.com", code)
	require.NoError(t, err)
	require.True(t, admin.Verified())
	require.Nil(t, admin.HashedOTP)
	require.Nil(t, admin.OTPExpiresAt)

	// The code is single use: the OTP fields were cleared.
	_, err = svc.VerifyOTP(ctx, "admin@example.com", code)
	require.ErrorIs(t, err, ErrOTPExpired)
}

func TestVerifyOTPExpired(t *testing.T) {
	current := time.Now()
	clock := func() time.Time { return current }

	svc, mailer, _ := newAuthService(t, WithClock(clock), WithOTPExpiry(10*time.Minute))
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, "admin@example.com", "Poll Admin"))
	code := mailer.lastCode(t)

	current = current.Add(11 * time.Minute)
	_, err := svc.VerifyOTP(ctx, "admin@example.com", code)
	require.ErrorIs(t, err, ErrOTPExpired)
}

func TestVerifyOTPUnknownEmail(t *testing.T) {
	svc, _, _ := newAuthService(t)

	_, err := svc.VerifyOTP(context.Background(), "nobody@example.com", "123456")
	require.ErrorIs(t, err, ErrInvalidOTP)
}

func TestLoginRequiresVerifiedAdmin(t *testing.T) {
	svc, mailer, _ := newAuthService(t)
	ctx := context.Background()

	err := svc.Login(ctx, "nobody@example.com")
	require.ErrorIs(t, err, ErrAdminNotFound)

	require.NoError(t, svc.Register(ctx, "admin@example.com", "Poll Admin"))

	// Unverified admins cannot log in; they must finish registration.
	err = svc.Login(ctx, "admin@example.com")
	require.ErrorIs(t, err, ErrAdminNotFound)

	code := mailer.lastCode(t)
	_, err = svc.VerifyOTP(ctx, "admin@example.com", code)
	require.NoError(t, err)

	require.NoError(t, svc.Login(ctx, "admin@example.com"))
	fresh := mailer.lastCode(t)
	_, err = svc.VerifyOTP(ctx, "admin@example.com", fresh)
	require.NoError(t, err)
}

func TestResendOTPWorksForPendingAdmin(t *testing.T) {
	svc, mailer, _ := newAuthService(t)
	ctx := context.Background()

	err := svc.ResendOTP(ctx, "nobody@example.com")
	require.ErrorIs(t, err, ErrAdminNotFound)

	require.NoError(t, svc.Register(ctx, "admin@example.com", "Poll Admin"))
	require.NoError(t, svc.ResendOTP(ctx, "admin@example.com"))

	code := mailer.lastCode(t)
	_, err = svc.VerifyOTP(ctx, "admin@example.com", code)
	require.NoError(t, err)
}

func TestGetAdmin(t *testing.T) {
	svc, mailer, _ := newAuthService(t)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, "admin@example.com", "Poll Admin"))
	code := mailer.lastCode(t)
	admin, err := svc.VerifyOTP(ctx, "admin@example.com", code)
	require.NoError(t, err)

	fetched, err := svc.GetAdmin(ctx, admin.ID)
	require.NoError(t, err)
	require.Equal(t, admin.Email, fetched.Email)

	_, err = svc.GetAdmin(ctx, "missing")
	require.ErrorIs(t, err, ErrAdminNotFound)
}
