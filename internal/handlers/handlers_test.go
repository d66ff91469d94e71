package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	iauth "github.com/pollhive/pollhive/internal/auth"
	"github.com/pollhive/pollhive/internal/database/testutil"
	"github.com/pollhive/pollhive/internal/events"
	"github.com/pollhive/pollhive/internal/middleware"
	"github.com/pollhive/pollhive/internal/services"
	"github.com/pollhive/pollhive/pkg/mail"
)

var otpPattern = regexp.MustCompile(`Your code is: (\d{6})`)

// captureMailer records outbound messages for assertions.
type captureMailer struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (m *captureMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *captureMailer) lastCode(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent)
	match := otpPattern.FindStringSubmatch(m.sent[len(m.sent)-1].Body)
	require.Len(t, match, 2)
	return match[1]
}

type testEnv struct {
	router *gin.Engine
	mailer *captureMailer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t)
	mailer := &captureMailer{}

	authSvc, err := services.NewAuthService(db, mailer)
	require.NoError(t, err)
	pollSvc, err := services.NewPollService(db, events.NoopPublisher{})
	require.NoError(t, err)
	auditSvc, err := services.NewAuditService(db)
	require.NoError(t, err)

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         "test-secret",
		Issuer:         "handler-tests",
		AccessTokenTTL: time.Hour,
	})
	require.NoError(t, err)
	tokens := iauth.NewTokenStore()

	authHandler := NewAuthHandler(authSvc, tokens, jwtSvc, auditSvc)
	pollHandler := NewPollHandler(pollSvc, auditSvc)
	auditHandler := NewAuditHandler(auditSvc)

	r := gin.New()
	api := r.Group("/api")
	{
		authGroup := api.Group("/auth")
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/verify", authHandler.Verify)
		authGroup.POST("/resend", authHandler.Resend)
		authGroup.POST("/session", authHandler.Session)
		authGroup.GET("/me", middleware.Auth(jwtSvc), authHandler.Me)

		api.GET("/polls/:id", pollHandler.Get)
		api.GET("/polls/:id/results", pollHandler.Results)
		api.POST("/polls/:id/vote", pollHandler.Vote)

		protected := api.Group("", middleware.Auth(jwtSvc))
		protected.POST("/polls", pollHandler.Create)
		protected.GET("/polls", pollHandler.List)
		protected.POST("/polls/:id/close", pollHandler.Close)
		protected.GET("/audit", auditHandler.List)
	}

	return &testEnv{router: r, mailer: mailer}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope struct {
		Success bool           `json:"success"`
		Data    map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.True(t, envelope.Success)
	return envelope.Data
}

func decodeErrorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.False(t, envelope.Success)
	return envelope.Error.Code
}

// authenticate walks the full OTP ladder and returns a session JWT.
func (e *testEnv) authenticate(t *testing.T, email string) string {
	t.Helper()

	w := e.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"email": email, "name": "Test Admin"})
	require.Equal(t, http.StatusOK, w.Code)

	code := e.mailer.lastCode(t)

	w = e.do(t, http.MethodPost, "/api/auth/verify", "", gin.H{"email": email, "code": code})
	require.Equal(t, http.StatusOK, w.Code)
	exchange, ok := decodeData(t, w)["exchange_token"].(string)
	require.True(t, ok)
	require.NotEmpty(t, exchange)

	w = e.do(t, http.MethodPost, "/api/auth/session", "", gin.H{"exchange_token": exchange})
	require.Equal(t, http.StatusOK, w.Code)
	token, ok := decodeData(t, w)["access_token"].(string)
	require.True(t, ok)
	require.NotEmpty(t, token)
	return token
}

func (e *testEnv) createPoll(t *testing.T, token, question string, options ...string) (string, []string) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/polls", token, gin.H{"question": question, "options": options})
	require.Equal(t, http.StatusCreated, w.Code)

	data := decodeData(t, w)
	pollID, _ := data["id"].(string)
	require.NotEmpty(t, pollID)

	rawOptions, ok := data["options"].([]any)
	require.True(t, ok)
	optionIDs := make([]string, 0, len(rawOptions))
	for _, raw := range rawOptions {
		opt, ok := raw.(map[string]any)
		require.True(t, ok)
		optionIDs = append(optionIDs, opt["id"].(string))
	}
	return pollID, optionIDs
}

func TestRegisterVerifySessionFlow(t *testing.T) {
	env := newTestEnv(t)

	token := env.authenticate(t, "flow@example.com")

	w := env.do(t, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	require.Equal(t, "flow@example.com", data["email"])
	require.Equal(t, "Test Admin", data["name"])
}

func TestVerifyRejectsWrongCode(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"email": "wrong@example.com", "name": "A"})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/api/auth/verify", "", gin.H{"email": "wrong@example.com", "code": "000000"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "auth.invalid_code", decodeErrorCode(t, w))
}

func TestExchangeTokenIsSingleUse(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"email": "once@example.com", "name": "A"})
	require.Equal(t, http.StatusOK, w.Code)
	code := env.mailer.lastCode(t)

	w = env.do(t, http.MethodPost, "/api/auth/verify", "", gin.H{"email": "once@example.com", "code": code})
	require.Equal(t, http.StatusOK, w.Code)
	exchange := decodeData(t, w)["exchange_token"].(string)

	w = env.do(t, http.MethodPost, "/api/auth/session", "", gin.H{"exchange_token": exchange})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/api/auth/session", "", gin.H{"exchange_token": exchange})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginUnknownEmail(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "ghost@example.com"})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRegisterDuplicateVerifiedEmail(t *testing.T) {
	env := newTestEnv(t)

	env.authenticate(t, "dupe@example.com")

	w := env.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"email": "dupe@example.com", "name": "Again"})
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "auth.email_registered", decodeErrorCode(t, w))
}

func TestCreatePollRequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/polls", "", gin.H{"question": "Q?", "options": []string{"a", "b"}})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreatePollValidation(t *testing.T) {
	env := newTestEnv(t)
	token := env.authenticate(t, "creator@example.com")

	// Too few options
	w := env.do(t, http.MethodPost, "/api/polls", token, gin.H{"question": "Q?", "options": []string{"only"}})
	require.Equal(t, http.StatusBadRequest, w.Code)

	// Blank question
	w = env.do(t, http.MethodPost, "/api/polls", token, gin.H{"question": "   ", "options": []string{"a", "b"}})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVoteFlowAndResults(t *testing.T) {
	env := newTestEnv(t)
	token := env.authenticate(t, "owner@example.com")

	pollID, optionIDs := env.createPoll(t, token, "Favourite colour?", "Red", "Blue")

	// Public poll fetch
	w := env.do(t, http.MethodGet, "/api/polls/"+pollID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Cast three votes: two Red, one Blue
	for _, optionID := range []string{optionIDs[0], optionIDs[0], optionIDs[1]} {
		w = env.do(t, http.MethodPost, "/api/polls/"+pollID+"/vote", "", gin.H{"option_id": optionID})
		require.Equal(t, http.StatusOK, w.Code)
	}

	// Vote response sets the advisory cookie
	require.Contains(t, w.Header().Get("Set-Cookie"), "voted_"+pollID)

	w = env.do(t, http.MethodGet, "/api/polls/"+pollID+"/results", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	require.Equal(t, float64(3), data["total_votes"])

	results := data["results"].([]any)
	require.Len(t, results, 2)
	first := results[0].(map[string]any)
	require.Equal(t, "Red", first["text"])
	require.Equal(t, float64(2), first["votes"])
	require.Equal(t, float64(67), first["percentage"])
}

func TestVoteInvalidOption(t *testing.T) {
	env := newTestEnv(t)
	token := env.authenticate(t, "owner2@example.com")

	pollID, _ := env.createPoll(t, token, "Q?", "a", "b")

	w := env.do(t, http.MethodPost, "/api/polls/"+pollID+"/vote", "", gin.H{"option_id": "not-an-option"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVoteUnknownPoll(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/polls/missing/vote", "", gin.H{"option_id": "whatever"})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestClosePollAndVoteConflict(t *testing.T) {
	env := newTestEnv(t)
	token := env.authenticate(t, "closer@example.com")

	pollID, optionIDs := env.createPoll(t, token, "Close me?", "yes", "no")

	w := env.do(t, http.MethodPost, "/api/polls/"+pollID+"/close", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Voting on a closed poll is rejected with a conflict
	w = env.do(t, http.MethodPost, "/api/polls/"+pollID+"/vote", "", gin.H{"option_id": optionIDs[0]})
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "poll.closed", decodeErrorCode(t, w))

	// Closing again stays a success
	w = env.do(t, http.MethodPost, "/api/polls/"+pollID+"/close", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestCloseForeignPollForbidden(t *testing.T) {
	env := newTestEnv(t)
	owner := env.authenticate(t, "owner3@example.com")
	intruder := env.authenticate(t, "intruder@example.com")

	pollID, _ := env.createPoll(t, owner, "Mine?", "a", "b")

	w := env.do(t, http.MethodPost, "/api/polls/"+pollID+"/close", intruder, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestListPollsScopedToAdmin(t *testing.T) {
	env := newTestEnv(t)
	alice := env.authenticate(t, "alice@example.com")
	bob := env.authenticate(t, "bob@example.com")

	env.createPoll(t, alice, "Alice poll?", "a", "b")
	env.createPoll(t, bob, "Bob poll?", "x", "y")

	w := env.do(t, http.MethodGet, "/api/polls", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)

	polls := decodeData(t, w)["polls"].([]any)
	require.Len(t, polls, 1)
	require.Equal(t, "Alice poll?", polls[0].(map[string]any)["question"])
}

func TestAuditListsOwnActions(t *testing.T) {
	env := newTestEnv(t)
	token := env.authenticate(t, "audited@example.com")

	pollID, _ := env.createPoll(t, token, "Tracked?", "a", "b")

	w := env.do(t, http.MethodGet, "/api/audit", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	entries := decodeData(t, w)["entries"].([]any)
	require.NotEmpty(t, entries)

	found := false
	for _, raw := range entries {
		entry := raw.(map[string]any)
		if entry["action"] == services.AuditActionPollCreate && entry["resource"] == pollID {
			found = true
		}
	}
	require.True(t, found, fmt.Sprintf("expected poll.create entry for %s", pollID))
}
