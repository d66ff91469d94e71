package handlers

import (
	goerrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pollhive/pollhive/internal/middleware"
	"github.com/pollhive/pollhive/internal/services"
	"github.com/pollhive/pollhive/pkg/errors"
	"github.com/pollhive/pollhive/pkg/response"
)

// votedCookieMaxAge keeps the advisory "already voted" hint for 30 days.
const votedCookieMaxAge = 30 * 24 * 60 * 60

// PollHandler exposes poll creation, retrieval, voting, results, and closing.
type PollHandler struct {
	polls *services.PollService
	audit *services.AuditService
}

func NewPollHandler(polls *services.PollService, audit *services.AuditService) *PollHandler {
	return &PollHandler{polls: polls, audit: audit}
}

type createPollRequest struct {
	Question string   `json:"question" validate:"required"`
	Options  []string `json:"options" validate:"required"`
}

// POST /api/polls
func (h *PollHandler) Create(c *gin.Context) {
	adminID, ok := middleware.AdminID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req createPollRequest
	if !bindAndValidate(c, &req) {
		return
	}

	poll, err := h.polls.Create(requestContext(c), services.CreatePollInput{
		Question: req.Question,
		Options:  req.Options,
		AdminID:  adminID,
	})
	if err != nil {
		response.Error(c, pollError(err))
		return
	}

	h.recordAudit(c, adminID, services.AuditActionPollCreate, poll.ID, "success")

	response.Created(c, poll)
}

// GET /api/polls
func (h *PollHandler) List(c *gin.Context) {
	adminID, ok := middleware.AdminID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	polls, err := h.polls.ListByAdmin(requestContext(c), adminID)
	if err != nil {
		response.Error(c, pollError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"polls": polls})
}

// GET /api/polls/:id
func (h *PollHandler) Get(c *gin.Context) {
	poll, err := h.polls.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, pollError(err))
		return
	}

	response.Success(c, http.StatusOK, poll)
}

// GET /api/polls/:id/results
func (h *PollHandler) Results(c *gin.Context) {
	results, err := h.polls.Results(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, pollError(err))
		return
	}

	response.Success(c, http.StatusOK, results)
}

type voteRequest struct {
	OptionID string `json:"option_id" validate:"required"`
	// VoterToken is an optional client-supplied hint stored alongside the
	// vote. The server never uses it to gate eligibility.
	VoterToken string `json:"voter_token"`
}

// POST /api/polls/:id/vote
func (h *PollHandler) Vote(c *gin.Context) {
	pollID := c.Param("id")

	var req voteRequest
	if !bindAndValidate(c, &req) {
		return
	}

	err := h.polls.CastVote(requestContext(c), services.CastVoteInput{
		PollID:     pollID,
		OptionID:   req.OptionID,
		VoterToken: req.VoterToken,
	})
	if err != nil {
		response.Error(c, pollError(err))
		return
	}

	// Advisory hint only: lets a well-behaved client show "already voted"
	// without any server-side enforcement.
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie("voted_"+pollID, req.OptionID, votedCookieMaxAge, "/", "", false, false)

	response.Success(c, http.StatusOK, gin.H{"voted": true})
}

// POST /api/polls/:id/close
func (h *PollHandler) Close(c *gin.Context) {
	adminID, ok := middleware.AdminID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	pollID := c.Param("id")
	if err := h.polls.Close(requestContext(c), pollID, adminID); err != nil {
		response.Error(c, pollError(err))
		return
	}

	h.recordAudit(c, adminID, services.AuditActionPollClose, pollID, "success")

	response.Success(c, http.StatusOK, gin.H{"closed": true})
}

// pollError maps poll service failures onto the API error taxonomy.
func pollError(err error) error {
	switch {
	case goerrors.Is(err, services.ErrPollNotFound):
		return errors.NewNotFound("poll not found")
	case goerrors.Is(err, services.ErrPollClosed):
		return errors.ErrPollClosed
	case goerrors.Is(err, services.ErrInvalidOption):
		return errors.NewBadRequest("option does not belong to this poll")
	case goerrors.Is(err, services.ErrNotPollOwner):
		return errors.ErrForbidden
	case goerrors.Is(err, services.ErrOptionCount),
		goerrors.Is(err, services.ErrQuestionLength),
		goerrors.Is(err, services.ErrOptionLength):
		return errors.NewBadRequest(trimServicePrefix(err.Error()))
	default:
		return errors.ErrInternalServer.WithInternal(err)
	}
}

func trimServicePrefix(msg string) string {
	const prefix = "poll service: "
	if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
		return msg[len(prefix):]
	}
	return msg
}

func (h *PollHandler) recordAudit(c *gin.Context, adminID, action, resource, result string) {
	if h.audit == nil {
		return
	}
	_ = h.audit.Record(requestContext(c), services.AuditEntry{
		AdminID:   adminID,
		Action:    action,
		Resource:  resource,
		Result:    result,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
}
