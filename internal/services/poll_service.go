package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pollhive/pollhive/internal/events"
	"github.com/pollhive/pollhive/internal/models"
	"github.com/pollhive/pollhive/pkg/logger"
	"github.com/pollhive/pollhive/pkg/metrics"
)

var (
	// ErrPollNotFound indicates the requested poll does not exist.
	ErrPollNotFound = errors.New("poll service: poll not found")
	// ErrPollClosed signals that the poll no longer accepts votes.
	ErrPollClosed = errors.New("poll service: poll is closed")
	// ErrInvalidOption indicates the option does not belong to the poll.
	ErrInvalidOption = errors.New("poll service: invalid option for this poll")
	// ErrNotPollOwner indicates the caller does not own the poll.
	ErrNotPollOwner = errors.New("poll service: forbidden")

	// ErrOptionCount indicates an option count outside the allowed range.
	ErrOptionCount = fmt.Errorf("poll service: poll must have %d-%d options", models.MinOptions, models.MaxOptions)
	// ErrQuestionLength indicates a question outside the allowed length.
	ErrQuestionLength = fmt.Errorf("poll service: question must be 1-%d characters", models.QuestionMaxLen)
	// ErrOptionLength indicates an option text outside the allowed length.
	ErrOptionLength = fmt.Errorf("poll service: each option must be 1-%d characters", models.OptionTextMaxLen)
)

// PollService enforces the poll lifecycle: creation constraints, ownership
// checks, the one-way close transition, and vote eligibility gates.
type PollService struct {
	db        *gorm.DB
	publisher events.VotePublisher
	log       *zap.Logger
}

// NewPollService constructs a poll service. The publisher may be nil, in
// which case no vote events are emitted.
func NewPollService(db *gorm.DB, publisher events.VotePublisher) (*PollService, error) {
	if db == nil {
		return nil, errors.New("poll service: db is required")
	}
	return &PollService{
		db:        db,
		publisher: publisher,
		log:       logger.WithModule("polls"),
	}, nil
}

// CreatePollInput captures required fields when creating a poll.
type CreatePollInput struct {
	Question string
	Options  []string
	AdminID  string
}

// Create validates the input and persists the poll together with its options
// in a single transaction. Validation order: option count, question length,
// then each option's length; the first violation aborts before any write.
func (s *PollService) Create(ctx context.Context, input CreatePollInput) (*models.Poll, error) {
	ctx = ensuredContext(ctx)

	adminID := strings.TrimSpace(input.AdminID)
	if adminID == "" {
		return nil, errors.New("poll service: admin id is required")
	}

	question := strings.TrimSpace(input.Question)
	options := make([]string, len(input.Options))
	for i, text := range input.Options {
		options[i] = strings.TrimSpace(text)
	}

	if len(options) < models.MinOptions || len(options) > models.MaxOptions {
		return nil, ErrOptionCount
	}
	if question == "" || utf8.RuneCountInString(question) > models.QuestionMaxLen {
		return nil, ErrQuestionLength
	}
	for _, text := range options {
		if text == "" || utf8.RuneCountInString(text) > models.OptionTextMaxLen {
			return nil, ErrOptionLength
		}
	}

	poll := models.Poll{
		Question: question,
		IsActive: true,
		AdminID:  adminID,
	}
	for i, text := range options {
		poll.Options = append(poll.Options, models.Option{Text: text, Position: i})
	}

	// Poll and options commit together; a failed option insert rolls back the poll.
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&poll).Error
	}); err != nil {
		return nil, fmt.Errorf("poll service: create poll: %w", err)
	}

	metrics.PollsCreated.Inc()
	return &poll, nil
}

// Get retrieves a poll with its options in creation order.
func (s *PollService) Get(ctx context.Context, id string) (*models.Poll, error) {
	ctx = ensuredContext(ctx)

	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrPollNotFound
	}

	var poll models.Poll
	if err := s.db.WithContext(ctx).
		Preload("Options", optionOrder).
		First(&poll, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPollNotFound
		}
		return nil, fmt.Errorf("poll service: find poll: %w", err)
	}
	return &poll, nil
}

// Results loads the poll with all of its votes and returns the aggregated
// per-option counts and percentages.
func (s *PollService) Results(ctx context.Context, pollID string) (*PollResults, error) {
	ctx = ensuredContext(ctx)

	pollID = strings.TrimSpace(pollID)
	if pollID == "" {
		return nil, ErrPollNotFound
	}

	var poll models.Poll
	if err := s.db.WithContext(ctx).
		Preload("Options", optionOrder).
		Preload("Options.Votes").
		Preload("Votes").
		First(&poll, "id = ?", pollID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPollNotFound
		}
		return nil, fmt.Errorf("poll service: load poll votes: %w", err)
	}

	results := AggregateResults(&poll)
	return &results, nil
}

// CastVoteInput captures one anonymous ballot.
type CastVoteInput struct {
	PollID   string
	OptionID string
	// VoterToken is an optional opaque hint recorded as-is. It is never
	// validated or deduplicated server side.
	VoterToken string
}

// CastVote appends one vote after the eligibility gates pass, in order: the
// poll exists, the poll is active, and the option belongs to the poll. The
// active-state check and the vote insert share one transaction so a vote can
// never commit against a poll that was closed in between.
func (s *PollService) CastVote(ctx context.Context, input CastVoteInput) error {
	ctx = ensuredContext(ctx)

	pollID := strings.TrimSpace(input.PollID)
	optionID := strings.TrimSpace(input.OptionID)
	if pollID == "" {
		metrics.VotesCast.WithLabelValues("not_found").Inc()
		return ErrPollNotFound
	}

	vote := models.Vote{PollID: pollID, OptionID: optionID}
	if token := strings.TrimSpace(input.VoterToken); token != "" {
		vote.VoterToken = &token
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The row lock serialises against Close on drivers with concurrent
		// writers; the sqlite driver drops the clause and relies on its
		// single-writer model instead.
		var poll models.Poll
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Options", optionOrder).
			First(&poll, "id = ?", pollID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPollNotFound
			}
			return fmt.Errorf("poll service: find poll: %w", err)
		}
		if !poll.IsActive {
			return ErrPollClosed
		}

		member := false
		for _, option := range poll.Options {
			if option.ID == optionID {
				member = true
				break
			}
		}
		if !member {
			return ErrInvalidOption
		}

		return tx.Create(&vote).Error
	})
	if err != nil {
		metrics.VotesCast.WithLabelValues(voteOutcome(err)).Inc()
		return err
	}

	metrics.VotesCast.WithLabelValues("accepted").Inc()
	s.publishVote(ctx, vote)
	return nil
}

// Close sets the poll inactive after verifying ownership. The transition is
// one-way; closing an already-closed poll is a no-op success.
func (s *PollService) Close(ctx context.Context, pollID, adminID string) error {
	ctx = ensuredContext(ctx)

	pollID = strings.TrimSpace(pollID)
	adminID = strings.TrimSpace(adminID)
	if pollID == "" {
		return ErrPollNotFound
	}
	if adminID == "" {
		return ErrNotPollOwner
	}

	closed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var poll models.Poll
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&poll, "id = ?", pollID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPollNotFound
			}
			return fmt.Errorf("poll service: find poll: %w", err)
		}

		if poll.AdminID != adminID {
			return ErrNotPollOwner
		}
		if !poll.IsActive {
			return nil
		}

		if err := tx.Model(&poll).Update("is_active", false).Error; err != nil {
			return fmt.Errorf("poll service: close poll: %w", err)
		}
		closed = true
		return nil
	})
	if err != nil {
		return err
	}

	if closed {
		metrics.PollsClosed.Inc()
	}
	return nil
}

// AdminPollOption describes one option and its vote count in an admin listing.
type AdminPollOption struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Votes int    `json:"votes"`
}

// AdminPoll summarises one poll in the owner's dashboard listing.
type AdminPoll struct {
	ID         string            `json:"id"`
	Question   string            `json:"question"`
	IsActive   bool              `json:"is_active"`
	CreatedAt  string            `json:"created_at"`
	TotalVotes int               `json:"total_votes"`
	Options    []AdminPollOption `json:"options"`
}

// ListByAdmin returns the admin's polls, newest created first, with per-poll
// and per-option vote counts.
func (s *PollService) ListByAdmin(ctx context.Context, adminID string) ([]AdminPoll, error) {
	ctx = ensuredContext(ctx)

	adminID = strings.TrimSpace(adminID)
	if adminID == "" {
		return nil, errors.New("poll service: admin id is required")
	}

	var polls []models.Poll
	if err := s.db.WithContext(ctx).
		Preload("Options", optionOrder).
		Preload("Options.Votes").
		Preload("Votes").
		Where("admin_id = ?", adminID).
		Order("created_at DESC").
		Find(&polls).Error; err != nil {
		return nil, fmt.Errorf("poll service: list polls: %w", err)
	}

	summaries := make([]AdminPoll, 0, len(polls))
	for _, poll := range polls {
		summary := AdminPoll{
			ID:         poll.ID,
			Question:   poll.Question,
			IsActive:   poll.IsActive,
			CreatedAt:  poll.CreatedAt.UTC().Format(time.RFC3339),
			TotalVotes: len(poll.Votes),
			Options:    make([]AdminPollOption, 0, len(poll.Options)),
		}
		for _, option := range poll.Options {
			summary.Options = append(summary.Options, AdminPollOption{
				ID:    option.ID,
				Text:  option.Text,
				Votes: len(option.Votes),
			})
		}
		summaries = append(summaries, summary)
	}

	return summaries, nil
}

func (s *PollService) publishVote(ctx context.Context, vote models.Vote) {
	if s.publisher == nil {
		return
	}

	event := events.VoteEvent{
		VoteID:    vote.ID,
		PollID:    vote.PollID,
		OptionID:  vote.OptionID,
		CreatedAt: vote.CreatedAt,
	}

	// Best effort: analytics must never fail a vote.
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.log.Warn("vote event publish failed",
			zap.String("poll_id", vote.PollID),
			zap.Error(err),
		)
	}
}

func voteOutcome(err error) string {
	switch {
	case errors.Is(err, ErrPollNotFound):
		return "not_found"
	case errors.Is(err, ErrPollClosed):
		return "closed"
	case errors.Is(err, ErrInvalidOption):
		return "invalid_option"
	default:
		return "error"
	}
}

func optionOrder(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func ensuredContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
