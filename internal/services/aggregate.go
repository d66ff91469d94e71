package services

import (
	"math"

	"github.com/pollhive/pollhive/internal/models"
)

// OptionResult is the aggregated tally for a single option.
type OptionResult struct {
	OptionID   string `json:"option_id"`
	Text       string `json:"text"`
	Votes      int    `json:"votes"`
	Percentage int    `json:"percentage"`
}

// PollResults holds the aggregated outcome of a poll.
type PollResults struct {
	Question   string         `json:"question"`
	TotalVotes int            `json:"total_votes"`
	Results    []OptionResult `json:"results"`
}

// AggregateResults computes per-option counts and rounded percentages from a
// poll loaded with its options and votes. It performs no I/O and is fully
// deterministic: identical vote sets always produce identical output.
//
// Each percentage is rounded independently to the nearest integer, so the
// column may not sum to exactly 100. That is intentional and must not be
// normalised away.
func AggregateResults(poll *models.Poll) PollResults {
	results := PollResults{
		Question: poll.Question,
		Results:  make([]OptionResult, 0, len(poll.Options)),
	}

	total := len(poll.Votes)
	results.TotalVotes = total

	for _, option := range poll.Options {
		votes := len(option.Votes)
		percentage := 0
		if total > 0 {
			percentage = int(math.Round(float64(votes) / float64(total) * 100))
		}
		results.Results = append(results.Results, OptionResult{
			OptionID:   option.ID,
			Text:       option.Text,
			Votes:      votes,
			Percentage: percentage,
		})
	}

	return results
}
