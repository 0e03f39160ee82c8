package reporting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voice-assistant/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
//
// IMPORTANT:
// - Methods must enforce company filtering.
// - calls.Store satisfies it; reporting never writes.
type Repository interface {
	ListByCompany(ctx context.Context, companyID string, from, to time.Time) ([]calls.Call, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CallStats(ctx context.Context, req StatsRequest) (CallStats, error) {
	if req.CompanyID == "" {
		return CallStats{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CallStats{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallStats{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListByCompany(ctx, req.CompanyID, req.Range.From, req.Range.To)
	if err != nil {
		return CallStats{}, fmt.Errorf("reporting: list calls: %w", err)
	}
	return Aggregate(req, rows), nil
}

// Aggregate folds rows into CallStats. It is pure.
func Aggregate(req StatsRequest, rows []calls.Call) CallStats {
	out := CallStats{
		CompanyID: req.CompanyID,
		Range:     req.Range,
		ByStatus: map[calls.Status]int{
			calls.StatusInProgress:  0,
			calls.StatusCompleted:   0,
			calls.StatusMissed:      0,
			calls.StatusTransferred: 0,
		},
		SentimentBreakdown: map[calls.Overall]int{
			calls.SentimentPositive: 0,
			calls.SentimentNegative: 0,
			calls.SentimentNeutral:  0,
		},
	}

	var (
		totalMs int64
		timed   int64
	)
	for _, c := range rows {
		out.TotalCalls++
		out.ByStatus[c.Status]++
		if c.TransferredToHuman {
			out.TransferredToHuman++
		}
		if c.DurationMs > 0 {
			totalMs += c.DurationMs
			timed++
		}
		if c.Sentiment != nil {
			out.SentimentBreakdown[c.Sentiment.Overall]++
		}
	}
	if timed > 0 {
		// rounded to the nearest millisecond
		out.AvgDurationMs = (totalMs + timed/2) / timed
	}
	return out
}
