package reporting

import (
	"time"

	"voice-assistant/internal/calls"
)

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// StatsRequest requests aggregated call metrics for one company.
// Company isolation: CompanyID is required.
type StatsRequest struct {
	CompanyID string    `json:"company_id"`
	Range     TimeRange `json:"range"`
}

// CallStats summarizes the calls that started inside the range.
//
// AvgDurationMs only averages calls with a positive duration. ByStatus and
// SentimentBreakdown always carry every known key, zero when absent.
type CallStats struct {
	CompanyID string    `json:"company_id"`
	Range     TimeRange `json:"range"`

	TotalCalls         int                   `json:"total_calls"`
	ByStatus           map[calls.Status]int  `json:"by_status"`
	AvgDurationMs      int64                 `json:"avg_duration_ms"`
	SentimentBreakdown map[calls.Overall]int `json:"sentiment_breakdown"`

	TransferredToHuman int `json:"transferred_to_human"`
}
