package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"voice-assistant/internal/calls"
)

func seed(t *testing.T, store *calls.MemoryStore, cs ...calls.Call) {
	t.Helper()
	for _, c := range cs {
		if err := store.Create(context.Background(), c); err != nil {
			t.Fatalf("seed %s: %v", c.CallID, err)
		}
	}
}

func TestReporting_CompanyIsolationAndRange(t *testing.T) {
	store := calls.NewMemoryStore()
	now := time.Unix(1700000000, 0).UTC()
	seed(t, store,
		calls.Call{CallID: "c1", CompanyID: "acme", Status: calls.StatusCompleted, DurationMs: 30000, StartTime: now},
		calls.Call{CallID: "c2", CompanyID: "other", Status: calls.StatusCompleted, DurationMs: 50000, StartTime: now},
		calls.Call{CallID: "c3", CompanyID: "acme", Status: calls.StatusCompleted, DurationMs: 50000, StartTime: now.Add(-48 * time.Hour)},
	)
	svc := NewService(store)

	out, err := svc.CallStats(context.Background(), StatsRequest{CompanyID: "acme", Range: TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 1 {
		t.Fatalf("expected 1 call, got %d", out.TotalCalls)
	}
	if out.AvgDurationMs != 30000 {
		t.Fatalf("expected avg 30000, got %d", out.AvgDurationMs)
	}
}

func TestReporting_Aggregates(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	reason := "trigger:humain"
	rows := []calls.Call{
		{CallID: "c1", Status: calls.StatusCompleted, DurationMs: 1000, Sentiment: &calls.Sentiment{Overall: calls.SentimentPositive, Score: 0.9}},
		{CallID: "c2", Status: calls.StatusMissed, DurationMs: 0},
		{CallID: "c3", Status: calls.StatusTransferred, DurationMs: 2001, TransferredToHuman: true, TransferReason: &reason, Sentiment: &calls.Sentiment{Overall: calls.SentimentNegative, Score: 0.2}},
		{CallID: "c4", Status: calls.StatusInProgress},
	}

	out := Aggregate(StatsRequest{CompanyID: "acme", Range: TimeRange{From: now, To: now.Add(time.Hour)}}, rows)

	if out.TotalCalls != 4 {
		t.Fatalf("expected 4 calls, got %d", out.TotalCalls)
	}
	if out.ByStatus[calls.StatusCompleted] != 1 || out.ByStatus[calls.StatusMissed] != 1 ||
		out.ByStatus[calls.StatusTransferred] != 1 || out.ByStatus[calls.StatusInProgress] != 1 {
		t.Fatalf("unexpected by_status: %+v", out.ByStatus)
	}
	// zero durations are excluded from the average
	if out.AvgDurationMs != 1501 {
		t.Fatalf("expected avg 1501, got %d", out.AvgDurationMs)
	}
	if out.SentimentBreakdown[calls.SentimentPositive] != 1 || out.SentimentBreakdown[calls.SentimentNegative] != 1 {
		t.Fatalf("unexpected sentiment breakdown: %+v", out.SentimentBreakdown)
	}
	if v, ok := out.SentimentBreakdown[calls.SentimentNeutral]; !ok || v != 0 {
		t.Fatalf("expected neutral key with zero count")
	}
	if out.TransferredToHuman != 1 {
		t.Fatalf("expected 1 transferred, got %d", out.TransferredToHuman)
	}
}

func TestReporting_EmptyRange(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	out := Aggregate(StatsRequest{CompanyID: "acme", Range: TimeRange{From: now, To: now.Add(time.Hour)}}, nil)
	if out.TotalCalls != 0 || out.AvgDurationMs != 0 {
		t.Fatalf("expected zero stats, got %+v", out)
	}
	if len(out.ByStatus) != 4 || len(out.SentimentBreakdown) != 3 {
		t.Fatalf("expected every key present: %+v", out)
	}
}

func TestReporting_InvalidRequests(t *testing.T) {
	svc := NewService(calls.NewMemoryStore())
	now := time.Unix(1700000000, 0).UTC()

	cases := []StatsRequest{
		{Range: TimeRange{From: now, To: now.Add(time.Hour)}},
		{CompanyID: "acme"},
		{CompanyID: "acme", Range: TimeRange{From: now, To: now}},
		{CompanyID: "acme", Range: TimeRange{From: now, To: now.Add(-time.Hour)}},
	}
	for i, req := range cases {
		if _, err := svc.CallStats(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("case %d: expected ErrInvalidRequest, got %v", i, err)
		}
	}
}
