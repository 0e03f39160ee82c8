package calls

import (
	"context"
	"time"
)

// Store persists calls. Implementations must make AppendTranscript atomic per entry
// and must refuse writes to calls that are already in a terminal status.
//
// After Create the transcript only grows through AppendTranscript; Save never
// rewrites it.
type Store interface {
	Create(ctx context.Context, c Call) error
	Get(ctx context.Context, callID string) (Call, error)
	AppendTranscript(ctx context.Context, callID string, e Entry) error
	// Save records state, counters, transfer and finalization fields. The
	// stored transcript and profile snapshot are kept as they are.
	Save(ctx context.Context, c Call) error
	// ListByCompany returns calls whose StartTime is in [from, to).
	ListByCompany(ctx context.Context, companyID string, from, to time.Time) ([]Call, error)
}
