package calls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and single-node development.
type MemoryStore struct {
	mu    sync.Mutex
	calls map[string]Call
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{calls: map[string]Call{}} }

func (s *MemoryStore) Create(ctx context.Context, c Call) error {
	if c.CallID == "" || c.CompanyID == "" {
		return ErrInvalidCall
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.calls[c.CallID]; ok {
		return ErrAlreadyExists
	}
	s.calls[c.CallID] = c.Clone()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, callID string) (Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[callID]
	if !ok {
		return Call{}, ErrNotFound
	}
	return c.Clone(), nil
}

func (s *MemoryStore) AppendTranscript(ctx context.Context, callID string, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[callID]
	if !ok {
		return ErrNotFound
	}
	if c.Status.IsTerminal() {
		return ErrCallFinalized
	}
	c.Transcript = append(c.Transcript, e)
	s.calls[callID] = c
	return nil
}

func (s *MemoryStore) Save(ctx context.Context, c Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.calls[c.CallID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status.IsTerminal() {
		return ErrCallFinalized
	}
	next := c.Clone()
	next.Transcript = cur.Transcript
	next.ProfileSnapshot = cur.ProfileSnapshot
	s.calls[c.CallID] = next
	return nil
}

func (s *MemoryStore) ListByCompany(ctx context.Context, companyID string, from, to time.Time) ([]Call, error) {
	if companyID == "" {
		return nil, ErrInvalidCall
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, 0)
	for _, c := range s.calls {
		if c.CompanyID != companyID {
			continue
		}
		if c.StartTime.Before(from) || !c.StartTime.Before(to) {
			continue
		}
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}
