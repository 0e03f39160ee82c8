package company

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/jinzhu/copier"
)

var ErrNotFound = errors.New("company: not found")

// Directory resolves companies and their conversation profiles.
type Directory interface {
	ResolveByNumber(ctx context.Context, number string) (Profile, error)
	// LoadProfile returns an immutable snapshot of the conversation configuration.
	// name selects a named configuration; empty or unknown names fall back to the default.
	LoadProfile(ctx context.Context, companyID, name string) (ConversationProfile, error)
	Get(ctx context.Context, companyID string) (Profile, error)
}

// MemoryDirectory keeps companies in memory. Returned values are deep copies.
type MemoryDirectory struct {
	mu       sync.RWMutex
	byID     map[string]Profile
	byNumber map[string]string
}

func NewMemoryDirectory(profiles ...Profile) *MemoryDirectory {
	d := &MemoryDirectory{byID: map[string]Profile{}, byNumber: map[string]string{}}
	for _, p := range profiles {
		d.Put(p)
	}
	return d
}

// LoadDirectoryFile reads a JSON array of profiles.
func LoadDirectoryFile(path string) (*MemoryDirectory, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("company: read directory: %w", err)
	}
	var profiles []Profile
	if err := json.Unmarshal(b, &profiles); err != nil {
		return nil, fmt.Errorf("company: decode directory: %w", err)
	}
	return NewMemoryDirectory(profiles...), nil
}

func (d *MemoryDirectory) Put(p Profile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byID[p.ID] = p
	for _, n := range p.Numbers {
		d.byNumber[normalizeNumber(n)] = p.ID
	}
}

func (d *MemoryDirectory) ResolveByNumber(ctx context.Context, number string) (Profile, error) {
	d.mu.RLock()
	id, ok := d.byNumber[normalizeNumber(number)]
	d.mu.RUnlock()
	if !ok {
		return Profile{}, ErrNotFound
	}
	return d.Get(ctx, id)
}

func (d *MemoryDirectory) Get(ctx context.Context, companyID string) (Profile, error) {
	d.mu.RLock()
	p, ok := d.byID[companyID]
	d.mu.RUnlock()
	if !ok {
		return Profile{}, ErrNotFound
	}
	var out Profile
	if err := copier.CopyWithOption(&out, &p, copier.Option{DeepCopy: true}); err != nil {
		return Profile{}, fmt.Errorf("company: snapshot: %w", err)
	}
	return out, nil
}

func (d *MemoryDirectory) LoadProfile(ctx context.Context, companyID, name string) (ConversationProfile, error) {
	d.mu.RLock()
	p, ok := d.byID[companyID]
	d.mu.RUnlock()
	if !ok {
		return ConversationProfile{}, ErrNotFound
	}
	src := p.Conversation
	if name != "" {
		if named, ok := p.NamedConversations[name]; ok {
			src = named
		}
	}
	var out ConversationProfile
	if err := copier.CopyWithOption(&out, &src, copier.Option{DeepCopy: true}); err != nil {
		return ConversationProfile{}, fmt.Errorf("company: snapshot: %w", err)
	}
	return out, nil
}

func normalizeNumber(n string) string {
	return strings.Map(func(r rune) rune {
		if r == '+' || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, n)
}
