package company

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleProfile() Profile {
	return Profile{
		ID:      "co1",
		Name:    "Boulangerie Martin",
		Numbers: []string{"+33 1 23 45 67 89"},
		Hours: BusinessHours{
			Timezone: "UTC",
			Days: map[string]DayHours{
				"monday": {Open: "09:00", Close: "18:00"},
				"sunday": {Closed: true},
			},
		},
		CustomResponses:    []CustomResponse{{Keyword: "Horaires", Response: "Nous sommes ouverts de 9h à 18h."}},
		EscalationTriggers: []string{"conseiller"},
		Conversation: ConversationProfile{
			ConversationType: "support",
			Scenarios: []Scenario{
				{Name: "devis", Triggers: []string{"devis", "tarif"}},
			},
			Variables: map[string]string{"city": "Lyon"},
		},
		NamedConversations: map[string]ConversationProfile{
			"sales": {ConversationType: "sales"},
		},
	}
}

func TestIsOpenAt(t *testing.T) {
	p := sampleProfile()
	monday := time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC) // a Monday
	assert.True(t, IsOpenAt(p, monday))
	assert.False(t, IsOpenAt(p, monday.Add(9*time.Hour)), "after closing")
	assert.True(t, IsOpenAt(p, time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC)), "close is inclusive")
	assert.False(t, IsOpenAt(p, monday.AddDate(0, 0, -1)), "sunday closed")
	assert.False(t, IsOpenAt(p, monday.AddDate(0, 0, 1)), "missing day closed")
	assert.True(t, IsOpenAt(Profile{}, monday), "no schedule means open")
}

func TestDirectory_ResolveByNumberNormalizes(t *testing.T) {
	d := NewMemoryDirectory(sampleProfile())
	p, err := d.ResolveByNumber(context.Background(), "+33123456789")
	require.NoError(t, err)
	assert.Equal(t, "co1", p.ID)

	_, err = d.ResolveByNumber(context.Background(), "+44000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDirectory_ProfileSnapshotsAreIndependent(t *testing.T) {
	d := NewMemoryDirectory(sampleProfile())
	ctx := context.Background()

	cp, err := d.LoadProfile(ctx, "co1", "")
	require.NoError(t, err)
	cp.Variables["city"] = "Paris"
	cp.Scenarios[0].Name = "changed"

	again, err := d.LoadProfile(ctx, "co1", "")
	require.NoError(t, err)
	assert.Equal(t, "Lyon", again.Variables["city"])
	assert.Equal(t, "devis", again.Scenarios[0].Name)

	named, err := d.LoadProfile(ctx, "co1", "sales")
	require.NoError(t, err)
	assert.Equal(t, "sales", named.ConversationType)

	fallback, err := d.LoadProfile(ctx, "co1", "unknown")
	require.NoError(t, err)
	assert.Equal(t, "support", fallback.ConversationType)
}

func TestProfileMatchers(t *testing.T) {
	p := sampleProfile()
	r, ok := p.FindCustomResponse("Quels sont vos horaires ?")
	assert.True(t, ok)
	assert.Contains(t, r, "9h")

	_, ok = p.MatchesEscalationTrigger("je veux parler à un Conseiller")
	assert.True(t, ok)

	s, ok := p.Conversation.MatchScenario("je voudrais un devis")
	assert.True(t, ok)
	assert.Equal(t, "devis", s.Name)

	_, ok = p.Conversation.Scenario("DEVIS")
	assert.True(t, ok)
}

func TestLoadDirectoryFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "companies.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"x","name":"X","inbound_numbers":["+1555"]}]`), 0o600))

	d, err := LoadDirectoryFile(path)
	require.NoError(t, err)
	p, err := d.ResolveByNumber(context.Background(), "+1555")
	require.NoError(t, err)
	assert.Equal(t, "X", p.Name)
}
