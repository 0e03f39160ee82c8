package routing

import (
	"context"
	"math/rand"
	"testing"

	"voice-assistant/internal/company"
)

func TestEngine_RequiresCompany(t *testing.T) {
	if _, err := NewEngine(nil).Escalate(context.Background(), EscalationInput{}); err != ErrCompanyRequired {
		t.Fatalf("expected ErrCompanyRequired, got %v", err)
	}
}

func TestEngine_NoTargetsHangsUp(t *testing.T) {
	d, err := NewEngine(rand.New(rand.NewSource(1))).Escalate(context.Background(), EscalationInput{
		CompanyID: "acme",
		CallID:    "CA1",
		Targets:   []company.EscalationTarget{{Number: "+331", Weight: -1}, {Weight: 5}},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if d.Action != ActionHangup || d.ConnectTo != "" {
		t.Fatalf("expected hangup, got %+v", d)
	}
}

func TestEngine_UnsetWeightsAreUniform(t *testing.T) {
	e := NewEngine(rand.New(rand.NewSource(7)))
	seen := map[string]int{}
	for i := 0; i < 200; i++ {
		d, err := e.Escalate(context.Background(), EscalationInput{
			CompanyID: "acme",
			Targets:   []company.EscalationTarget{{Number: "+331"}, {Number: "+332"}},
		})
		if err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
		seen[d.ConnectTo]++
	}
	if seen["+331"] == 0 || seen["+332"] == 0 {
		t.Fatalf("expected both targets to be picked, got %v", seen)
	}
}

func TestEngine_WeightedSelectionSkipsZeroWeight(t *testing.T) {
	e := NewEngine(rand.New(rand.NewSource(3)))
	for i := 0; i < 50; i++ {
		d, err := e.Escalate(context.Background(), EscalationInput{
			CompanyID: "acme",
			Targets:   []company.EscalationTarget{{Number: "+331", Weight: 0}, {Number: "+332", Weight: 4}},
		})
		if err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
		if d.Action != ActionConnect || d.ConnectTo != "+332" {
			t.Fatalf("expected connect to +332, got %+v", d)
		}
	}
}
