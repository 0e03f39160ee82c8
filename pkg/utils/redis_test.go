package utils

import (
	"context"
	"testing"
	"time"
)

func TestLeaseScriptsInitialized(t *testing.T) {
	if leaseAcquireScript == nil || leaseReleaseScript == nil {
		t.Fatalf("expected scripts to be initialized")
	}
}

func TestAcquireLease_ValidatesArguments(t *testing.T) {
	ctx := context.Background()
	if _, err := AcquireLease(ctx, nil, "k", "o", time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if err := ReleaseLease(ctx, nil, "k", "o"); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
