package memory

import (
	"context"
	"testing"

	"livequiz-service/internal/domain"
)

func TestStaticAuthVerifier(t *testing.T) {
	verifier := NewStaticAuthVerifier(map[string]string{"tok": "host-1"})
	ctx := context.Background()

	hostID, err := verifier.Verify(ctx, "tok")
	if err != nil || hostID != "host-1" {
		t.Fatalf("expected host-1, got %q err=%v", hostID, err)
	}
	if _, err := verifier.Verify(ctx, "wrong"); err != domain.ErrAuthInvalid {
		t.Fatalf("expected ErrAuthInvalid, got %v", err)
	}
	// An empty token never authenticates, even if someone maps it.
	weird := NewStaticAuthVerifier(map[string]string{"": "host-x"})
	if _, err := weird.Verify(ctx, ""); err != domain.ErrAuthInvalid {
		t.Fatalf("expected empty token rejected, got %v", err)
	}
}
