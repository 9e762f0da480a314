package memory

import (
	"context"

	"livequiz-service/internal/domain"
)

// StaticAuthVerifier resolves bearer tokens from a fixed map. Account
// management lives outside this service; deployments hand the engine a
// token→host mapping (or swap in a real verifier behind the same
// interface).
type StaticAuthVerifier struct {
	tokens map[string]string // token -> host id
}

func NewStaticAuthVerifier(tokens map[string]string) *StaticAuthVerifier {
	return &StaticAuthVerifier{tokens: tokens}
}

func (v *StaticAuthVerifier) Verify(_ context.Context, token string) (string, error) {
	if hostID, ok := v.tokens[token]; ok && token != "" {
		return hostID, nil
	}
	return "", domain.ErrAuthInvalid
}
