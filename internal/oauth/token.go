package oauth

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
)

// StaticToken serves a fixed bearer token, the mode used when the operator
// pastes a long-lived OAuth token instead of running the refresh flow.
type StaticToken struct {
	source oauth2.TokenSource
}

// NewStaticToken builds a provider from a raw pasted token. A leading
// "Bearer " prefix is stripped so copied header values work as-is.
func NewStaticToken(raw string) (*StaticToken, error) {
	token := NormalizeRawToken(raw)
	if token == "" {
		return nil, fmt.Errorf("token is empty")
	}
	return &StaticToken{
		source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
	}, nil
}

func (s *StaticToken) AccessToken(_ context.Context) (string, error) {
	token, err := s.source.Token()
	if err != nil {
		return "", err
	}
	return token.AccessToken, nil
}

// NormalizeRawToken trims whitespace and an optional "Bearer " prefix.
func NormalizeRawToken(raw string) string {
	token := strings.TrimSpace(raw)
	if len(token) >= 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return token
}
