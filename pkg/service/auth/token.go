package auth

import (
	"context"
	"sync"

	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/m-mizutani/goerr/v2"
)

// TokenSource provides a bearer token for one backend request. Callers fetch a
// fresh token per attempt rather than caching one across a retry sequence; a
// token may expire while a long upload backs off between attempts.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenSourceFunc adapts a function to the TokenSource interface
type TokenSourceFunc func(ctx context.Context) (string, error)

func (f TokenSourceFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// Static returns a TokenSource that always yields the same token.
// Used for API-key style deployments and tests.
func Static(token string) TokenSource {
	return TokenSourceFunc(func(ctx context.Context) (string, error) {
		if token == "" {
			return "", goerr.New("auth token is not configured")
		}
		return token, nil
	})
}

// JWT wraps another source and rejects expired tokens before they reach the
// wire, so an expired credential surfaces as a local auth error instead of a
// retried 401.
type JWT struct {
	mu     sync.Mutex
	source TokenSource
}

// NewJWT creates a JWT-validating token source
func NewJWT(source TokenSource) *JWT {
	return &JWT{source: source}
}

func (s *JWT) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.source.Token(ctx)
	if err != nil {
		return "", goerr.Wrap(err, "failed to obtain token")
	}

	// Signature verification belongs to the backend; only the exp claim is
	// inspected here.
	if _, err := jwt.Parse([]byte(raw), jwt.WithVerify(false), jwt.WithValidate(true)); err != nil {
		return "", goerr.Wrap(err, "auth token is invalid or expired")
	}

	return raw, nil
}
