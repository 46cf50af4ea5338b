// Package token issues and verifies the short-lived streaming tokens that
// authorize manifest, key and license requests.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultLifetime is both the default and the maximum token lifetime.
	DefaultLifetime = 6 * time.Hour
	// clockSkew backdates nbf on issue and is the leeway allowed on check.
	clockSkew = 5 * time.Minute
)

// Result is the outcome of a token check. Reason is for logs only.
type Result struct {
	Valid  bool
	Reason string
}

// Service signs and verifies HS256 streaming tokens with a shared key.
type Service struct {
	key         []byte
	issuer      string
	audience    string
	maxLifetime time.Duration
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMaxLifetime caps the lifetime of issued tokens.
func WithMaxLifetime(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.maxLifetime = d
		}
	}
}

// New builds a Service. The key must not be empty.
func New(key []byte, issuer, audience string, opts ...Option) (*Service, error) {
	if len(key) == 0 {
		return nil, errors.New("token: signing key is required")
	}
	s := &Service{
		key:         key,
		issuer:      issuer,
		audience:    audience,
		maxLifetime: DefaultLifetime,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue returns a token valid until expiry, clamped to the maximum lifetime.
func (s *Service) Issue(expiry time.Time) (string, error) {
	now := s.now()
	if limit := now.Add(s.maxLifetime); expiry.After(limit) {
		expiry = limit
	}

	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    s.issuer,
		Audience:  jwt.ClaimStrings{s.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-clockSkew)),
		ExpiresAt: jwt.NewNumericDate(expiry),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// IssueDefault returns a token with the maximum lifetime and its expiry.
func (s *Service) IssueDefault() (string, time.Time, error) {
	expiry := s.now().Add(s.maxLifetime).Truncate(time.Second)
	tok, err := s.Issue(expiry)
	return tok, expiry, err
}

// Check verifies signature, issuer, audience and lifetime of raw.
// It never panics and reports every failure as Valid=false.
func (s *Service) Check(raw string) Result {
	if raw == "" {
		return Result{Reason: "missing token"}
	}

	claims := &streamClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Result{Reason: reason(err)}
	}
	if nbf := claims.NotBefore; nbf != nil && s.now().Add(clockSkew).Before(nbf.Time) {
		return Result{Reason: "not yet valid"}
	}
	return Result{Valid: true}
}

// streamClaims hides nbf from the parser so Check can allow clockSkew on it
// while exp stays strict.
type streamClaims struct {
	jwt.RegisteredClaims
}

func (c *streamClaims) GetNotBefore() (*jwt.NumericDate, error) { return nil, nil }

// Validate reports whether raw is a currently valid token.
func (s *Service) Validate(raw string) bool {
	return s.Check(raw).Valid
}

func reason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return "bad signature"
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return "not yet valid"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "wrong issuer"
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return "wrong audience"
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return "missing claim"
	default:
		return err.Error()
	}
}

// Sanitize strips every character outside [A-Za-z0-9._-] from a
// caller-supplied token before it is embedded in a URL.
func Sanitize(raw string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '_', r == '-':
			return r
		default:
			return -1
		}
	}, raw)
}
