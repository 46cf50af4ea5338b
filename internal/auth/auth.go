// Package auth validates OIDC bearer tokens against the authority's JWKS.
package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"stream-gateway/internal/apperr"
	"stream-gateway/internal/platform/cache"

	"github.com/golang-jwt/jwt/v5"
)

// JWKSTTL is how long a fetched key set is reused.
const JWKSTTL = 24 * time.Hour

const maxDocumentBytes = 1 << 20

// Config names the OIDC authority. Tokens must carry Authority, exactly as
// configured, as their issuer. JWKSURL is discovered from the authority when
// empty. Audience is only checked when set.
type Config struct {
	Authority string
	JWKSURL   string
	Audience  string
}

// Identity is the authenticated caller.
type Identity struct {
	Subject string
}

// Validator checks RS256 bearer tokens. A Validator without an authority
// accepts every request.
type Validator struct {
	cfg    Config
	client *http.Client
	loader *cache.Loader
	now    func() time.Time
}

// NewValidator returns a Validator. client may be nil.
func NewValidator(cfg Config, client *http.Client, loader *cache.Loader) *Validator {
	if client == nil {
		client = &http.Client{Timeout: 8 * time.Second}
	}
	cfg.Authority = strings.TrimSpace(cfg.Authority)
	return &Validator{cfg: cfg, client: client, loader: loader, now: time.Now}
}

// Enabled reports whether an authority is configured.
func (v *Validator) Enabled() bool {
	return v != nil && v.cfg.Authority != ""
}

// Validate verifies raw and returns the caller's identity. Invalid tokens are
// unauthorized errors; a failing authority is an upstream error.
func (v *Validator) Validate(ctx context.Context, raw string) (Identity, error) {
	if !v.Enabled() {
		return Identity{}, nil
	}
	if raw == "" {
		return Identity{}, apperr.Unauthorized("missing bearer token")
	}

	keys, err := v.keySet(ctx)
	if err != nil {
		return Identity{}, err
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.cfg.Authority),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.cfg.Audience))
	}

	claims := jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid != "" {
			key, ok := keys[kid]
			if !ok {
				return nil, fmt.Errorf("unknown key id %q", kid)
			}
			return key, nil
		}
		if len(keys) == 1 {
			for _, key := range keys {
				return key, nil
			}
		}
		return nil, errors.New("missing key id")
	}, opts...)
	if err != nil {
		return Identity{}, &apperr.Error{Kind: apperr.KindUnauthorized, Msg: "invalid bearer token", Err: err}
	}
	return Identity{Subject: claims.Subject}, nil
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

type jwksDocument struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type discoveryDocument struct {
	JWKSURI string `json:"jwks_uri"`
}

func (v *Validator) keySet(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	raw, err := v.loader.GetOrLoad(ctx, "jwks|"+v.cfg.Authority, JWKSTTL, func(ctx context.Context) ([]byte, error) {
		jwksURL := v.cfg.JWKSURL
		if jwksURL == "" {
			var doc discoveryDocument
			discovery := strings.TrimRight(v.cfg.Authority, "/") + "/.well-known/openid-configuration"
			if err := v.getJSON(ctx, discovery, &doc); err != nil {
				return nil, err
			}
			if doc.JWKSURI == "" {
				return nil, errors.New("discovery document has no jwks_uri")
			}
			jwksURL = doc.JWKSURI
		}
		var doc jwksDocument
		if err := v.getJSON(ctx, jwksURL, &doc); err != nil {
			return nil, err
		}
		return json.Marshal(doc)
	})
	if err != nil {
		return nil, apperr.Upstream("fetch jwks", err)
	}

	var doc jwksDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, apperr.Upstream("decode jwks", err)
	}
	keys, err := parseKeys(doc)
	if err != nil {
		return nil, apperr.Upstream("parse jwks", err)
	}
	return keys, nil
}

func (v *Validator) getJSON(ctx context.Context, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("get %s: status=%d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDocumentBytes)).Decode(dst); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

func parseKeys(doc jwksDocument) (map[string]*rsa.PublicKey, error) {
	keys := make(map[string]*rsa.PublicKey)
	for i, key := range doc.Keys {
		if !strings.EqualFold(key.Kty, "RSA") {
			continue
		}
		nBytes, err := base64.RawURLEncoding.DecodeString(key.N)
		if err != nil {
			return nil, fmt.Errorf("decode n: %w", err)
		}
		eBytes, err := base64.RawURLEncoding.DecodeString(key.E)
		if err != nil {
			return nil, fmt.Errorf("decode e: %w", err)
		}
		e := new(big.Int).SetBytes(eBytes)
		if !e.IsInt64() || e.Int64() <= 1 {
			return nil, fmt.Errorf("invalid exponent for key %q", key.Kid)
		}

		kid := key.Kid
		if kid == "" {
			kid = fmt.Sprintf("key-%d", i)
		}
		keys[kid] = &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: int(e.Int64())}
	}
	if len(keys) == 0 {
		return nil, errors.New("no RSA keys in jwks")
	}
	return keys, nil
}
