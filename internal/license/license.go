// Package license answers AES-128 key requests and ClearKey (CENC) license
// requests for holders of a valid streaming token.
package license

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"stream-gateway/internal/apperr"
	"stream-gateway/internal/token"

	"github.com/google/uuid"
)

var (
	// ErrInvalidRequest marks malformed or incomplete requests.
	ErrInvalidRequest = &apperr.Error{Kind: apperr.KindClient, Msg: "missing parameters"}
	// ErrUnauthorized marks requests whose token did not validate.
	ErrUnauthorized = &apperr.Error{Kind: apperr.KindUnauthorized, Msg: "unauthorized"}
)

// TokenChecker verifies streaming tokens. *token.Service implements it.
type TokenChecker interface {
	Check(raw string) token.Result
}

// KeySource resolves key bytes. *keystore.Store implements it.
type KeySource interface {
	GetKey(ctx context.Context, group, id string) ([]byte, error)
	GetDRMKey(ctx context.Context, id string) ([]byte, error)
}

// Request is the EME ClearKey license request body.
type Request struct {
	Kids []string `json:"kids"`
	Type string   `json:"type,omitempty"`
}

// JSONWebKey is a symmetric key in JWK form.
type JSONWebKey struct {
	Kty string `json:"kty"`
	K   string `json:"k"`
	Kid string `json:"kid"`
}

// KeySet is the ClearKey license response.
type KeySet struct {
	Keys []JSONWebKey `json:"keys"`
}

// Gateway ties token checks to key lookups.
type Gateway struct {
	tokens TokenChecker
	keys   KeySource
	log    *slog.Logger
}

func NewGateway(tokens TokenChecker, keys KeySource, log *slog.Logger) *Gateway {
	return &Gateway{tokens: tokens, keys: keys, log: log}
}

// Key returns the raw AES-128 key for (group, id).
func (g *Gateway) Key(ctx context.Context, tok, group, id string) ([]byte, error) {
	if group == "" || id == "" || tok == "" {
		return nil, ErrInvalidRequest
	}
	if err := g.authorize(tok); err != nil {
		return nil, err
	}

	key, err := g.keys.GetKey(ctx, group, id)
	if err != nil {
		return nil, keyError(err)
	}
	return key, nil
}

// License decodes a ClearKey request, looks up the key of its first kid and
// returns it as a one-entry key set echoing the requested kid.
func (g *Gateway) License(ctx context.Context, tok string, body []byte) (*KeySet, error) {
	if len(body) == 0 || tok == "" {
		return nil, ErrInvalidRequest
	}
	if err := g.authorize(tok); err != nil {
		return nil, err
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, apperr.Client("invalid license request body")
	}
	if len(req.Kids) == 0 {
		return nil, apperr.Client("license request has no kids")
	}

	kid := req.Kids[0]
	id, err := KidToUUID(kid)
	if err != nil {
		return nil, apperr.Client("invalid kid %q", kid)
	}

	key, err := g.keys.GetDRMKey(ctx, id)
	if err != nil {
		return nil, keyError(err)
	}

	return &KeySet{Keys: []JSONWebKey{{
		Kty: "oct",
		K:   base64.RawURLEncoding.EncodeToString(key),
		Kid: kid,
	}}}, nil
}

func (g *Gateway) authorize(tok string) error {
	res := g.tokens.Check(tok)
	if !res.Valid {
		g.log.Debug("streaming token rejected", slog.String("reason", res.Reason))
		return ErrUnauthorized
	}
	return nil
}

// KidToUUID decodes a base64url key id (padding optional) of 16 bytes into
// its canonical lowercase UUID form.
func KidToUUID(kid string) (string, error) {
	normalized := strings.TrimRight(strings.NewReplacer("+", "-", "/", "_").Replace(kid), "=")
	raw, err := base64.RawURLEncoding.DecodeString(normalized)
	if err != nil {
		return "", fmt.Errorf("decode kid: %w", err)
	}
	id, err := uuid.FromBytes(raw)
	if err != nil {
		return "", fmt.Errorf("kid is not 16 bytes: %w", err)
	}
	return id.String(), nil
}

func keyError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Upstream("key lookup failed", err)
}
