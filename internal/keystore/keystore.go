// Package keystore serves content-decryption keys stored as objects named
// "{group}/{id}", through a shared read-through cache.
package keystore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stream-gateway/internal/apperr"
	"stream-gateway/internal/platform/cache"
)

// DefaultTTL is how long a fetched key is served from cache.
const DefaultTTL = 180 * time.Second

// ErrInvalidKey is returned for empty or path-escaping group or id values.
var ErrInvalidKey = &apperr.Error{Kind: apperr.KindClient, Msg: "invalid key group or id"}

// Fetcher reads an object. *objectstore.S3 implements it.
type Fetcher interface {
	Fetch(ctx context.Context, bucket, key string) ([]byte, error)
}

// Store resolves (group, id) pairs to raw key bytes.
type Store struct {
	fetcher  Fetcher
	bucket   string
	drmGroup string
	loader   *cache.Loader
	ttl      time.Duration
}

// New returns a Store reading from bucket. drmGroup is the group used for
// CENC license keys.
func New(fetcher Fetcher, bucket, drmGroup string, loader *cache.Loader, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		fetcher:  fetcher,
		bucket:   bucket,
		drmGroup: drmGroup,
		loader:   loader,
		ttl:      ttl,
	}
}

// GetKey returns the key bytes for (group, id). Concurrent requests for the
// same key share one backend fetch.
func (s *Store) GetKey(ctx context.Context, group, id string) ([]byte, error) {
	if !validSegment(group) || !validSegment(id) {
		return nil, ErrInvalidKey
	}
	objectKey := group + "/" + id

	key, err := s.loader.GetOrLoad(ctx, objectKey, s.ttl, func(ctx context.Context) ([]byte, error) {
		return s.fetcher.Fetch(ctx, s.bucket, objectKey)
	})
	if err != nil {
		return nil, fmt.Errorf("get key %s: %w", objectKey, err)
	}
	return key, nil
}

// GetDRMKey returns the CENC key with the given canonical UUID.
func (s *Store) GetDRMKey(ctx context.Context, id string) ([]byte, error) {
	return s.GetKey(ctx, s.drmGroup, id)
}

func validSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, "/\\")
}
