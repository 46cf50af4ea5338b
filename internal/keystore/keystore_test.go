package keystore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"stream-gateway/internal/platform/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	objects map[string][]byte
	calls   atomic.Int32
	delay   time.Duration
}

func (f *fakeFetcher) Fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	b, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, errors.New("not found")
	}
	return b, nil
}

func newTestStore(f *fakeFetcher) *Store {
	return New(f, "keys", "dash", cache.NewLoader("key", cache.NewMemory(0)), time.Minute)
}

func TestGetKey(t *testing.T) {
	f := &fakeFetcher{objects: map[string][]byte{"keys/group1/key1": []byte("0123456789abcdef")}}
	s := newTestStore(f)

	key, err := s.GetKey(context.Background(), "group1", "key1")
	require.NoError(t, err)
	assert.Equal(t, []byte("0123456789abcdef"), key)

	_, err = s.GetKey(context.Background(), "group1", "key1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.calls.Load(), "second read served from cache")
}

func TestGetKey_single_flight(t *testing.T) {
	f := &fakeFetcher{
		objects: map[string][]byte{"keys/g/k": []byte("0123456789abcdef")},
		delay:   50 * time.Millisecond,
	}
	s := newTestStore(f)

	const callers = 20
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key, err := s.GetKey(context.Background(), "g", "k")
			assert.NoError(t, err)
			assert.Equal(t, []byte("0123456789abcdef"), key)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), f.calls.Load())
}

func TestGetKey_invalid(t *testing.T) {
	s := newTestStore(&fakeFetcher{})

	for _, tc := range [][2]string{{"", "k"}, {"g", ""}, {"..", "k"}, {"g", "a/b"}} {
		_, err := s.GetKey(context.Background(), tc[0], tc[1])
		assert.ErrorIs(t, err, ErrInvalidKey, tc)
	}
}

func TestGetKey_fetch_error_is_not_cached(t *testing.T) {
	f := &fakeFetcher{objects: map[string][]byte{}}
	s := newTestStore(f)

	_, err := s.GetKey(context.Background(), "g", "k")
	require.Error(t, err)

	f.objects["keys/g/k"] = []byte("late")
	key, err := s.GetKey(context.Background(), "g", "k")
	require.NoError(t, err)
	assert.Equal(t, "late", string(key))
}

func TestGetDRMKey_uses_drm_group(t *testing.T) {
	f := &fakeFetcher{objects: map[string][]byte{"keys/dash/0b8a7c62-0000-4000-8000-000000000001": []byte("k")}}
	s := newTestStore(f)

	key, err := s.GetDRMKey(context.Background(), "0b8a7c62-0000-4000-8000-000000000001")
	require.NoError(t, err)
	assert.Equal(t, "k", string(key))
}
