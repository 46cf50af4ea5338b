package manifest

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"stream-gateway/internal/apperr"
	"stream-gateway/internal/platform/cache"
	"stream-gateway/internal/platform/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string]string
	err    error
	calls  int
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	body, ok := f.bodies[url]
	if !ok {
		return "", &FetchError{URL: url, Status: http.StatusNotFound}
	}
	return body, nil
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestService(t *testing.T, f Fetcher) *Service {
	t.Helper()
	store := cache.NewMemory(time.Minute)
	t.Cleanup(store.Stop)
	loader := cache.NewLoader("manifest", store, cache.WithLogger(logger.Discard()))
	return NewService(NewEngine(DefaultConfig(), nil, logger.Discard()), f, loader, 0)
}

func TestService_TopLevel_caches_with_token_placeholder(t *testing.T) {
	f := &fakeFetcher{bodies: map[string]string{masterSource: readMaster(t)}}
	svc := newTestService(t, f)
	opts := Options{Links: testLinks}

	first, err := svc.TopLevel(context.Background(), masterSource, "token-a", opts)
	require.NoError(t, err)
	second, err := svc.TopLevel(context.Background(), masterSource, "token/b", opts)
	require.NoError(t, err)

	assert.Equal(t, 1, f.Calls())
	assert.NotContains(t, first, TokenPlaceholder)
	assert.Contains(t, first, "&token=token-a\n")
	assert.Contains(t, second, "&token=token%2Fb\n")
}

func TestService_TopLevel_options_are_part_of_cache_key(t *testing.T) {
	f := &fakeFetcher{bodies: map[string]string{masterSource: readMaster(t)}}
	svc := newTestService(t, f)

	full, err := svc.TopLevel(context.Background(), masterSource, "t", Options{Links: testLinks})
	require.NoError(t, err)
	capped, err := svc.TopLevel(context.Background(), masterSource, "t", Options{Max720p: true, Links: testLinks})
	require.NoError(t, err)

	assert.Equal(t, 2, f.Calls())
	assert.Contains(t, full, "1920x1080")
	assert.NotContains(t, capped, "1920x1080")
}

func TestService_SecondLevel_caches_origin_body(t *testing.T) {
	raw, err := os.ReadFile("testdata/media.m3u8")
	require.NoError(t, err)
	src := "https://live.example.com/hls/channel1/index.m3u8"
	f := &fakeFetcher{bodies: map[string]string{src: string(raw)}}
	svc := newTestService(t, f)

	a, err := svc.SecondLevel(context.Background(), src, "tok-a", Options{Links: testLinks})
	require.NoError(t, err)
	b, err := svc.SecondLevel(context.Background(), src, "tok-b", Options{Links: testLinks})
	require.NoError(t, err)

	assert.Equal(t, 1, f.Calls())
	assert.Contains(t, a, "key-1042?token=tok-a")
	assert.Contains(t, b, "key-1042?token=tok-b")
}

func TestService_fetch_errors_are_classified(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", &FetchError{URL: masterSource, Status: http.StatusNotFound}, http.StatusBadGateway},
		{"refused", &FetchError{URL: masterSource, Err: errors.New("connection refused")}, http.StatusBadGateway},
		{"timeout", &FetchError{URL: masterSource, Timeout: true, Err: context.DeadlineExceeded}, http.StatusGatewayTimeout},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestService(t, &fakeFetcher{err: tc.err})
			_, err := svc.TopLevel(context.Background(), masterSource, "t", Options{Links: testLinks})
			require.Error(t, err)
			assert.Equal(t, tc.want, apperr.Status(err))
		})
	}
}

func TestService_failed_fetch_is_retried(t *testing.T) {
	f := &fakeFetcher{err: &FetchError{URL: masterSource, Status: http.StatusServiceUnavailable}}
	svc := newTestService(t, f)

	_, err := svc.TopLevel(context.Background(), masterSource, "t", Options{Links: testLinks})
	require.Error(t, err)

	f.mu.Lock()
	f.err = nil
	f.bodies = map[string]string{masterSource: readMaster(t)}
	f.mu.Unlock()

	_, err = svc.TopLevel(context.Background(), masterSource, "t", Options{Links: testLinks})
	require.NoError(t, err)
	assert.Equal(t, 2, f.Calls())
}

func TestService_SubtitlePlaylist(t *testing.T) {
	svc := newTestService(t, &fakeFetcher{})

	out, err := svc.SubtitlePlaylist("https://subs.example.com/clip_01_nor.vtt")
	require.NoError(t, err)
	assert.Contains(t, out, "#EXTM3U")
	assert.Contains(t, out, "https://subs.example.com/clip_01_nor.vtt")
	assert.Contains(t, out, "#EXT-X-ENDLIST")

	_, err = svc.SubtitlePlaylist("javascript:alert(1)")
	assert.Equal(t, http.StatusBadRequest, apperr.Status(err))
}
