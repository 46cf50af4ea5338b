package manifest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.m3u8":
			w.Write([]byte("#EXTM3U\n"))
		case "/slow.m3u8":
			time.Sleep(200 * time.Millisecond)
			w.Write([]byte("#EXTM3U\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(50 * time.Millisecond)

	body, err := f.Fetch(context.Background(), srv.URL+"/ok.m3u8")
	require.NoError(t, err)
	assert.Equal(t, "#EXTM3U\n", body)

	_, err = f.Fetch(context.Background(), srv.URL+"/missing.m3u8")
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusNotFound, fe.Status)
	assert.False(t, fe.Timeout)

	_, err = f.Fetch(context.Background(), srv.URL+"/slow.m3u8")
	require.True(t, errors.As(err, &fe))
	assert.True(t, fe.Timeout)
}

func TestHTTPFetcher_rejects_oversized_playlist(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("#EXTM3U\n"))
		w.Write([]byte(strings.Repeat("segment_0001.ts\n", maxPlaylistBytes/16)))
	}))
	defer srv.Close()

	body, err := NewHTTPFetcher(5*time.Second).Fetch(context.Background(), srv.URL+"/huge.m3u8")
	assert.Empty(t, body)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.ErrorIs(t, err, errPlaylistTooLarge)
	assert.False(t, fe.Timeout)
}
