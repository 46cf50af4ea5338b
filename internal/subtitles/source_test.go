package subtitles

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"stream-gateway/internal/platform/cache"
	"stream-gateway/internal/platform/objectstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	keys  []string
	calls int
	err   error
}

func (f *fakeLister) List(_ context.Context, bucket, prefix string) ([]objectstore.Object, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []objectstore.Object
	for _, k := range f.keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, objectstore.Object{Key: k})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func newTestSource(l Lister, opts ...Option) *Source {
	return NewSource(l, "subtitles", "https://subtitles.example.com/", cache.NewLoader("subtitles", cache.NewMemory(0)), opts...)
}

func TestSubtitles_prefers_vtt(t *testing.T) {
	l := &fakeLister{keys: []string{
		"sermon_2021_nor.vtt",
		"sermon_2021_eng.vtt",
		"sermon_2021_eng.srt",
		"other_nor.vtt",
	}}
	s := newTestSource(l)

	subs, err := s.Subtitles(context.Background(), "sermon_2021")
	require.NoError(t, err)
	require.Len(t, subs, 2)

	assert.Equal(t, Subtitle{
		URL:          "https://subtitles.example.com/sermon_2021_eng.vtt",
		Label:        "English",
		LanguageCode: "eng",
		Type:         "vtt",
		Filename:     "sermon_2021_eng.vtt",
	}, subs[0])
	assert.Equal(t, "Norsk", subs[1].Label)
}

func TestSubtitles_falls_back_to_other_types(t *testing.T) {
	s := newTestSource(&fakeLister{keys: []string{"clip_xyz.srt"}})

	subs, err := s.Subtitles(context.Background(), "clip")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "srt", subs[0].Type)
	assert.Equal(t, DefaultLabel, subs[0].Label)
}

func TestSubtitles_cached(t *testing.T) {
	l := &fakeLister{keys: []string{"clip_nor.vtt"}}
	s := newTestSource(l)

	for i := 0; i < 3; i++ {
		_, err := s.Subtitles(context.Background(), "clip")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, l.calls)
}

func TestSubtitles_cache_is_case_sensitive(t *testing.T) {
	l := &fakeLister{keys: []string{"Clip_nor.vtt", "clip_eng.vtt"}}
	s := newTestSource(l)

	upper, err := s.Subtitles(context.Background(), "Clip")
	require.NoError(t, err)
	lower, err := s.Subtitles(context.Background(), "clip")
	require.NoError(t, err)

	require.Len(t, upper, 1)
	require.Len(t, lower, 1)
	assert.Equal(t, "Clip_nor.vtt", upper[0].Filename)
	assert.Equal(t, "clip_eng.vtt", lower[0].Filename)
	assert.Equal(t, 2, l.calls)
}

func TestSubtitles_trim_suffix(t *testing.T) {
	l := &fakeLister{keys: []string{"show_ep1_nor.vtt"}}
	s := newTestSource(l, WithTrimSuffix(4))

	subs, err := s.Subtitles(context.Background(), "show_ep1_hd1")
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestSubtitles_error(t *testing.T) {
	s := newTestSource(&fakeLister{err: errors.New("access denied")})

	_, err := s.Subtitles(context.Background(), "clip")
	assert.Error(t, err)
}

func TestLanguageName(t *testing.T) {
	assert.Equal(t, "Deutsch", LanguageName("ger"))
	assert.Equal(t, "Deutsch", LanguageName("DEU"))
	assert.Equal(t, "", LanguageName("xxx"))
}
