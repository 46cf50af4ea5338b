package manifest

import (
	"context"
	"errors"
	"net/url"
	"os"
	"strings"
	"testing"

	"stream-gateway/internal/platform/logger"
	"stream-gateway/internal/subtitles"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubs struct {
	subs    []subtitles.Subtitle
	err     error
	videoID string
}

func (f *fakeSubs) Subtitles(_ context.Context, videoID string) ([]subtitles.Subtitle, error) {
	f.videoID = videoID
	return f.subs, f.err
}

var testLinks = Links{
	Base:        "https://gw.example.com",
	SecondLevel: "/api/vod/secondlevelmanifest",
	Subtitles:   "/api/vod/subtitles",
	Keys:        "/api/keydelivery",
}

func readMaster(t *testing.T) string {
	t.Helper()
	raw, err := os.ReadFile("testdata/master.m3u8")
	require.NoError(t, err)
	return string(raw)
}

func TestEngine_non_playlist_passes_through(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil, logger.Discard())
	for _, raw := range []string{"", "<html>oops</html>", "  "} {
		assert.Equal(t, raw, e.RewriteMaster(context.Background(), raw, masterSource, Options{Links: testLinks}))
		assert.Equal(t, raw, e.RewriteMedia(raw, masterSource, Options{Links: testLinks}))
	}
}

func TestEngine_RewriteMaster_routes_variants_through_gateway(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil, logger.Discard())
	out := e.RewriteMaster(context.Background(), readMaster(t), masterSource, Options{Token: "tok", Links: testLinks})

	want := testLinks.SecondLevelURL("https://vod.example.com/content/clip_01.ism/clip-audio=128000-video=1400000.m3u8", "tok")
	assert.Contains(t, out, want+"\n")
	assert.Contains(t, out, "1920x1080", "resolution kept unless requested")

	p := Parse(out)
	media := tagLines(p.Lines, "#EXT-X-MEDIA")
	require.Len(t, media, 3)
	assert.Equal(t, "nor", media[0].Attrs().Value("LANGUAGE"))
	assert.Equal(t, "YES", media[0].Attrs().Value("DEFAULT"))
	assert.Equal(t, "no-x-tolk", media[1].Attrs().Value("LANGUAGE"))
}

func TestEngine_RewriteMaster_max720p(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil, logger.Discard())
	out := e.RewriteMaster(context.Background(), readMaster(t), masterSource, Options{Max720p: true, Links: testLinks})
	assert.NotContains(t, out, "1920x1080")
	assert.Contains(t, out, "1280x720")
}

func TestEngine_RewriteMaster_subtitles(t *testing.T) {
	subs := &fakeSubs{subs: []subtitles.Subtitle{
		{URL: "https://subs.example.com/clip_01_nor.vtt", Label: "Norsk", LanguageCode: "nor", Type: "vtt"},
		{URL: "https://subs.example.com/clip_01_nor.srt", Label: "Norsk", LanguageCode: "nor", Type: "srt"},
	}}
	e := NewEngine(DefaultConfig(), subs, logger.Discard())

	out := e.RewriteMaster(context.Background(), readMaster(t), masterSource, Options{Subs: true, Links: testLinks})

	assert.Equal(t, "clip_01", subs.videoID)
	assert.Contains(t, out, `NAME="Norsk",DEFAULT=NO,AUTOSELECT=NO,FORCED=NO,LANGUAGE="nor",GROUP-ID="subs",URI="`+
		testLinks.SubtitleURL("https://subs.example.com/clip_01_nor.vtt")+`"`)
	assert.NotContains(t, out, url.QueryEscape("clip_01_nor.srt"))
	assert.Contains(t, out, `SUBTITLES="subs"`)
}

func TestEngine_RewriteMaster_subtitle_failure_is_skipped(t *testing.T) {
	subs := &fakeSubs{err: errors.New("bucket unavailable")}
	e := NewEngine(DefaultConfig(), subs, logger.Discard())

	out := e.RewriteMaster(context.Background(), readMaster(t), masterSource, Options{Subs: true, Links: testLinks})
	assert.NotContains(t, out, "TYPE=SUBTITLES")
	assert.True(t, IsPlaylist(out))
}

func TestEngine_RewriteMaster_audio_only_is_exclusive(t *testing.T) {
	subs := &fakeSubs{subs: []subtitles.Subtitle{{URL: "https://s/x.vtt", Label: "Norsk", LanguageCode: "nor", Type: "vtt"}}}
	e := NewEngine(DefaultConfig(), subs, logger.Discard())

	out := e.RewriteMaster(context.Background(), readMaster(t), masterSource,
		Options{AudioOnly: true, Subs: true, Language: "nor", Token: "tok", Links: testLinks})

	assert.True(t, strings.HasPrefix(out, "#EXTM3U\n#EXT-X-VERSION:7\n#EXT-X-INDEPENDENT-SEGMENTS\n"))
	assert.NotContains(t, out, "TYPE=SUBTITLES")
	assert.Equal(t, []string{
		testLinks.SecondLevelURL("https://vod.example.com/content/clip_01.ism/clip-audio=128000-lang=nor.m3u8", "tok"),
	}, uriLines(Parse(out).Lines))
	assert.Empty(t, subs.videoID)
}

func TestEngine_RewriteMaster_drops_audio_only_variants(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil, logger.Discard())
	out := e.RewriteMaster(context.Background(), readMaster(t), masterSource,
		Options{RemoveAudioOnlyVariants: true, Links: testLinks})
	assert.NotContains(t, out, url.QueryEscape("clip-audio=128000.m3u8"))
}

func TestEngine_RewriteMaster_signed_keeps_origin(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil, logger.Discard())
	out := e.RewriteMaster(context.Background(), readMaster(t), masterSource,
		Options{SignedURLs: true, Token: "a b", Links: testLinks})
	assert.Contains(t, out, "https://vod.example.com/content/clip_01.ism/clip-audio=128000-video=1400000.m3u8?token=a+b\n")
	assert.NotContains(t, out, testLinks.Base)
}

func TestEngine_RewriteMedia_keys_by_mode(t *testing.T) {
	raw, err := os.ReadFile("testdata/media.m3u8")
	require.NoError(t, err)
	e := NewEngine(DefaultConfig(), nil, logger.Discard())
	src := "https://live.example.com/hls/channel1/index.m3u8"

	hls := e.RewriteMedia(string(raw), src, Options{Mode: ModeHLS, Fixups: true, Token: "tok", Links: testLinks})
	assert.Contains(t, hls, `URI="https://gw.example.com/api/keydelivery/channel1/key-1042?token=tok"`)
	assert.Contains(t, hls, "https://live.example.com/hls/channel1/segment-1042.ts\n")
	assert.Contains(t, hls, "https://live.example.com/live/abs/segment-1044.ts\n")
	assert.Contains(t, hls, "#EXT-X-VERSION:7\n")
	assert.Contains(t, hls, "#EXT-X-TARGETDURATION:6\n")

	cmaf := e.RewriteMedia(string(raw), src, Options{Mode: ModeCMAF, Token: "tok", Links: testLinks})
	assert.Contains(t, cmaf, `URI="https://keys.example.com/hls/channel1/key-1042"`)
	assert.Contains(t, cmaf, "#EXT-X-VERSION:3\n")
}

func TestVideoID(t *testing.T) {
	assert.Equal(t, "clip_01", VideoID(masterSource, ".ism"))
	assert.Equal(t, "Clip", VideoID("https://h/a/Clip.ISM/manifest(format=m3u8-aapl)", ".ism"))
	assert.Equal(t, "", VideoID("https://h/a/clip.m3u8", ".ism"))
	assert.Equal(t, "", VideoID(masterSource, ""))
}

func TestParseMode(t *testing.T) {
	assert.Equal(t, ModeCMAF, ParseMode("CMAF"))
	assert.Equal(t, ModeHLS, ParseMode("hls"))
	assert.Equal(t, ModeHLS, ParseMode(""))
}
