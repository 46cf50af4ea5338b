package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_round_trip_is_byte_identical(t *testing.T) {
	cases := map[string]string{
		"lf":               "#EXTM3U\n#EXT-X-VERSION:3\nseg.ts\n",
		"crlf":             "#EXTM3U\r\n#EXT-X-VERSION:3\r\nseg.ts\r\n",
		"no final newline": "#EXTM3U\n#EXT-X-VERSION:3\nseg.ts",
		"bom":              bom + "#EXTM3U\nseg.ts\n",
		"mixed endings":    "#EXTM3U\r\n#EXT-X-VERSION:3\nseg.ts\r\n",
		"blank lines":      "#EXTM3U\n\n\n# comment\nseg.ts\n\n",
		"trailing cr":      "#EXTM3U\nseg.ts\r",
		"empty":            "",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, in, Parse(in).String())
		})
	}
}

func TestParse_classifies_lines(t *testing.T) {
	p := Parse("#EXTM3U\n# note\n\n#EXT-X-MEDIA:TYPE=AUDIO\nvideo.m3u8\n")
	require.Len(t, p.Lines, 5)

	kinds := []Kind{Tag, Comment, Blank, Tag, URI}
	for i, k := range kinds {
		assert.Equal(t, k, p.Lines[i].Kind, "line %d", i)
	}
	assert.Equal(t, "#EXT-X-MEDIA", p.Lines[3].TagName())
	assert.Equal(t, "TYPE=AUDIO", p.Lines[3].TagValue())
	assert.Equal(t, "video.m3u8", p.Lines[4].URL())
}

func TestPlaylist_added_lines_use_dominant_eol(t *testing.T) {
	p := Parse("#EXTM3U\r\nseg.ts\r\n")
	p.Lines = append(p.Lines, NewLine("#EXT-X-ENDLIST"))
	assert.Equal(t, "#EXTM3U\r\nseg.ts\r\n#EXT-X-ENDLIST\r\n", p.String())
}

func TestIsPlaylist(t *testing.T) {
	assert.True(t, IsPlaylist("#EXTM3U\n"))
	assert.True(t, IsPlaylist(bom+"#EXTM3U\n"))
	assert.True(t, IsPlaylist("\r\n  #EXTM3U\n"))
	assert.False(t, IsPlaylist(""))
	assert.False(t, IsPlaylist("<html>Not Found</html>"))
}
