package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAttributes_quoted_commas(t *testing.T) {
	raw := `BANDWIDTH=1500000,CODECS="avc1.4D401F,mp4a.40.2",RESOLUTION=1280x720,URI="a=1,b.m3u8"`
	a := ParseAttributes(raw)
	require.Len(t, a, 4)

	assert.Equal(t, "avc1.4D401F,mp4a.40.2", a.Value("CODECS"))
	assert.Equal(t, "1280x720", a.Value("RESOLUTION"))
	assert.Equal(t, "a=1,b.m3u8", a.Value("URI"))
	assert.True(t, a.Quoted("CODECS"))
	assert.False(t, a.Quoted("RESOLUTION"))
	assert.Equal(t, raw, a.String())
}

func TestAttributes_Set_keeps_order(t *testing.T) {
	a := ParseAttributes(`TYPE=AUDIO,DEFAULT=YES,NAME="Norsk"`)
	a = a.Set("DEFAULT", "NO").SetQuoted("URI", "x.m3u8")
	assert.Equal(t, `TYPE=AUDIO,DEFAULT=NO,NAME="Norsk",URI="x.m3u8"`, a.String())
}

func TestAttributes_SetQuoted_strips_quotes_and_newlines(t *testing.T) {
	a := Attributes{}.SetQuoted("NAME", "Bad\"\nName")
	assert.Equal(t, `NAME="BadName"`, a.String())
}

func TestAttributes_missing_key(t *testing.T) {
	a := ParseAttributes("TYPE=AUDIO")
	_, ok := a.Get("URI")
	assert.False(t, ok)
	assert.False(t, a.Has("URI"))
	assert.Equal(t, "", a.Value("URI"))
}
