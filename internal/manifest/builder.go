package manifest

import (
	"fmt"
	"strings"

	"github.com/grafov/m3u8"
)

const (
	// audioOnlyBandwidth is the BANDWIDTH advertised for synthesized audio variants.
	audioOnlyBandwidth = 128000
	// subtitleDuration spans any realistic programme with one segment.
	subtitleDuration = 10000
)

// BuildAudioOnlyPlaylist writes a master playlist whose variants are the
// given audio playlists. An empty codec omits the CODECS attribute.
func BuildAudioOnlyPlaylist(codec string, uris []string) string {
	var b strings.Builder

	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:7\n")
	b.WriteString("#EXT-X-INDEPENDENT-SEGMENTS\n")

	for _, uri := range uris {
		if codec != "" {
			b.WriteString(fmt.Sprintf("#EXT-X-STREAM-INF:BANDWIDTH=%d,CODECS=%s\n", audioOnlyBandwidth, quote(codec)))
		} else {
			b.WriteString(fmt.Sprintf("#EXT-X-STREAM-INF:BANDWIDTH=%d\n", audioOnlyBandwidth))
		}
		b.WriteString(uri)
		b.WriteString("\n")
	}

	return b.String()
}

// BuildSubtitlePlaylist wraps a single subtitle file in a closed VOD media
// playlist so players can select it as a subtitle rendition.
func BuildSubtitlePlaylist(fileURL string) (string, error) {
	p, err := m3u8.NewMediaPlaylist(0, 1)
	if err != nil {
		return "", fmt.Errorf("new subtitle playlist: %w", err)
	}
	p.SetVersion(4)
	p.SeqNo = 1
	p.MediaType = m3u8.VOD
	if err := p.Append(fileURL, subtitleDuration, ""); err != nil {
		return "", fmt.Errorf("append subtitle segment: %w", err)
	}
	p.Close()
	return p.Encode().String(), nil
}
