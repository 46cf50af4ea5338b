// Package manifest rewrites HLS and CMAF playlists line by line so every
// reference a player follows leads back through the gateway.
package manifest

import (
	"strings"
)

// Kind classifies a playlist line.
type Kind int

const (
	Blank Kind = iota
	Comment
	Tag
	URI
)

const bom = "\ufeff"

// Line is one playlist line without its line terminator.
type Line struct {
	Kind Kind
	Text string
	eol  string
}

// NewLine classifies text as a playlist line.
func NewLine(text string) Line {
	return Line{Kind: classify(text), Text: text}
}

func classify(text string) Kind {
	t := strings.TrimSpace(text)
	switch {
	case t == "":
		return Blank
	case strings.HasPrefix(t, "#EXT"):
		return Tag
	case strings.HasPrefix(t, "#"):
		return Comment
	default:
		return URI
	}
}

// TagName returns "#EXT-X-MEDIA" for "#EXT-X-MEDIA:TYPE=AUDIO,...".
func (l Line) TagName() string {
	if l.Kind != Tag {
		return ""
	}
	t := strings.TrimSpace(l.Text)
	if i := strings.IndexByte(t, ':'); i >= 0 {
		return t[:i]
	}
	return t
}

// TagValue returns everything after the first colon of a tag line.
func (l Line) TagValue() string {
	if l.Kind != Tag {
		return ""
	}
	t := strings.TrimSpace(l.Text)
	if i := strings.IndexByte(t, ':'); i >= 0 {
		return t[i+1:]
	}
	return ""
}

// Is reports whether l is the tag name.
func (l Line) Is(name string) bool {
	return l.TagName() == name
}

// Attrs parses the attribute list of a tag line.
func (l Line) Attrs() Attributes {
	return ParseAttributes(l.TagValue())
}

// WithAttrs returns l with its attribute list replaced by a.
func (l Line) WithAttrs(a Attributes) Line {
	l.Text = l.TagName() + ":" + a.String()
	return l
}

// URL returns the trimmed reference of a URI line.
func (l Line) URL() string {
	return strings.TrimSpace(l.Text)
}

// WithText returns l carrying text, keeping its line terminator.
func (l Line) WithText(text string) Line {
	l.Text = text
	l.Kind = classify(text)
	return l
}

// Playlist is a parsed playlist that serializes back to its exact input when
// no line was changed.
type Playlist struct {
	Lines    []Line
	eol      string
	trailing bool
	bom      bool
}

// Parse splits raw into classified lines. Line terminators, a byte order
// mark and the presence of a final newline are remembered.
func Parse(raw string) *Playlist {
	p := &Playlist{eol: "\n", trailing: true}
	if strings.HasPrefix(raw, bom) {
		p.bom = true
		raw = raw[len(bom):]
	}
	if raw == "" {
		return p
	}
	if strings.Contains(raw, "\r\n") {
		p.eol = "\r\n"
	}

	parts := strings.Split(raw, "\n")
	if parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	} else {
		p.trailing = false
	}

	p.Lines = make([]Line, 0, len(parts))
	for i, part := range parts {
		eol := "\n"
		switch {
		case i == len(parts)-1 && !p.trailing:
			eol = ""
		case strings.HasSuffix(part, "\r"):
			part = part[:len(part)-1]
			eol = "\r\n"
		}
		l := NewLine(part)
		l.eol = eol
		p.Lines = append(p.Lines, l)
	}
	return p
}

// String serializes the playlist. Lines added by transforms use the
// playlist's dominant line terminator.
func (p *Playlist) String() string {
	var b strings.Builder
	if p.bom {
		b.WriteString(bom)
	}
	last := len(p.Lines) - 1
	for i, l := range p.Lines {
		b.WriteString(l.Text)
		if i == last && !p.trailing {
			break
		}
		if l.eol != "" {
			b.WriteString(l.eol)
		} else {
			b.WriteString(p.eol)
		}
	}
	return b.String()
}

// IsPlaylist reports whether raw starts with #EXTM3U, ignoring a byte order
// mark and leading whitespace.
func IsPlaylist(raw string) bool {
	raw = strings.TrimPrefix(raw, bom)
	return strings.HasPrefix(strings.TrimLeft(raw, " \t\r\n"), "#EXTM3U")
}
