package manifest

import (
	"net/url"
	"strings"
)

// Transform is one rewrite stage. A stage that finds nothing to change
// returns its input unchanged.
type Transform func([]Line) []Line

// Apply runs stages in order. Nil stages are skipped.
func Apply(lines []Line, stages ...Transform) []Line {
	for _, t := range stages {
		if t != nil {
			lines = t(lines)
		}
	}
	return lines
}

// rewriteRefs calls fn for every URI line and every URI attribute of a tag
// accepted by tagFilter, replacing the reference with fn's result.
func rewriteRefs(lines []Line, tagFilter func(Line) bool, uriLines bool, fn func(string) string) []Line {
	out := make([]Line, len(lines))
	for i, l := range lines {
		switch {
		case l.Kind == URI && uriLines:
			if ref := fn(l.URL()); ref != l.URL() {
				l = l.WithText(ref)
			}
		case l.Kind == Tag && tagFilter(l):
			attrs := l.Attrs()
			if uri, ok := attrs.Get("URI"); ok {
				if ref := fn(uri); ref != uri {
					l = l.WithAttrs(attrs.SetQuoted("URI", ref))
				}
			}
		}
		out[i] = l
	}
	return out
}

func anyTag(Line) bool { return true }

// Absolutize resolves every relative reference against sourceURL: URI lines
// and URI="..." attributes become base + "/" + ref, where base is sourceURL
// without its query, cut at the last "/". Root-relative references resolve
// against the origin. A query on sourceURL is carried over to each resolved
// reference. Absolute references are left alone, so the stage is idempotent.
func Absolutize(sourceURL string) Transform {
	src, err := url.Parse(sourceURL)
	if err != nil || !src.IsAbs() || src.Host == "" {
		return nil
	}
	origin := src.Scheme + "://" + src.Host
	base := origin + src.EscapedPath()
	if i := strings.LastIndex(base, "/"); i >= len(origin) {
		base = base[:i]
	}
	query := src.RawQuery

	resolve := func(ref string) string {
		if ref == "" || isAbsolute(ref) {
			return ref
		}
		var abs string
		switch {
		case strings.HasPrefix(ref, "//"):
			abs = src.Scheme + ":" + ref
		case strings.HasPrefix(ref, "/"):
			abs = origin + ref
		default:
			abs = base + "/" + ref
		}
		if query != "" {
			abs = appendQuery(abs, query)
		}
		return abs
	}

	return func(lines []Line) []Line {
		return rewriteRefs(lines, anyTag, true, resolve)
	}
}

// isAbsolute reports whether ref needs no resolution. Key system schemes
// such as skd:// and inline data: URIs count as absolute.
func isAbsolute(ref string) bool {
	if isHTTP(ref) {
		return true
	}
	lower := strings.ToLower(ref)
	return strings.HasPrefix(lower, "data:") || strings.HasPrefix(lower, "skd:")
}

func isHTTP(ref string) bool {
	lower := strings.ToLower(ref)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func appendQuery(ref, query string) string {
	if strings.Contains(ref, "?") {
		return ref + "&" + query
	}
	return ref + "?" + query
}

// ProxySubManifests passes every absolute reference to a media or subtitle
// playlist through route: variant URI lines and the URI attributes of
// #EXT-X-MEDIA and #EXT-X-I-FRAME-STREAM-INF.
func ProxySubManifests(route func(absoluteURL string) string) Transform {
	playlistTag := func(l Line) bool {
		return l.Is("#EXT-X-MEDIA") || l.Is("#EXT-X-I-FRAME-STREAM-INF")
	}
	wrap := func(ref string) string {
		if !isHTTP(ref) {
			return ref
		}
		return route(ref)
	}
	return func(lines []Line) []Line {
		return rewriteRefs(lines, playlistTag, true, wrap)
	}
}

// RemoveResolution drops each #EXT-X-STREAM-INF with the given RESOLUTION
// together with the URI line that follows it, and each
// #EXT-X-I-FRAME-STREAM-INF of that resolution.
func RemoveResolution(resolution string) Transform {
	return func(lines []Line) []Line {
		out := make([]Line, 0, len(lines))
		dropNextURI := false
		for _, l := range lines {
			switch {
			case dropNextURI && l.Kind == URI:
				dropNextURI = false
				continue
			case l.Is("#EXT-X-STREAM-INF") && l.Attrs().Value("RESOLUTION") == resolution:
				dropNextURI = true
				continue
			case l.Is("#EXT-X-I-FRAME-STREAM-INF") && l.Attrs().Value("RESOLUTION") == resolution:
				continue
			}
			out = append(out, l)
		}
		if len(out) == len(lines) {
			return lines
		}
		return out
	}
}

// NormalizeAudioDefaults makes every audio rendition DEFAULT=NO,AUTOSELECT=YES
// and then marks the renditions in primaryLanguage DEFAULT=YES.
func NormalizeAudioDefaults(primaryLanguage string) Transform {
	return func(lines []Line) []Line {
		out := make([]Line, len(lines))
		for i, l := range lines {
			if isMedia(l, "AUDIO") {
				attrs := l.Attrs()
				def := "NO"
				if strings.EqualFold(attrs.Value("LANGUAGE"), primaryLanguage) {
					def = "YES"
				}
				attrs = attrs.Set("DEFAULT", def).Set("AUTOSELECT", "YES")
				l = l.WithAttrs(attrs)
			}
			out[i] = l
		}
		return out
	}
}

// ReorderInterpreter moves the first rendition in interpreterLanguage directly
// after the first rendition of the same type in primaryLanguage. When either
// is missing the input is returned unchanged.
func ReorderInterpreter(interpreterLanguage, primaryLanguage string) Transform {
	return func(lines []Line) []Line {
		interp := -1
		for i, l := range lines {
			if l.Is("#EXT-X-MEDIA") && strings.EqualFold(l.Attrs().Value("LANGUAGE"), interpreterLanguage) {
				interp = i
				break
			}
		}
		if interp < 0 {
			return lines
		}
		mediaType := lines[interp].Attrs().Value("TYPE")

		primary, fallback := -1, -1
		for i, l := range lines {
			if i == interp || !l.Is("#EXT-X-MEDIA") {
				continue
			}
			attrs := l.Attrs()
			if !strings.EqualFold(attrs.Value("LANGUAGE"), primaryLanguage) {
				continue
			}
			if attrs.Value("TYPE") == mediaType {
				primary = i
				break
			}
			if fallback < 0 {
				fallback = i
			}
		}
		if primary < 0 {
			primary = fallback
		}
		if primary < 0 || primary+1 == interp {
			return lines
		}

		moved := lines[interp]
		out := make([]Line, 0, len(lines))
		for i, l := range lines {
			if i == interp {
				continue
			}
			out = append(out, l)
			if i == primary {
				out = append(out, moved)
			}
		}
		return out
	}
}

// SubtitleTrack is a subtitle rendition to add to a master playlist.
type SubtitleTrack struct {
	Name     string
	Language string
	URI      string
}

// SubtitleGroup is the GROUP-ID of injected subtitle renditions.
const SubtitleGroup = "subs"

// AppendSubtitles adds one #EXT-X-MEDIA:TYPE=SUBTITLES line per track and,
// when any were added, points every variant that names an AUDIO group and no
// SUBTITLES group at the new group.
func AppendSubtitles(tracks []SubtitleTrack) Transform {
	return func(lines []Line) []Line {
		if len(tracks) == 0 {
			return lines
		}
		out := make([]Line, 0, len(lines)+len(tracks))
		for _, l := range lines {
			if l.Is("#EXT-X-STREAM-INF") {
				attrs := l.Attrs()
				if attrs.Has("AUDIO") && !attrs.Has("SUBTITLES") {
					l = l.WithAttrs(attrs.SetQuoted("SUBTITLES", SubtitleGroup))
				}
			}
			out = append(out, l)
		}
		for _, t := range tracks {
			attrs := Attributes{}.
				Set("TYPE", "SUBTITLES").
				SetQuoted("NAME", t.Name).
				Set("DEFAULT", "NO").
				Set("AUTOSELECT", "NO").
				Set("FORCED", "NO").
				SetQuoted("LANGUAGE", t.Language).
				SetQuoted("GROUP-ID", SubtitleGroup).
				SetQuoted("URI", t.URI)
			out = append(out, NewLine("#EXT-X-MEDIA:"+attrs.String()))
		}
		return out
	}
}

// AudioOnly replaces the playlist with one listing each audio rendition as a
// variant, optionally only those in language. The codec is the audio part of
// the first variant CODECS list that names more than one codec.
func AudioOnly(language string) Transform {
	language = sanitizeLanguage(language)
	return func(lines []Line) []Line {
		codec := ""
		var uris []string
		for _, l := range lines {
			if codec == "" && l.Is("#EXT-X-STREAM-INF") {
				if _, audio, ok := strings.Cut(l.Attrs().Value("CODECS"), ","); ok {
					codec = audio
				}
			}
			if !isMedia(l, "AUDIO") {
				continue
			}
			attrs := l.Attrs()
			uri, ok := attrs.Get("URI")
			if !ok || uri == "" {
				continue
			}
			if language != "" && !strings.EqualFold(attrs.Value("LANGUAGE"), language) {
				continue
			}
			uris = append(uris, uri)
		}
		return Parse(BuildAudioOnlyPlaylist(codec, uris)).Lines
	}
}

func sanitizeLanguage(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		}
		return -1
	}, s)
}

// DropAudioOnlyVariants removes variants whose CODECS lists a single audio
// codec, together with their URI line. Some set-top players refuse to start
// when such a variant is present.
func DropAudioOnlyVariants() Transform {
	return func(lines []Line) []Line {
		out := make([]Line, 0, len(lines))
		dropNextURI := false
		for _, l := range lines {
			if dropNextURI && l.Kind == URI {
				dropNextURI = false
				continue
			}
			if l.Is("#EXT-X-STREAM-INF") {
				codecs := l.Attrs().Value("CODECS")
				if codecs != "" && !strings.Contains(codecs, ",") && strings.HasPrefix(codecs, "mp4a") {
					dropNextURI = true
					continue
				}
			}
			out = append(out, l)
		}
		if len(out) == len(lines) {
			return lines
		}
		return out
	}
}

// ApplyFixups replaces whole lines that exactly match a key of subs.
func ApplyFixups(subs map[string]string) Transform {
	return func(lines []Line) []Line {
		if len(subs) == 0 {
			return lines
		}
		out := make([]Line, len(lines))
		for i, l := range lines {
			if repl, ok := subs[strings.TrimSpace(l.Text)]; ok {
				l = l.WithText(repl)
			}
			out[i] = l
		}
		return out
	}
}

// RewriteKeyURIs points every #EXT-X-KEY with METHOD=AES-128 at keyURL,
// called with the last two path segments of the origin key URI. Keys whose
// URI has fewer than two segments are left alone.
func RewriteKeyURIs(keyURL func(group, id string) string) Transform {
	return func(lines []Line) []Line {
		out := make([]Line, len(lines))
		for i, l := range lines {
			if l.Is("#EXT-X-KEY") {
				attrs := l.Attrs()
				if attrs.Value("METHOD") == "AES-128" {
					if group, id, ok := keyPath(attrs.Value("URI")); ok {
						l = l.WithAttrs(attrs.SetQuoted("URI", keyURL(group, id)))
					}
				}
			}
			out[i] = l
		}
		return out
	}
}

func keyPath(uri string) (group, id string, ok bool) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", false
	}
	var segs []string
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	if len(segs) < 2 {
		return "", "", false
	}
	return segs[len(segs)-2], segs[len(segs)-1], true
}

func isMedia(l Line, mediaType string) bool {
	return l.Is("#EXT-X-MEDIA") && l.Attrs().Value("TYPE") == mediaType
}
