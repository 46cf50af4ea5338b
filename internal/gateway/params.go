package gateway

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"stream-gateway/internal/apperr"
)

const (
	noStore        = "no-store, max-age=0"
	subtitleMaxAge = "max-age=60"
)

var errMissingParameters = apperr.Client("missing parameters")

// playbackURL accepts both parameter names used by players.
func playbackURL(q url.Values) string {
	if u := q.Get("playbackUrl"); u != "" {
		return u
	}
	return q.Get("url")
}

// checkHost requires raw to be an absolute http(s) URL whose host is in allowed.
func checkHost(raw string, allowed []string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return &apperr.HostError{Allowed: allowed}
	}
	host := strings.ToLower(u.Hostname())
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimSpace(a), host) {
			return nil
		}
	}
	return &apperr.HostError{Host: host, Allowed: allowed}
}

// boolParam reads the first present name. Absent means def.
func boolParam(q url.Values, def bool, names ...string) (bool, error) {
	for _, name := range names {
		v := q.Get(name)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return def, apperr.Client("invalid value for %s", name)
		}
		return b, nil
	}
	return def, nil
}

func isAppleTV(userAgent string) bool {
	return strings.Contains(userAgent, "Apple TV")
}

func lettersAndDigits(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return -1
	}, s)
}

func setPlaylistHeaders(w http.ResponseWriter, cacheControl string) {
	w.Header().Set("Content-Type", playlistContentType)
	w.Header().Set("Cache-Control", cacheControl)
	w.Header().Set("X-Content-Type-Options", "nosniff")
}

func (h *Handler) writePlaylist(w http.ResponseWriter, body, cacheControl string) {
	setPlaylistHeaders(w, cacheControl)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}
