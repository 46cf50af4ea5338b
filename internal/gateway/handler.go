// Package gateway exposes the manifest, key, license and URL issuing
// endpoints over HTTP.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"stream-gateway/internal/apperr"
	"stream-gateway/internal/auth"
	"stream-gateway/internal/license"
	"stream-gateway/internal/manifest"
	"stream-gateway/internal/platform/metrics"
	"stream-gateway/internal/token"

	"github.com/go-chi/chi/v5"
)

const (
	playlistContentType = "application/vnd.apple.mpegurl"
	keyContentType      = "binary/octet-stream"
	maxLicenseBody      = 64 << 10
)

// Route paths, also used to build the links embedded in playlists.
const (
	PathVODTopLevel     = "/api/vod/toplevelmanifest"
	PathVODSecondLevel  = "/api/vod/secondlevelmanifest"
	PathVODSubtitles    = "/api/vod/subtitles"
	PathLiveTopLevel    = "/api/live/top-level"
	PathLiveSecondLevel = "/api/live/second-level"
	PathKeyDelivery     = "/api/keydelivery"
	PathLicense         = "/api/widevine/getLicense"
	PathURLsLive        = "/api/urls/live"
	PathURLsLiveAudio   = "/api/urls/live-audio"
)

// URL issuing modes.
const (
	URLModeProxy  = "proxy"
	URLModeDirect = "direct"
	URLModeSigned = "signed"
)

// TokenIssuer issues streaming tokens. *token.Service implements it.
type TokenIssuer interface {
	IssueDefault() (string, time.Time, error)
}

// URLSigner signs origin URLs. *urlsign.Signer implements it.
type URLSigner interface {
	Sign(rawURL string, expiry time.Time) (string, error)
}

// BearerValidator authenticates viewers. *auth.Validator implements it.
type BearerValidator interface {
	Validate(ctx context.Context, raw string) (auth.Identity, error)
}

// Config holds the routing settings of the gateway.
type Config struct {
	// PublicBaseURL overrides the scheme and host of generated links.
	PublicBaseURL    string
	VODAllowedHosts  []string
	LiveURL          string
	LiveAllowedHosts []string
	LiveMode         manifest.Mode
	URLMode          string
}

// Handler serves the gateway endpoints.
type Handler struct {
	cfg       Config
	manifests *manifest.Service
	licenses  *license.Gateway
	tokens    TokenIssuer
	signer    URLSigner
	viewers   BearerValidator
	log       *slog.Logger
	metrics   *metrics.Metrics
}

// NewHandler returns a Handler. signer may be nil unless URLMode is signed.
// viewers may be nil to leave URL issuing open. Metrics may be nil.
func NewHandler(cfg Config, manifests *manifest.Service, licenses *license.Gateway, tokens TokenIssuer,
	signer URLSigner, viewers BearerValidator, log *slog.Logger, m *metrics.Metrics) *Handler {
	if cfg.LiveMode == "" {
		cfg.LiveMode = manifest.ModeHLS
	}
	if cfg.URLMode == "" {
		cfg.URLMode = URLModeProxy
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	return &Handler{
		cfg:       cfg,
		manifests: manifests,
		licenses:  licenses,
		tokens:    tokens,
		signer:    signer,
		viewers:   viewers,
		log:       log,
		metrics:   m,
	}
}

// VODTopLevel handles GET /api/vod/toplevelmanifest.
func (h *Handler) VODTopLevel(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	src := playbackURL(q)
	tok := token.Sanitize(q.Get("token"))
	if src == "" || tok == "" {
		h.writeError(w, r, errMissingParameters)
		return
	}
	if err := checkHost(src, h.cfg.VODAllowedHosts); err != nil {
		h.writeError(w, r, err)
		return
	}

	opts, err := h.masterOptions(r, manifest.ModeHLS)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	opts.Links = h.links(r, PathVODSecondLevel)

	out, err := h.manifests.TopLevel(r.Context(), src, tok, opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.log.Debug("vod master served", slog.String("playback_url", src))
	h.writePlaylist(w, out, noStore)
	h.countManifest("vod_master")
}

// VODSecondLevel handles GET /api/vod/secondlevelmanifest.
func (h *Handler) VODSecondLevel(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	src := playbackURL(q)
	tok := token.Sanitize(q.Get("token"))
	if src == "" || tok == "" {
		h.writeError(w, r, errMissingParameters)
		return
	}
	if err := checkHost(src, h.cfg.VODAllowedHosts); err != nil {
		h.writeError(w, r, err)
		return
	}

	opts := manifest.Options{Mode: manifest.ModeHLS, Links: h.links(r, PathVODSecondLevel)}
	out, err := h.manifests.SecondLevel(r.Context(), src, tok, opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writePlaylist(w, out, noStore)
	h.countManifest("vod_media")
}

// VODSubtitles handles GET /api/vod/subtitles.
func (h *Handler) VODSubtitles(w http.ResponseWriter, r *http.Request) {
	subs := r.URL.Query().Get("subs")
	if subs == "" {
		h.writeError(w, r, errMissingParameters)
		return
	}

	out, err := h.manifests.SubtitlePlaylist(subs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writePlaylist(w, out, subtitleMaxAge)
	h.countManifest("subtitles")
}

// LiveTopLevel handles GET /api/live/top-level. The configured live stream is
// served unless an allowed url is given.
func (h *Handler) LiveTopLevel(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tok := token.Sanitize(q.Get("token"))
	if tok == "" {
		h.writeError(w, r, errMissingParameters)
		return
	}

	src := h.cfg.LiveURL
	if u := playbackURL(q); u != "" {
		if err := checkHost(u, h.liveHosts()); err != nil {
			h.writeError(w, r, err)
			return
		}
		src = u
	}
	if src == "" {
		h.writeError(w, r, apperr.Client("no live stream configured"))
		return
	}

	opts, err := h.masterOptions(r, h.cfg.LiveMode)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	opts.Links = h.links(r, PathLiveSecondLevel)

	out, err := h.manifests.TopLevel(r.Context(), src, tok, opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writePlaylist(w, out, noStore)
	h.countManifest("live_master")
}

// LiveSecondLevel handles GET /api/live/second-level.
func (h *Handler) LiveSecondLevel(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	src := playbackURL(q)
	tok := token.Sanitize(q.Get("token"))
	if src == "" || tok == "" {
		h.writeError(w, r, errMissingParameters)
		return
	}
	if err := checkHost(src, h.liveHosts()); err != nil {
		h.writeError(w, r, err)
		return
	}

	opts := manifest.Options{
		Mode:   h.cfg.LiveMode,
		Fixups: h.cfg.LiveMode == manifest.ModeHLS,
		Links:  h.links(r, PathLiveSecondLevel),
	}
	out, err := h.manifests.SecondLevel(r.Context(), src, tok, opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writePlaylist(w, out, noStore)
	h.countManifest("live_media")
}

// PlaylistHead answers HEAD on playlist routes with the GET headers and no body.
func (h *Handler) PlaylistHead(w http.ResponseWriter, r *http.Request) {
	cc := noStore
	if r.URL.Path == PathVODSubtitles {
		cc = subtitleMaxAge
	}
	setPlaylistHeaders(w, cc)
	w.WriteHeader(http.StatusOK)
}

// KeyDelivery handles GET /api/keydelivery/{keyGroup}/{keyId}.
func (h *Handler) KeyDelivery(w http.ResponseWriter, r *http.Request) {
	group := chi.URLParam(r, "keyGroup")
	id := chi.URLParam(r, "keyId")

	key, err := h.licenses.Key(r.Context(), r.URL.Query().Get("token"), group, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", keyContentType)
	w.Header().Set("Cache-Control", noStore)
	w.Header().Set("Content-Length", strconv.Itoa(len(key)))
	w.WriteHeader(http.StatusOK)
	w.Write(key)
	if h.metrics != nil {
		h.metrics.IncKeyDeliveries()
	}
}

// License handles GET and POST /api/widevine/getLicense.
func (h *Handler) License(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxLicenseBody))
	if err != nil {
		h.writeError(w, r, apperr.Client("unreadable body"))
		return
	}

	keys, err := h.licenses.License(r.Context(), r.URL.Query().Get("token"), body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", noStore)
	writeJSON(w, http.StatusOK, keys)
	if h.metrics != nil {
		h.metrics.IncLicenses()
	}
}

// URLResponse is returned by the URL issuing endpoints. ExpiryTime is null
// when the caller supplied its own token.
type URLResponse struct {
	URL        string     `json:"url"`
	ExpiryTime *time.Time `json:"expiryTime"`
}

// URLsLive handles GET /api/urls/live.
func (h *Handler) URLsLive(w http.ResponseWriter, r *http.Request) {
	if err := h.authenticate(r); err != nil {
		h.writeError(w, r, err)
		return
	}

	var (
		tok    = token.Sanitize(r.URL.Query().Get("token"))
		expiry *time.Time
	)
	if tok == "" {
		issued, exp, err := h.tokens.IssueDefault()
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		tok, expiry = issued, &exp
	}

	u, err := h.liveURL(r, tok, expiry, nil)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, URLResponse{URL: u, ExpiryTime: expiry})
}

// URLsLiveAudio handles GET /api/urls/live-audio.
func (h *Handler) URLsLiveAudio(w http.ResponseWriter, r *http.Request) {
	if err := h.authenticate(r); err != nil {
		h.writeError(w, r, err)
		return
	}

	tok, exp, err := h.tokens.IssueDefault()
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	extra := url.Values{}
	extra.Set("audio_only", "true")
	if lang := lettersAndDigits(r.URL.Query().Get("language")); lang != "" {
		extra.Set("language", lang)
	}

	u, err := h.liveURL(r, tok, &exp, extra)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, URLResponse{URL: u, ExpiryTime: &exp})
}

// liveURL builds the playback URL for the configured live stream in the
// configured URL mode.
func (h *Handler) liveURL(r *http.Request, tok string, expiry *time.Time, extra url.Values) (string, error) {
	switch h.cfg.URLMode {
	case URLModeSigned, URLModeDirect:
		if h.cfg.LiveURL == "" {
			return "", apperr.Client("no live stream configured")
		}
		if h.cfg.URLMode == URLModeDirect || h.signer == nil {
			return h.cfg.LiveURL, nil
		}
		exp := time.Now().Add(token.DefaultLifetime)
		if expiry != nil {
			exp = *expiry
		}
		return h.signer.Sign(h.cfg.LiveURL, exp)
	default:
		q := url.Values{}
		for k, v := range extra {
			q[k] = v
		}
		q.Set("token", tok)
		return h.baseURL(r) + PathLiveTopLevel + "?" + q.Encode(), nil
	}
}

func (h *Handler) authenticate(r *http.Request) error {
	if h.viewers == nil {
		return nil
	}
	_, err := h.viewers.Validate(r.Context(), auth.BearerToken(r))
	return err
}

func (h *Handler) masterOptions(r *http.Request, mode manifest.Mode) (manifest.Options, error) {
	q := r.URL.Query()
	var err error
	opts := manifest.Options{
		Mode:       mode,
		Fixups:     mode == manifest.ModeHLS && r.URL.Path == PathLiveTopLevel,
		SignedURLs: h.cfg.URLMode == URLModeSigned,
		Language:   q.Get("language"),
	}
	if opts.Subs, err = boolParam(q, true, "subs"); err != nil {
		return opts, err
	}
	if opts.Max720p, err = boolParam(q, false, "max720p"); err != nil {
		return opts, err
	}
	if opts.AudioOnly, err = boolParam(q, false, "audioOnly", "audio_only"); err != nil {
		return opts, err
	}
	if opts.RemoveAudioOnlyVariants, err = boolParam(q, false, "removeAudioOnlyTrack"); err != nil {
		return opts, err
	}
	if isAppleTV(r.UserAgent()) {
		opts.RemoveAudioOnlyVariants = true
	}
	return opts, nil
}

func (h *Handler) links(r *http.Request, secondLevel string) manifest.Links {
	return manifest.Links{
		Base:        h.baseURL(r),
		SecondLevel: secondLevel,
		Subtitles:   PathVODSubtitles,
		Keys:        PathKeyDelivery,
	}
}

func (h *Handler) baseURL(r *http.Request) string {
	if h.cfg.PublicBaseURL != "" {
		return h.cfg.PublicBaseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p == "http" || p == "https" {
		scheme = p
	}
	return scheme + "://" + r.Host
}

// liveHosts is the live allow-list plus the host of the configured live URL.
func (h *Handler) liveHosts() []string {
	hosts := append([]string(nil), h.cfg.LiveAllowedHosts...)
	if u, err := url.Parse(h.cfg.LiveURL); err == nil && u.Hostname() != "" {
		hosts = append(hosts, u.Hostname())
	}
	return hosts
}

func (h *Handler) countManifest(kind string) {
	if h.metrics != nil {
		h.metrics.IncManifests(kind)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.Status(err)
	attrs := []any{
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.String("error", err.Error()),
	}

	switch {
	case errors.Is(err, context.Canceled):
		h.log.Debug("request cancelled", attrs...)
	case status >= http.StatusInternalServerError:
		h.log.Error("request failed", attrs...)
	default:
		h.log.Info("request rejected", attrs...)
	}

	if h.metrics != nil {
		switch apperr.KindOf(err) {
		case apperr.KindUnauthorized:
			h.metrics.IncTokenRejections()
		case apperr.KindUpstream, apperr.KindTimeout:
			h.metrics.IncUpstreamFailures()
		}
	}

	writeJSON(w, status, map[string]string{"error": apperr.Message(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
