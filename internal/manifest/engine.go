package manifest

import (
	"context"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"stream-gateway/internal/subtitles"
)

// Mode selects the packaging-specific parts of the pipeline.
type Mode string

const (
	ModeHLS  Mode = "hls"
	ModeCMAF Mode = "cmaf"
)

// ParseMode maps a config or query value to a Mode, defaulting to HLS.
func ParseMode(s string) Mode {
	if strings.EqualFold(s, string(ModeCMAF)) {
		return ModeCMAF
	}
	return ModeHLS
}

// Links builds the gateway URLs embedded in rewritten playlists.
type Links struct {
	// Base is the gateway origin, e.g. "https://gw.example.com".
	Base        string
	SecondLevel string
	Subtitles   string
	Keys        string
}

// SecondLevelURL routes a media playlist through the gateway.
func (l Links) SecondLevelURL(originalURL, token string) string {
	return l.Base + l.SecondLevel + "?url=" + url.QueryEscape(originalURL) + "&token=" + url.QueryEscape(token)
}

// SubtitleURL routes a subtitle file through the subtitle playlist endpoint.
func (l Links) SubtitleURL(fileURL string) string {
	return l.Base + l.Subtitles + "?subs=" + url.QueryEscape(fileURL)
}

// KeyURL is the authenticated key delivery URL for (group, id).
func (l Links) KeyURL(group, id, token string) string {
	return l.Base + l.Keys + "/" + url.PathEscape(group) + "/" + url.PathEscape(id) + "?token=" + url.QueryEscape(token)
}

// Options are the per-request rewrite switches.
type Options struct {
	Subs      bool
	Max720p   bool
	AudioOnly bool
	Language  string
	Mode      Mode
	// Token is embedded in every routed reference.
	Token string
	// SignedURLs leaves sub-playlist references on the origin and only
	// attaches the token.
	SignedURLs bool
	// Fixups applies the configured whole-line substitutions.
	Fixups bool
	// RemoveAudioOnlyVariants drops single-codec audio variants.
	RemoveAudioOnlyVariants bool
	Links                   Links
}

// Config holds the deployment-wide rewrite settings.
type Config struct {
	PrimaryLanguage     string
	InterpreterLanguage string
	DropResolution      string
	SubtitleFormat      string
	ContainerExt        string
	AudioOnlyExclusive  bool
	Fixups              map[string]string
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		PrimaryLanguage:     "nor",
		InterpreterLanguage: "no-x-tolk",
		DropResolution:      "1920x1080",
		SubtitleFormat:      "vtt",
		ContainerExt:        ".ism",
		AudioOnlyExclusive:  true,
		Fixups: map[string]string{
			"#EXT-X-VERSION:3":         "#EXT-X-VERSION:7",
			"#EXT-X-TARGETDURATION:12": "#EXT-X-TARGETDURATION:6",
		},
	}
}

// SubtitleLister finds subtitles for a video id. *subtitles.Source implements it.
type SubtitleLister interface {
	Subtitles(ctx context.Context, videoID string) ([]subtitles.Subtitle, error)
}

// Engine runs the master and media rewrite pipelines.
type Engine struct {
	cfg  Config
	subs SubtitleLister
	log  *slog.Logger
}

// NewEngine returns an Engine. subs may be nil, which disables subtitle injection.
func NewEngine(cfg Config, subs SubtitleLister, log *slog.Logger) *Engine {
	return &Engine{cfg: cfg, subs: subs, log: log}
}

// RewriteMaster rewrites a master playlist fetched from sourceURL. Input that
// is not a playlist is returned unchanged.
func (e *Engine) RewriteMaster(ctx context.Context, raw, sourceURL string, opts Options) string {
	if !IsPlaylist(raw) {
		return raw
	}
	if opts.AudioOnly && e.cfg.AudioOnlyExclusive {
		opts.Subs = false
		opts.Max720p = false
	}

	p := Parse(raw)
	stages := []Transform{
		Absolutize(sourceURL),
		ProxySubManifests(e.router(opts)),
	}
	if opts.Max720p && e.cfg.DropResolution != "" {
		stages = append(stages, RemoveResolution(e.cfg.DropResolution))
	}
	if e.cfg.PrimaryLanguage != "" {
		stages = append(stages, NormalizeAudioDefaults(e.cfg.PrimaryLanguage))
	}
	if e.cfg.InterpreterLanguage != "" && e.cfg.PrimaryLanguage != "" {
		stages = append(stages, ReorderInterpreter(e.cfg.InterpreterLanguage, e.cfg.PrimaryLanguage))
	}
	if opts.RemoveAudioOnlyVariants && !opts.AudioOnly {
		stages = append(stages, DropAudioOnlyVariants())
	}
	if opts.Subs {
		stages = append(stages, e.subtitleStage(ctx, sourceURL, opts.Links))
	}
	if opts.AudioOnly {
		stages = append(stages, AudioOnly(opts.Language))
	}
	if opts.Fixups {
		stages = append(stages, ApplyFixups(e.cfg.Fixups))
	}

	p.Lines = Apply(p.Lines, stages...)
	return p.String()
}

// RewriteMedia rewrites a media playlist fetched from sourceURL.
func (e *Engine) RewriteMedia(raw, sourceURL string, opts Options) string {
	if !IsPlaylist(raw) {
		return raw
	}

	p := Parse(raw)
	stages := []Transform{Absolutize(sourceURL)}
	if opts.Mode != ModeCMAF {
		stages = append(stages, RewriteKeyURIs(func(group, id string) string {
			return opts.Links.KeyURL(group, id, opts.Token)
		}))
	}
	if opts.Fixups {
		stages = append(stages, ApplyFixups(e.cfg.Fixups))
	}

	p.Lines = Apply(p.Lines, stages...)
	return p.String()
}

func (e *Engine) router(opts Options) func(string) string {
	if opts.SignedURLs {
		return func(abs string) string {
			return appendQuery(abs, "token="+url.QueryEscape(opts.Token))
		}
	}
	return func(abs string) string {
		return opts.Links.SecondLevelURL(abs, opts.Token)
	}
}

// subtitleStage looks up subtitles for the video behind sourceURL. Lookup
// failures are logged and skip the stage.
func (e *Engine) subtitleStage(ctx context.Context, sourceURL string, links Links) Transform {
	if e.subs == nil {
		return nil
	}
	videoID := VideoID(sourceURL, e.cfg.ContainerExt)
	if videoID == "" {
		return nil
	}

	subs, err := e.subs.Subtitles(ctx, videoID)
	if err != nil {
		e.log.Warn("subtitle lookup failed",
			slog.String("video_id", videoID),
			slog.String("error", err.Error()))
		return nil
	}

	var tracks []SubtitleTrack
	for _, s := range subs {
		if e.cfg.SubtitleFormat != "" && s.Type != e.cfg.SubtitleFormat {
			continue
		}
		tracks = append(tracks, SubtitleTrack{
			Name:     s.Label,
			Language: s.LanguageCode,
			URI:      links.SubtitleURL(s.URL),
		})
	}
	return AppendSubtitles(tracks)
}

// VideoID returns the name of the path segment carrying containerExt, without
// the extension: "https://h/a/clip_01.ism/manifest(format=m3u8)" gives "clip_01".
func VideoID(sourceURL, containerExt string) string {
	if containerExt == "" {
		return ""
	}
	u, err := url.Parse(sourceURL)
	if err != nil {
		return ""
	}
	for _, seg := range strings.Split(u.Path, "/") {
		if strings.EqualFold(path.Ext(seg), containerExt) {
			return strings.TrimSuffix(seg, path.Ext(seg))
		}
	}
	return ""
}
