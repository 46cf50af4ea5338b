package manifest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"stream-gateway/internal/apperr"
	"stream-gateway/internal/platform/cache"
)

// TokenPlaceholder stands in for the caller's token in cached master
// playlists so one cached rendition serves every viewer.
const TokenPlaceholder = "TOKENPLACEHOLDER"

// DefaultTTL is how long fetched and rewritten playlists are reused.
const DefaultTTL = 30 * time.Second

// Service fetches playlists from origin, rewrites them and caches the result.
type Service struct {
	engine  *Engine
	fetcher Fetcher
	loader  *cache.Loader
	ttl     time.Duration
}

func NewService(engine *Engine, fetcher Fetcher, loader *cache.Loader, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{engine: engine, fetcher: fetcher, loader: loader, ttl: ttl}
}

// TopLevel returns the rewritten master playlist at sourceURL with token
// embedded in every gateway reference.
func (s *Service) TopLevel(ctx context.Context, sourceURL, token string, opts Options) (string, error) {
	opts.Token = TokenPlaceholder
	key := "master|" + sourceURL + "|" + optionsKey(opts)

	v, err := s.loader.GetOrLoad(ctx, key, s.ttl, func(ctx context.Context) ([]byte, error) {
		raw, err := s.fetch(ctx, sourceURL)
		if err != nil {
			return nil, err
		}
		return []byte(s.engine.RewriteMaster(ctx, raw, sourceURL, opts)), nil
	})
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(string(v), TokenPlaceholder, url.QueryEscape(token)), nil
}

// SecondLevel returns the rewritten media playlist at sourceURL. The origin
// body is cached and the cheap rewrite runs per request.
func (s *Service) SecondLevel(ctx context.Context, sourceURL, token string, opts Options) (string, error) {
	v, err := s.loader.GetOrLoad(ctx, "raw|"+sourceURL, s.ttl, func(ctx context.Context) ([]byte, error) {
		raw, err := s.fetch(ctx, sourceURL)
		if err != nil {
			return nil, err
		}
		return []byte(raw), nil
	})
	if err != nil {
		return "", err
	}
	opts.Token = token
	return s.engine.RewriteMedia(string(v), sourceURL, opts), nil
}

// SubtitlePlaylist wraps a subtitle file URL in a media playlist.
func (s *Service) SubtitlePlaylist(fileURL string) (string, error) {
	u, err := url.Parse(fileURL)
	if err != nil || !isHTTP(fileURL) || u.Host == "" {
		return "", apperr.Client("invalid subtitle url")
	}
	return BuildSubtitlePlaylist(fileURL)
}

func (s *Service) fetch(ctx context.Context, sourceURL string) (string, error) {
	raw, err := s.fetcher.Fetch(ctx, sourceURL)
	if err == nil {
		return raw, nil
	}
	var fe *FetchError
	if errors.As(err, &fe) && fe.Timeout {
		return "", &apperr.Error{Kind: apperr.KindTimeout, Msg: "upstream timeout", Err: err}
	}
	return "", apperr.Upstream("fetch playlist", err)
}

func optionsKey(o Options) string {
	return fmt.Sprintf("subs=%t|720=%t|audio=%t|lang=%s|mode=%s|signed=%t|fix=%t|noaudiovar=%t|links=%s,%s,%s,%s",
		o.Subs, o.Max720p, o.AudioOnly, o.Language, o.Mode, o.SignedURLs, o.Fixups, o.RemoveAudioOnlyVariants,
		o.Links.Base, o.Links.SecondLevel, o.Links.Subtitles, o.Links.Keys)
}
