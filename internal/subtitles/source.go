// Package subtitles finds the subtitle files published next to a video.
package subtitles

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"stream-gateway/internal/platform/cache"
	"stream-gateway/internal/platform/objectstore"
)

// DefaultTTL is how long a listing is reused.
const DefaultTTL = 60 * time.Second

// Subtitle is one subtitle file for a video.
type Subtitle struct {
	URL          string `json:"url"`
	Label        string `json:"label"`
	LanguageCode string `json:"languageCode"`
	Type         string `json:"type"`
	Filename     string `json:"filename"`
}

// Lister lists objects by prefix. *objectstore.S3 implements it.
type Lister interface {
	List(ctx context.Context, bucket, prefix string) ([]objectstore.Object, error)
}

// Source looks up subtitles in a bucket whose objects are named
// "{video}_{lang}.{ext}" and served publicly under baseURL.
type Source struct {
	lister        Lister
	bucket        string
	baseURL       string
	preferredType string
	trimSuffix    int
	loader        *cache.Loader
	ttl           time.Duration
}

// Option configures a Source.
type Option func(*Source)

// WithPreferredType keeps only files of this extension when any exist.
func WithPreferredType(ext string) Option {
	return func(s *Source) { s.preferredType = strings.TrimPrefix(ext, ".") }
}

// WithTrimSuffix drops n trailing characters of the video id before it is
// used as a listing prefix, for catalogs where video and subtitle names
// differ in a fixed-length suffix.
func WithTrimSuffix(n int) Option {
	return func(s *Source) { s.trimSuffix = n }
}

func WithTTL(d time.Duration) Option {
	return func(s *Source) {
		if d > 0 {
			s.ttl = d
		}
	}
}

func NewSource(lister Lister, bucket, baseURL string, loader *cache.Loader, opts ...Option) *Source {
	s := &Source{
		lister:        lister,
		bucket:        bucket,
		baseURL:       strings.TrimRight(baseURL, "/"),
		preferredType: "vtt",
		loader:        loader,
		ttl:           DefaultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subtitles returns the subtitles for videoID. If any file of the preferred
// type exists only those are returned.
func (s *Source) Subtitles(ctx context.Context, videoID string) ([]Subtitle, error) {
	prefix := videoID
	if s.trimSuffix > 0 && len(prefix) > s.trimSuffix {
		prefix = prefix[:len(prefix)-s.trimSuffix]
	}
	if prefix == "" {
		return nil, nil
	}

	raw, err := s.loader.GetOrLoad(ctx, "subtitles|"+prefix, s.ttl, func(ctx context.Context) ([]byte, error) {
		subs, err := s.list(ctx, prefix)
		if err != nil {
			return nil, err
		}
		return json.Marshal(subs)
	})
	if err != nil {
		return nil, err
	}

	var subs []Subtitle
	if err := json.Unmarshal(raw, &subs); err != nil {
		return nil, fmt.Errorf("decode cached subtitles: %w", err)
	}
	return subs, nil
}

func (s *Source) list(ctx context.Context, prefix string) ([]Subtitle, error) {
	objects, err := s.lister.List(ctx, s.bucket, prefix)
	if err != nil {
		return nil, fmt.Errorf("list subtitles for %s: %w", prefix, err)
	}

	subs := make([]Subtitle, 0, len(objects))
	preferred := 0
	for _, o := range objects {
		sub, ok := s.fromObject(o.Key)
		if !ok {
			continue
		}
		if sub.Type == s.preferredType {
			preferred++
		}
		subs = append(subs, sub)
	}

	if preferred == 0 || s.preferredType == "" {
		return subs, nil
	}
	out := subs[:0]
	for _, sub := range subs {
		if sub.Type == s.preferredType {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *Source) fromObject(key string) (Subtitle, bool) {
	name := path.Base(key)
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if ext == "" || len(stem) < 3 {
		return Subtitle{}, false
	}

	code := strings.ToLower(stem[len(stem)-3:])
	label := LanguageName(code)
	if label == "" {
		label = DefaultLabel
	}
	return Subtitle{
		URL:          s.baseURL + "/" + key,
		Label:        label,
		LanguageCode: code,
		Type:         strings.ToLower(strings.TrimPrefix(ext, ".")),
		Filename:     key,
	}, true
}
