package cache

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

const defaultLoadTimeout = 30 * time.Second

// LoadFunc produces the value for a missing key.
type LoadFunc func(ctx context.Context) ([]byte, error)

// Observer receives cache events. *metrics.Metrics implements it.
type Observer interface {
	CacheHit(name string)
	CacheMiss(name string)
	LoadStarted()
	LoadFinished()
}

// Loader is a get-or-populate front for a Store. Concurrent misses on the same
// key share one load. The load runs detached from the first caller's context,
// bounded by the load timeout, and each caller stops waiting when its own
// context ends. Failed loads are not cached.
type Loader struct {
	name     string
	store    Store
	group    singleflight.Group
	timeout  time.Duration
	observer Observer
	log      *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithTimeout bounds each load.
func WithTimeout(d time.Duration) Option {
	return func(l *Loader) {
		if d > 0 {
			l.timeout = d
		}
	}
}

func WithObserver(o Observer) Option {
	return func(l *Loader) { l.observer = o }
}

func WithLogger(log *slog.Logger) Option {
	return func(l *Loader) { l.log = log }
}

// NewLoader returns a Loader named name (used in metrics and logs) over store.
func NewLoader(name string, store Store, opts ...Option) *Loader {
	l := &Loader{
		name:    name,
		store:   store,
		timeout: defaultLoadTimeout,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// GetOrLoad returns the cached value for key, calling load on a miss and
// storing its result for ttl.
func (l *Loader) GetOrLoad(ctx context.Context, key string, ttl time.Duration, load LoadFunc) ([]byte, error) {
	if v, ok := l.lookup(ctx, key); ok {
		l.hit()
		return v, nil
	}
	l.miss()

	detached := context.WithoutCancel(ctx)
	ch := l.group.DoChan(key, func() (any, error) {
		if v, ok := l.lookup(detached, key); ok {
			return v, nil
		}
		if l.observer != nil {
			l.observer.LoadStarted()
			defer l.observer.LoadFinished()
		}

		lctx, cancel := context.WithTimeout(detached, l.timeout)
		defer cancel()

		v, err := load(lctx)
		if err != nil {
			return nil, err
		}
		if err := l.store.Set(lctx, key, v, ttl); err != nil {
			l.log.Warn("cache set failed",
				slog.String("cache", l.name),
				slog.String("error", err.Error()))
		}
		return v, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

// lookup treats store errors as misses so a flaky backend degrades to direct loads.
func (l *Loader) lookup(ctx context.Context, key string) ([]byte, bool) {
	v, ok, err := l.store.Get(ctx, key)
	if err != nil {
		l.log.Warn("cache get failed",
			slog.String("cache", l.name),
			slog.String("error", err.Error()))
		return nil, false
	}
	return v, ok
}

func (l *Loader) hit() {
	if l.observer != nil {
		l.observer.CacheHit(l.name)
	}
}

func (l *Loader) miss() {
	if l.observer != nil {
		l.observer.CacheMiss(l.name)
	}
}
