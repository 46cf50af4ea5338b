package logger

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// scrubbedValue replaces secrets carried in query strings before they reach the log.
const scrubbedValue = "removed-from-logs"

var secretParams = []string{"token", "Signature", "Policy"}

// responseWriter wraps http.ResponseWriter to capture status code and size.
type responseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

// RequestLogger returns a chi-compatible middleware that logs each request
// with method, path, scrubbed query, status, duration_ms, and response size.
func RequestLogger(log *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrap := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrap, r)
			dur := time.Since(start)
			log.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("query", ScrubQuery(r.URL.RawQuery)),
				slog.Int("status", wrap.status),
				slog.Int("duration_ms", int(dur.Milliseconds())),
				slog.Int("size", wrap.size),
				slog.String("user_agent", r.UserAgent()),
			)
		})
	}
}

// ScrubQuery masks token and signature values in a raw query string, including
// those nested inside an encoded url or playbackUrl parameter.
func ScrubQuery(raw string) string {
	if raw == "" {
		return ""
	}
	q, err := url.ParseQuery(raw)
	if err != nil {
		return scrubbedValue
	}
	for key, values := range q {
		for i, v := range values {
			if isSecret(key) {
				values[i] = scrubbedValue
				continue
			}
			if u, err := url.Parse(v); err == nil && u.IsAbs() && u.RawQuery != "" {
				u.RawQuery = ScrubQuery(u.RawQuery)
				values[i] = u.String()
			}
		}
		q[key] = values
	}
	return q.Encode()
}

func isSecret(key string) bool {
	for _, s := range secretParams {
		if key == s {
			return true
		}
	}
	return false
}
