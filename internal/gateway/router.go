package gateway

import (
	"log/slog"
	"net/http"

	"stream-gateway/internal/platform/logger"
	"stream-gateway/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// corsMaxAge is how long, in seconds, browsers may cache a preflight answer.
const corsMaxAge = 600

// NewRouter mounts the gateway endpoints together with health, metrics and
// the request middleware. m may be nil.
func NewRouter(h *Handler, log *slog.Logger, m *metrics.Metrics) *chi.Mux {
	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(CORS())
	if m != nil {
		r.Use(metrics.RequestMiddleware(m))
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get(PathVODTopLevel, h.VODTopLevel)
	r.Get(PathVODSecondLevel, h.VODSecondLevel)
	r.Get(PathVODSubtitles, h.VODSubtitles)
	r.Head(PathVODTopLevel, h.PlaylistHead)
	r.Head(PathVODSecondLevel, h.PlaylistHead)
	r.Head(PathVODSubtitles, h.PlaylistHead)

	r.Get(PathLiveTopLevel, h.LiveTopLevel)
	r.Get(PathLiveSecondLevel, h.LiveSecondLevel)
	r.Head(PathLiveTopLevel, h.PlaylistHead)
	r.Head(PathLiveSecondLevel, h.PlaylistHead)

	r.Get(PathKeyDelivery+"/{keyGroup}/{keyId}", h.KeyDelivery)
	r.Get(PathLicense, h.License)
	r.Post(PathLicense, h.License)

	r.Get(PathURLsLive, h.URLsLive)
	r.Get(PathURLsLiveAudio, h.URLsLiveAudio)
	return r
}

// CORS lets browser players call the gateway from any origin. Preflight
// requests are answered before routing.
func CORS() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:       []string{"*"},
		AllowedMethods:       []string{http.MethodGet, http.MethodPost, http.MethodHead, http.MethodOptions},
		AllowedHeaders:       []string{"Authorization", "Content-Type"},
		MaxAge:               corsMaxAge,
		OptionsSuccessStatus: http.StatusNoContent,
	})
}
