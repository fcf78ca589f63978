package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opsdeck/scribe/internal/config"
	"github.com/opsdeck/scribe/internal/dictation"
	"github.com/opsdeck/scribe/internal/storage/sqlite"
	"github.com/opsdeck/scribe/internal/websocket"
	"github.com/opsdeck/scribe/pkg/logger"
)

// Router wires the API handlers into an HTTP mux
type Router struct {
	handler *Handler
	logger  *logger.Logger
}

// NewRouter creates a new API router
func NewRouter(dictationService *dictation.Service, transcriptStorage *sqlite.TranscriptStorage, cfg *config.Config, log *logger.Logger, wsServer *websocket.Server) *Router {
	return &Router{
		handler: NewHandler(dictationService, transcriptStorage, cfg, log, wsServer),
		logger:  log.Named("api-router"),
	}
}

// Routes returns the HTTP handler for all API routes
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", rt.handler.GetHealth)

		r.Route("/dictation", func(r chi.Router) {
			r.Post("/start", rt.handler.StartDictation)
			r.Post("/stop", rt.handler.StopDictation)
			r.Put("/speaker", rt.handler.SetSpeaker)
			r.Get("/status", rt.handler.GetDictationStatus)
			r.Get("/transcript", rt.handler.GetLiveTranscript)
		})

		r.Route("/transcripts", func(r chi.Router) {
			r.Get("/", rt.handler.GetAllTranscripts)
			r.Get("/speaker/{speaker}", rt.handler.GetTranscriptsBySpeaker)
			r.Get("/session/{id}", rt.handler.GetTranscriptsBySession)
			r.Get("/range", rt.handler.GetTranscriptsByTimeRange)
		})

		r.Get("/ws", rt.handler.HandleWebSocket)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
