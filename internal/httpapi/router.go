// Package httpapi exposes the session manager to a local UI over HTTP and a
// websocket event stream.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/park285/cheese-duel/internal/archive"
	"github.com/park285/cheese-duel/internal/obslog"
	"github.com/park285/cheese-duel/internal/pvp"
)

const requestTimeout = 15 * time.Second

type Options struct {
	Manager *pvp.Manager
	// Archive serves finished games. Nil disables the history route.
	Archive archive.Repository
	// OriginPatterns is passed to the websocket handshake.
	OriginPatterns []string
}

type Server struct {
	manager *pvp.Manager
	archive archive.Repository
	origins []string
}

func New(opts Options) *Server {
	return &Server{manager: opts.Manager, archive: opts.Archive, origins: opts.OriginPatterns}
}

// Router wires every route. The events stream is kept outside the request
// timeout because it lives as long as the client stays connected.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	timeout := middleware.Timeout(requestTimeout)
	r.Route("/sessions", func(r chi.Router) {
		r.With(timeout).Post("/", s.handleCreate)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/events", s.handleEvents)
			r.Group(func(r chi.Router) {
				r.Use(timeout)
				r.Get("/", s.handleGet)
				r.Post("/join", s.handleJoin)
				r.Post("/leave", s.handleLeave)
				r.Post("/moves", s.handleMove)
				r.Get("/automation", s.handleAutomationStatus)
				r.Put("/automation", s.handleAutomation)
			})
		})
	})
	r.With(timeout).Get("/players/{playerID}/games", s.handleHistory)
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		obslog.L().Debug("http_request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
