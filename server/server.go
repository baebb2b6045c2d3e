// Package server exposes the HTTP API and the websocket delivery endpoint.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tidebell/tidebell/am"
	"github.com/tidebell/tidebell/crawl"
	"github.com/tidebell/tidebell/errors"
	"github.com/tidebell/tidebell/schedule"
	"github.com/tidebell/tidebell/session"
)

// Server wires the schedule service, session registry and crawl trigger
// behind HTTP.
type Server struct {
	cfg      *am.Config
	service  *schedule.Service
	sessions *session.Registry
	crawler  *crawl.Demo
	logger   *zap.SugaredLogger

	httpServer *http.Server

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a server. crawler may be nil, disabling the crawl trigger.
func New(cfg *am.Config, service *schedule.Service, sessions *session.Registry, crawler *crawl.Demo, log *zap.SugaredLogger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg,
		service:  service,
		sessions: sessions,
		crawler:  crawler,
		logger:   log.Named("server"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// routes builds the request mux.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.corsMiddleware(s.HandleWebSocket))
	mux.HandleFunc("GET /healthz", s.corsMiddleware(s.HandleHealth))

	mux.HandleFunc("POST /api/schedules", s.corsMiddleware(s.HandleCreateSchedule))
	mux.HandleFunc("GET /api/schedules", s.corsMiddleware(s.HandleListSchedules))
	mux.HandleFunc("GET /api/schedules/{id}", s.corsMiddleware(s.HandleGetSchedule))
	mux.HandleFunc("PUT /api/schedules/{id}", s.corsMiddleware(s.HandleUpdateSchedule))
	mux.HandleFunc("DELETE /api/schedules/{id}", s.corsMiddleware(s.HandleCancelSchedule))

	mux.HandleFunc("POST /api/crawl", s.corsMiddleware(s.HandleCrawl))

	return mux
}

// corsMiddleware applies the configured allowed origins to API responses.
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.cfg.Server.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// Start begins serving on the configured port. Blocks until the listener
// fails or Stop is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infow("Server listening", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "http server failed")
	}
	return nil
}

// Stop drains the server: stop accepting requests, close websocket sessions,
// wait for pumps to exit.
func (s *Server) Stop(ctx context.Context) error {
	s.cancel()
	s.sessions.CloseAll()

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.wg.Wait()

	s.logger.Infow("Server stopped")
	return err
}
