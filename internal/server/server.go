// Package server exposes a jar over HTTP.
//
// Routes:
//
//	GET    /healthz                  liveness and jar size
//	GET    /api/jar                  serialized jar text
//	GET    /api/reservations         all reservations as JSON
//	GET    /api/services/{service}   one service's reservations
//	POST   /api/reservations         body is reservation lines
//	DELETE /api/reservations?line=   drop one reservation
//	GET    /api/events               server-sent change events
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mmr-tortoise/portjar/internal/jar"
	"github.com/mmr-tortoise/portjar/internal/logger"
)

// requestTimeout applies to every route except the event stream.
const requestTimeout = 5 * time.Second

// Server wraps the HTTP server and the jar it serves.
type Server struct {
	http    *http.Server
	jar     *jar.Jar
	logger  logger.Logger
	started time.Time

	// closing is closed when Shutdown begins, which ends open event
	// streams that Shutdown would otherwise wait on.
	closing   chan struct{}
	closeOnce sync.Once
}

// New builds the router and HTTP server for j.
func New(addr string, j *jar.Jar, log logger.Logger) *Server {
	s := &Server{
		jar:     j,
		logger:  log,
		started: time.Now(),
		closing: make(chan struct{}),
	}

	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	s.http.RegisterOnShutdown(func() {
		s.closeOnce.Do(func() { close(s.closing) })
	})
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(accessLog(s.logger))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Get("/healthz", s.handleHealthz)
		r.Route("/api", func(r chi.Router) {
			r.Get("/jar", s.handleJar)
			r.Get("/reservations", s.handleList)
			r.Post("/reservations", s.handleReserve)
			r.Delete("/reservations", s.handleDrop)
			r.Get("/services/{service}", s.handleService)
		})
	})
	r.Get("/api/events", s.handleEvents)

	return r
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start runs the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Serve accepts connections on l until Stop is called.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Infof("HTTP server listening on %s", l.Addr())
	err := s.http.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts down the server with the provided context deadline.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("HTTP server shutting down...")
	return s.http.Shutdown(ctx)
}
