// Package server exposes the status API: health, readiness, metrics, the
// recent-record window and a websocket live tail.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/gesk/internal/ingest"
	"github.com/danmuck/gesk/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	shutdownTimeout = 5 * time.Second
	wsWriteTimeout  = 5 * time.Second
	wsPingPeriod    = 30 * time.Second
)

// StatusProvider is satisfied by *ingest.Supervisor.
type StatusProvider interface {
	Status() ingest.Status
}

type Config struct {
	Addr        string
	CORSOrigins []string
	Version     string
}

type Server struct {
	cfg      Config
	router   *gin.Engine
	status   StatusProvider
	tail     *Tail
	started  time.Time
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

func New(cfg Config, status StatusProvider, tail *Tail) *Server {
	observability.RegisterMetrics()
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if tail == nil {
		tail = NewTail(DefaultTailSize)
	}
	logger := observability.Component("server").With().Str("addr", cfg.Addr).Logger()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(logger))
	r.Use(observability.RequestMetricsMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CORSOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		cfg:     cfg,
		router:  r,
		status:  status,
		tail:    tail,
		started: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Tail() *Tail {
	return s.tail
}

// Serve listens on cfg.Addr until ctx is cancelled, then shuts down
// gracefully. A clean shutdown returns nil.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Msg("server.listen")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = s.tail.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info().Msg("server.stopped")
	return nil
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
