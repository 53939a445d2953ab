// Package server exposes the pool registry over HTTP: liveness, readiness
// backed by pool health checks, per-pool metrics and the Prometheus exporter.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/compozy/storage/engine/infra/dbpool"
	"github.com/compozy/storage/engine/infra/monitoring"
	appconfig "github.com/compozy/storage/pkg/config"
	"github.com/compozy/storage/pkg/logger"
)

const (
	httpReadTimeout        = 15 * time.Second
	httpWriteTimeout       = 15 * time.Second
	httpIdleTimeout        = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

type Server struct {
	cfg        *appconfig.ServerConfig
	registry   *dbpool.Registry
	monitoring *monitoring.Service
	router     *gin.Engine
}

// NewServer builds the router. mon may be nil, in which case no metrics
// endpoint or HTTP metrics middleware is installed.
func NewServer(
	ctx context.Context,
	cfg *appconfig.ServerConfig,
	registry *dbpool.Registry,
	mon *monitoring.Service,
) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config is required")
	}
	if registry == nil {
		return nil, errors.New("pool registry is required")
	}
	s := &Server{cfg: cfg, registry: registry, monitoring: mon}
	s.router = s.buildRouter(ctx)
	return s, nil
}

func (s *Server) buildRouter(ctx context.Context) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if s.monitoring != nil {
		router.Use(s.monitoring.GinMiddleware(ctx))
	}
	router.Use(LoggerMiddleware(logger.FromContext(ctx)))
	router.GET("/healthz", s.handleLiveness)
	router.GET("/readyz", s.handleReadiness)
	router.GET("/pools", s.handleListPools)
	router.GET("/pools/:backend", s.handleGetPool)
	if s.monitoring != nil {
		router.GET(s.monitoring.Path(), gin.WrapH(s.monitoring.ExporterHandler()))
	}
	return router
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr is the listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

func (s *Server) createHTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.Addr(),
		Handler:      s.router,
		ReadTimeout:  httpReadTimeout,
		WriteTimeout: httpWriteTimeout,
		IdleTimeout:  httpIdleTimeout,
	}
}

// Run serves until ctx is canceled and then shuts the listener down within
// ShutdownTimeout. Pools are left open; their owner closes them.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	log := logger.FromContext(ctx)
	srv := s.createHTTPServer()
	errCh := make(chan error, 1)
	go func() {
		log.Info("Server started", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	return s.shutdown(ctx, srv)
}

func (s *Server) shutdown(ctx context.Context, srv *http.Server) error {
	log := logger.FromContext(ctx)
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	log.Info("Shutting down server", "timeout", timeout)
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", "error", err)
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Info("Server shutdown completed")
	return nil
}
