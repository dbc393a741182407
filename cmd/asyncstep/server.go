package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// metricsServer exposes the controller metrics while a step runs.
type metricsServer struct {
	addr       string
	router     *chi.Mux
	logger     logrus.FieldLogger
	httpServer *http.Server
}

func newMetricsServer(addr string, gatherer prometheus.Gatherer, logger logrus.FieldLogger) *metricsServer {
	srv := &metricsServer{
		addr:   addr,
		router: chi.NewRouter(),
		logger: logger,
	}
	srv.router.Use(middleware.Recoverer)
	srv.router.Get("/healthz", handleHealthz)
	srv.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return srv
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Start binds the listener and serves in the background.
func (s *metricsServer) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		s.logger.WithField("addr", listener.Addr().String()).Info("metrics server listening")
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("metrics server failed")
		}
	}()
	return nil
}

func (s *metricsServer) Shutdown(ctx context.Context) {
	if s.httpServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.WithError(err).Warn("metrics server shutdown")
	}
}
