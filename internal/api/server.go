package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"traffic-analytics/internal/analytics"
	"traffic-analytics/internal/config"
)

const (
	maxUploadBytes  = 64 << 20
	shutdownTimeout = 30 * time.Second
)

type Server struct {
	router   *mux.Router
	registry *Registry
	analyzer *analytics.Analyzer
	store    Store
	statsTTL time.Duration
}

func NewServer(store Store, cfg config.Config) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		registry: NewRegistry(store, cfg.StreamOptions()),
		analyzer: analytics.NewAnalyzer(cfg.AlphabetSize),
		store:    store,
		statsTTL: cfg.StatsTTL,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(requestID, instrument)

	s.router.HandleFunc("/health", s.healthHandler).Methods("GET")
	s.router.HandleFunc("/sensors/{id}/readings", s.uploadHandler).Methods("POST")
	s.router.HandleFunc("/sensors/{id}", s.streamInfoHandler).Methods("GET")
	s.router.HandleFunc("/sensors/{id}/features", s.featuresHandler).Methods("GET")
	s.router.HandleFunc("/sensors/{id}/window", s.windowHandler).Methods("GET")
	s.router.HandleFunc("/sensors/{id}/point", s.pointHandler).Methods("GET")
	s.router.HandleFunc("/sensors/{id}/frame", s.frameHandler).Methods("GET")
	s.router.HandleFunc("/sensors/{id}/statistics", s.statisticsHandler).Methods("GET")
	s.router.HandleFunc("/sensors/{id}/distribution", s.distributionHandler).Methods("GET")
	s.router.HandleFunc("/sensors/{id}/resample", s.resampleHandler).Methods("POST")
	s.router.HandleFunc("/analytics/current", s.analyticsHandler).Methods("GET")
	s.router.Handle("/metrics/prometheus", promhttp.Handler())
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until SIGINT or SIGTERM, then drains in-flight requests and
// releases the store.
func (s *Server) Run(addr string) error {
	srv := &http.Server{
		Addr:           addr,
		Handler:        s.router,
		ReadTimeout:    time.Minute,
		WriteTimeout:   time.Minute,
		IdleTimeout:    2 * time.Minute,
		MaxHeaderBytes: 1 << 20,
	}

	errc := make(chan error, 1)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	go func() {
		<-quit
		log.Println("Server is shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		errc <- s.shutdown(ctx, srv)
	}()

	log.Printf("Serving %d routes at %s", s.routeCount(), addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("could not listen on %s: %w", addr, err)
	}

	err := <-errc
	log.Println("Server stopped")
	return err
}

// shutdown stops srv and closes the store when it holds a connection.
func (s *Server) shutdown(ctx context.Context, srv *http.Server) error {
	srv.SetKeepAlivesEnabled(false)
	var errs []error
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("graceful shutdown: %w", err))
	}
	if c, ok := s.store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (s *Server) routeCount() int {
	n := 0
	s.router.Walk(func(*mux.Route, *mux.Router, []*mux.Route) error {
		n++
		return nil
	})
	return n
}
