/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server bundles the HTTP API and the services behind it: the
// profile library, the waveform compiler and the device link.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/volund_bench/internal/config"
	"github.com/friendsincode/volund_bench/internal/db"
	"github.com/friendsincode/volund_bench/internal/events"
	"github.com/friendsincode/volund_bench/internal/link"
	"github.com/friendsincode/volund_bench/internal/logbuffer"
	"github.com/friendsincode/volund_bench/internal/store"
	"github.com/friendsincode/volund_bench/internal/telemetry"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db        *gorm.DB
	store     *store.Store
	bus       *events.Bus
	metrics   *telemetry.Metrics
	logBuffer *logbuffer.Buffer

	// newClient dials the configured device. Swapped in tests.
	newClient func() (*link.Client, error)

	ctrlMu     sync.Mutex
	controller *link.Controller

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		bus:       events.NewBus(),
		metrics:   telemetry.New(),
		logBuffer: logBuf,
	}
	srv.newClient = func() (*link.Client, error) {
		if cfg.DeviceTarget == "" {
			return nil, fmt.Errorf("no device configured: set VOLUND_DEVICE")
		}
		t, err := link.Dial(cfg.DeviceTarget, cfg.DeviceBaud)
		if err != nil {
			return nil, err
		}
		return link.NewClient(t, logger.With().Str("component", "link").Logger()), nil
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(srv.metrics.Middleware)
	router.Use(middleware.Timeout(60 * time.Second))
	srv.router = router

	if err := srv.initDependencies(); err != nil {
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	srv.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; frame-ancestors 'none'; base-uri 'self'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	profileStore, err := store.New(database)
	if err != nil {
		return err
	}
	s.store = profileStore

	if err := os.MkdirAll(s.cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory %s: %w", s.cfg.DataDir, err)
	}
	s.logger.Info().Str("path", s.cfg.DataDir).Msg("data directory ready")

	return nil
}

// controllerFor returns the device controller, dialing the device on
// first use.
func (s *Server) controllerFor() (*link.Controller, error) {
	s.ctrlMu.Lock()
	defer s.ctrlMu.Unlock()
	if s.controller != nil {
		return s.controller, nil
	}

	client, err := s.newClient()
	if err != nil {
		return nil, err
	}
	s.controller = link.NewController(client, s.bus, s.metrics,
		s.logger.With().Str("component", "device").Logger(), s.cfg.RunTimeout)
	s.DeferClose(func() error { return client.Close() })
	return s.controller, nil
}

// currentController returns the controller only if a device has already
// been connected.
func (s *Server) currentController() *link.Controller {
	s.ctrlMu.Lock()
	defer s.ctrlMu.Unlock()
	return s.controller
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Router exposes the handler tree, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// LogBuffer returns the server's log buffer for attaching to zerolog.
func (s *Server) LogBuffer() *logbuffer.Buffer {
	return s.logBuffer
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.runEventLogger(ctx)
	}()
}

// runEventLogger mirrors run lifecycle events into the structured log,
// so the log buffer carries a durable trail of every run even when no
// UI is watching the bus.
func (s *Server) runEventLogger(ctx context.Context) {
	watched := []events.EventType{
		events.EventRunStarted,
		events.EventRunPaused,
		events.EventRunResumed,
		events.EventRunStopped,
		events.EventRunDone,
		events.EventRunError,
		events.EventDeviceConnected,
		events.EventDeviceLost,
	}

	log := s.logger.With().Str("component", "events").Logger()

	var wg sync.WaitGroup
	for _, typ := range watched {
		ch := s.bus.Subscribe(typ)
		wg.Add(1)
		go func(typ events.EventType, ch events.Subscriber) {
			defer wg.Done()
			defer s.bus.Unsubscribe(typ, ch)
			for {
				select {
				case <-ctx.Done():
					return
				case payload := <-ch:
					ev := log.Info()
					for k, v := range payload {
						ev = ev.Interface(k, v)
					}
					ev.Str("event", string(typ)).Msg("bus event")
				}
			}
		}(typ, ch)
	}
	wg.Wait()
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	s.router.Handle("/metrics", s.metrics.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/compile", s.handleCompile)
		r.Get("/events", s.handleAvailableEvents)

		r.Route("/profiles", func(r chi.Router) {
			r.Get("/", s.handleProfilesList)
			r.Post("/", s.handleProfilesCreate)
			r.Route("/{profileID}", func(r chi.Router) {
				r.Get("/", s.handleProfilesGet)
				r.Put("/", s.handleProfilesUpdate)
				r.Delete("/", s.handleProfilesDelete)
			})
		})

		r.Route("/device", func(r chi.Router) {
			r.Post("/connect", s.handleDeviceConnect)
			r.Get("/status", s.handleDeviceStatus)
			r.Post("/deploy", s.handleDeviceDeploy)
			r.Post("/pause", s.handleDevicePause)
			r.Post("/resume", s.handleDeviceResume)
			r.Post("/stop", s.handleDeviceStop)
		})

		r.Route("/logs", func(r chi.Router) {
			r.Get("/", s.handleLogs)
			r.Get("/components", s.handleLogComponents)
			r.Get("/stats", s.handleLogStats)
		})
	})
}
