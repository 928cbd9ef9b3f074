// Package server exposes buildrelay's HTTP surface: the webhook ingest
// endpoint and content API on the main listener, health and metrics on the
// admin listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"git.home.luguber.info/inful/buildrelay/internal/config"
	"git.home.luguber.info/inful/buildrelay/internal/content"
	berrors "git.home.luguber.info/inful/buildrelay/internal/errors"
	smw "git.home.luguber.info/inful/buildrelay/internal/server/middleware"
	"git.home.luguber.info/inful/buildrelay/internal/store"
)

// IngestResult is the structured outcome of one webhook delivery, echoed back
// to the caller so provider dashboards show what the relay decided.
type IngestResult struct {
	Status          string `json:"status"` // processed, duplicate, replay, skipped
	EventsPublished int    `json:"eventsPublished,omitempty"`
	Strategy        string `json:"strategy,omitempty"`
	Reason          string `json:"reason,omitempty"`
	BatchID         string `json:"batchId,omitempty"`
	BuildID         string `json:"buildId,omitempty"`
}

// Ingestor runs the webhook pipeline; implemented by the daemon.
type Ingestor interface {
	IngestWebhook(ctx context.Context, provider string, body []byte, header http.Header) (IngestResult, error)
}

// ContentReader serves the read-only content API.
type ContentReader interface {
	ListContents(ctx context.Context, f store.ContentFilter) ([]content.Content, error)
	GetContent(ctx context.Context, id string) (*content.Content, error)
}

// Server manages the main and admin HTTP listeners.
type Server struct {
	cfg      config.ServerConfig
	ingestor Ingestor
	contents ContentReader
	metrics  http.Handler // nil disables /metrics

	logger       *slog.Logger
	errorAdapter *berrors.HTTPErrorAdapter
	mchain       func(http.Handler) http.Handler
	startTime    time.Time

	mainServer  *http.Server
	adminServer *http.Server
}

// New wires the HTTP surface. metricsHandler may be nil when metrics are
// disabled.
func New(cfg config.ServerConfig, ingestor Ingestor, contents ContentReader, metricsHandler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	adapter := berrors.NewHTTPErrorAdapter(logger)
	return &Server{
		cfg:          cfg,
		ingestor:     ingestor,
		contents:     contents,
		metrics:      metricsHandler,
		logger:       logger,
		errorAdapter: adapter,
		mchain:       smw.Chain(logger, adapter),
		startTime:    time.Now(),
	}
}

// Start binds both listeners before serving so port conflicts surface as one
// aggregate error instead of partial startup.
func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	mainLn, mainErr := lc.Listen(ctx, "tcp", s.cfg.ListenAddr)
	adminLn, adminErr := lc.Listen(ctx, "tcp", s.cfg.AdminAddr)
	if mainErr != nil || adminErr != nil {
		if mainLn != nil {
			_ = mainLn.Close()
		}
		if adminLn != nil {
			_ = adminLn.Close()
		}
		return fmt.Errorf("http startup failed: %w", errors.Join(mainErr, adminErr))
	}

	s.mainServer = &http.Server{
		Handler:      s.mchain(s.MainMux()),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.adminServer = &http.Server{
		Handler:      s.AdminMux(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.serve("main", s.mainServer, mainLn)
	s.serve("admin", s.adminServer, adminLn)

	s.logger.Info("HTTP servers started",
		slog.String("listen_addr", s.cfg.ListenAddr),
		slog.String("admin_addr", s.cfg.AdminAddr))
	return nil
}

// Stop gracefully shuts down both listeners, admin first.
func (s *Server) Stop(ctx context.Context) error {
	var errs []error
	if s.adminServer != nil {
		if err := s.adminServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("admin server shutdown: %w", err))
		}
	}
	if s.mainServer != nil {
		if err := s.mainServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("main server shutdown: %w", err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	s.logger.Info("HTTP servers stopped")
	return nil
}

func (s *Server) serve(kind string, srv *http.Server, ln net.Listener) {
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(fmt.Sprintf("%s server error", kind), "error", err)
		}
	}()
}

// MainMux routes the webhook and content endpoints. Exported for handler
// tests.
func (s *Server) MainMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhooks/{provider}", s.handleWebhook)
	mux.HandleFunc("GET /content", s.handleListContent)
	mux.HandleFunc("GET /content/{id}", s.handleGetContent)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// AdminMux routes health and metrics on the admin listener.
func (s *Server) AdminMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}
