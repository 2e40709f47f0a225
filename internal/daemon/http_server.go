package daemon

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/hotpatch/internal/config"
	derrors "git.home.luguber.info/inful/hotpatch/internal/errors"
	"git.home.luguber.info/inful/hotpatch/internal/logfields"
	"git.home.luguber.info/inful/hotpatch/internal/metrics"
)

// StatusSource reports the daemon state served on /status.
type StatusSource interface {
	Status() Status
}

// MetricsServer serves Prometheus metrics, /healthz and /status.
type MetricsServer struct {
	cfg    config.MetricsConfig
	server *http.Server
	logger *slog.Logger
	addr   net.Addr
}

// NewMetricsServer creates the server. Nothing listens until Start.
func NewMetricsServer(cfg config.MetricsConfig, reg *prom.Registry, status StatusSource, logger *slog.Logger) *MetricsServer {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, metrics.HTTPHandler(reg))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status.Status()); err != nil {
			logger.Warn("Encoding status failed", logfields.Error(err))
		}
	})

	return &MetricsServer{
		cfg:    cfg,
		logger: logger,
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start binds the listener and serves in the background.
func (s *MetricsServer) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return derrors.Wrap(err, derrors.CategoryConfig, derrors.SeverityFatal,
			fmt.Sprintf("failed to listen on %s", s.cfg.Listen)).WithContext("listen", s.cfg.Listen)
	}
	s.addr = ln.Addr()
	s.logger.Info("Metrics server listening",
		slog.String("addr", s.addr.String()), logfields.Path(s.cfg.Path))

	go func() {
		if err := s.server.Serve(ln); err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Metrics server failed", logfields.Error(err))
		}
	}()
	return nil
}

// Addr is the bound address; nil before Start.
func (s *MetricsServer) Addr() net.Addr { return s.addr }

// Stop shuts the server down gracefully.
func (s *MetricsServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
