package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"marmobot/internal/core"
)

const (
	serviceName     = "marmobot"
	shutdownTimeout = 10 * time.Second
	statusTimeout   = 5 * time.Second
)

// StatusSource reports the playback session shown by /api/queue.
type StatusSource interface {
	Status(ctx context.Context) (core.SessionStatus, error)
}

type Server struct {
	config   *core.ServerConfig
	logger   *zap.Logger
	server   *http.Server
	registry *prometheus.Registry
	metrics  *Metrics
}

type Metrics struct {
	CommandsTotal        *prometheus.CounterVec
	TracksStartedTotal   prometheus.Counter
	ResolutionsTotal     *prometheus.CounterVec
	ResolutionDuration   prometheus.Histogram
	CacheLookupsTotal    *prometheus.CounterVec
	ConnectAttemptsTotal *prometheus.CounterVec
	QueueLength          prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marmobot_commands_total",
				Help: "Total number of chat commands handled",
			},
			[]string{"command", "status"},
		),
		TracksStartedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "marmobot_tracks_started_total",
				Help: "Total number of tracks that started streaming",
			},
		),
		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marmobot_resolutions_total",
				Help: "Total number of song resolutions",
			},
			[]string{"outcome"},
		),
		ResolutionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "marmobot_resolution_duration_seconds",
				Help:    "Time spent resolving songs",
				Buckets: prometheus.DefBuckets,
			},
		),
		CacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marmobot_metadata_cache_lookups_total",
				Help: "Metadata cache lookups by result",
			},
			[]string{"result"},
		),
		ConnectAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marmobot_voice_connect_attempts_total",
				Help: "Voice connection attempts by outcome",
			},
			[]string{"outcome"},
		),
		QueueLength: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "marmobot_queue_length",
				Help: "Number of tracks waiting in the queue",
			},
		),
	}
}

// NewServer creates the HTTP server. Metrics go to a private registry so
// several servers can coexist in one process.
func NewServer(config *core.ServerConfig, status StatusSource, logger *zap.Logger) *Server {
	metrics := newMetrics()
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		metrics.CommandsTotal,
		metrics.TracksStartedTotal,
		metrics.ResolutionsTotal,
		metrics.ResolutionDuration,
		metrics.CacheLookupsTotal,
		metrics.ConnectAttemptsTotal,
		metrics.QueueLength,
	)

	mux := setupRoutes(registry, status, logger)

	return &Server{
		config:   config,
		logger:   logger,
		server:   createHTTPServer(config, mux),
		registry: registry,
		metrics:  metrics,
	}
}

func createHTTPServer(config *core.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
}

func setupRoutes(gatherer prometheus.Gatherer, status StatusSource, logger *zap.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", jsonStatusHandler("ok", logger))
	mux.HandleFunc("/readyz", jsonStatusHandler("ready", logger))
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/api/queue", queueHandler(status, logger))
	mux.HandleFunc("/", homeHandler(logger))

	return mux
}

func jsonStatusHandler(status string, logger *zap.Logger) http.HandlerFunc {
	body := fmt.Sprintf(`{"status":%q,"service":%q}`, status, serviceName)
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(body)); err != nil {
			logger.Debug("Failed to write status response", zap.Error(err))
		}
	}
}

// queueResponse is the /api/queue payload.
type queueResponse struct {
	core.SessionStatus
	QueueLength   int    `json:"queue_length"`
	QueueDuration string `json:"queue_duration"`
}

func queueHandler(status StatusSource, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if status == nil {
			http.Error(w, "playback engine not available", http.StatusServiceUnavailable)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), statusTimeout)
		defer cancel()

		snapshot, err := status.Status(ctx)
		if err != nil {
			logger.Warn("Failed to read session status", zap.Error(err))
			code := http.StatusInternalServerError
			if errors.Is(err, core.ErrEngineStopped) {
				code = http.StatusServiceUnavailable
			}
			http.Error(w, err.Error(), code)
			return
		}

		var total time.Duration
		for _, entry := range snapshot.Queue {
			total += entry.Track.Duration
		}
		if snapshot.Queue == nil {
			snapshot.Queue = []core.QueueEntry{}
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Queue-Length", strconv.Itoa(len(snapshot.Queue)))
		if err := json.NewEncoder(w).Encode(queueResponse{
			SessionStatus: snapshot,
			QueueLength:   len(snapshot.Queue),
			QueueDuration: core.FormatDuration(total),
		}); err != nil {
			logger.Debug("Failed to write queue response", zap.Error(err))
		}
	}
}

func homeHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>MarmoBot</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; }
        .header { color: #333; }
        .endpoint { margin: 10px 0; }
        .endpoint a { text-decoration: none; color: #0066cc; }
        .endpoint a:hover { text-decoration: underline; }
    </style>
</head>
<body>
    <h1 class="header">🎵 MarmoBot</h1>
    <p>Voice channel music queue</p>

    <h2>Endpoints</h2>
    <div class="endpoint">🎶 <a href="/api/queue">Queue</a> - Current session as JSON</div>
    <div class="endpoint">📊 <a href="/metrics">Metrics</a> - Prometheus metrics</div>
    <div class="endpoint">💚 <a href="/healthz">Health</a> - Health check</div>
    <div class="endpoint">✅ <a href="/readyz">Ready</a> - Readiness check</div>
</body>
</html>`)); err != nil {
			logger.Debug("Failed to write home page", zap.Error(err))
		}
	}
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server",
		zap.String("addr", s.server.Addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
		}
	}()

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// GetMetrics exposes the collectors registered on the private registry.
func (s *Server) GetMetrics() *Metrics {
	return s.metrics
}

// RecordCommand counts a handled command by name and status.
func (s *Server) RecordCommand(name, status string) {
	s.metrics.CommandsTotal.WithLabelValues(name, status).Inc()
}

// RecordResolution counts a resolution and observes its latency.
func (s *Server) RecordResolution(outcome string, duration time.Duration) {
	s.metrics.ResolutionsTotal.WithLabelValues(outcome).Inc()
	if duration > 0 {
		s.metrics.ResolutionDuration.Observe(duration.Seconds())
	}
}

// RecordCacheLookup counts a metadata cache hit or miss.
func (s *Server) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	s.metrics.CacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordConnectAttempt counts a voice connection attempt by outcome.
func (s *Server) RecordConnectAttempt(outcome string) {
	s.metrics.ConnectAttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordTrackStarted counts a stream start.
func (s *Server) RecordTrackStarted() {
	s.metrics.TracksStartedTotal.Inc()
}

// SetQueueLength sets the queue length gauge.
func (s *Server) SetQueueLength(n int) {
	s.metrics.QueueLength.Set(float64(n))
}

var _ core.Metrics = (*Server)(nil)
