package alert

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"netwatch/internal/client"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/version"
	"github.com/sirupsen/logrus"
)

// PrometheusExporter exposes the pipeline metrics over HTTP
type PrometheusExporter struct {
	server   *http.Server
	metrics  *client.PrometheusMetrics
	registry *prometheus.Registry
	logger   *logrus.Logger
	port     string
}

// Start serves until ctx is cancelled, then shuts the server down
func (e *PrometheusExporter) Start(ctx context.Context) error {
	e.logger.Infof("Starting Prometheus exporter on port %s", e.port)
	e.logger.Infof("Metrics available at: http://localhost:%s/metrics", e.port)

	go func() {
		if err := e.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			e.logger.Errorf("Failed to start Prometheus exporter: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	e.logger.Info("Shutting down Prometheus exporter...")
	return e.server.Shutdown(shutdownCtx)
}

func (e *PrometheusExporter) GetMetrics() *client.PrometheusMetrics {
	return e.metrics
}

func (e *PrometheusExporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler returns the mux serving /metrics, /health and the index page
func (e *PrometheusExporter) Handler() http.Handler {
	return e.server.Handler
}

// RegisterCustomMetrics registers the pipeline metrics with a registry
func RegisterCustomMetrics(registry prometheus.Registerer, metrics *client.PrometheusMetrics) error {
	for _, c := range metrics.Collectors() {
		if err := registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// CreateCustomRegistry creates a registry with the Go, process and build collectors
func CreateCustomRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(collectors.NewBuildInfoCollector())

	return registry
}

// NewPrometheusExporterWithCustomRegistry builds an exporter whose metrics live in a private registry
func NewPrometheusExporterWithCustomRegistry(port string, logger *logrus.Logger) (*PrometheusExporter, error) {
	metrics := client.NewPrometheusMetrics()
	registry := CreateCustomRegistry()

	if err := RegisterCustomMetrics(registry, metrics); err != nil {
		return nil, fmt.Errorf("failed to register custom metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `
			<h1>NetWatch Exporter</h1>
			<p>%s</p>
			<p><a href="/metrics">Metrics</a></p>
			<p><a href="/health">Health Check</a></p>
		`, version.Info())
	})

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
	}

	return &PrometheusExporter{
		server:   server,
		metrics:  metrics,
		registry: registry,
		logger:   logger,
		port:     port,
	}, nil
}
