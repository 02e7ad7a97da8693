package observability

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/yungbote/docprov-backend/internal/pkg/logger"
)

type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	aggregateOps       *prometheus.CounterVec
	aggregateLatency   *prometheus.HistogramVec
	aggregateConflicts *prometheus.CounterVec
	aggregateRetries   *prometheus.CounterVec

	activityTime *prometheus.HistogramVec
	eventsTotal  *prometheus.CounterVec
	dbStats      *prometheus.GaugeVec

	dbInterval time.Duration
}

// MetricsConfig is filled by the app config layer. Addr, when set, serves
// /metrics on its own listener in addition to the API router.
type MetricsConfig struct {
	Enabled               bool   `yaml:"enabled"`
	Addr                  string `yaml:"addr"`
	ScrapeIntervalSeconds int    `yaml:"scrape_interval_seconds"`
}

func (c MetricsConfig) scrapeInterval() time.Duration {
	if c.ScrapeIntervalSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.ScrapeIntervalSeconds) * time.Second
}

var (
	initOnce sync.Once
	instance *Metrics
)

// Init builds the process-wide metrics; nil when disabled.
func Init(log *logger.Logger, cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return nil
	}
	initOnce.Do(func() {
		instance = NewMetrics(prometheus.NewRegistry())
		instance.dbInterval = cfg.scrapeInterval()
		if log != nil {
			log.Info("metrics initialized", "addr", cfg.Addr)
		}
	})
	return instance
}

// NewMetrics registers every collector on reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return &Metrics{
		registry:   reg,
		dbInterval: 15 * time.Second,
		apiRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docprov_api_requests_total",
			Help: "Total API requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		apiLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docprov_api_request_duration_seconds",
			Help:    "API request latency in seconds by method/route/status.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"method", "route", "status"}),
		apiInflight: f.NewGauge(prometheus.GaugeOpts{
			Name: "docprov_api_inflight_requests",
			Help: "In-flight API requests.",
		}),
		aggregateOps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docprov_aggregate_operations_total",
			Help: "Aggregate write operations by operation and outcome code.",
		}, []string{"operation", "status"}),
		aggregateLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docprov_aggregate_operation_duration_seconds",
			Help:    "Aggregate write latency in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"operation", "status"}),
		aggregateConflicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docprov_aggregate_conflicts_total",
			Help: "Uniqueness conflicts seen by aggregate writes, including recovered races.",
		}, []string{"operation"}),
		aggregateRetries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docprov_aggregate_retries_total",
			Help: "Retryable failures seen by aggregate writes.",
		}, []string{"operation"}),
		activityTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docprov_worker_activity_duration_seconds",
			Help:    "Temporal activity duration by activity/status.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"activity", "status"}),
		eventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docprov_events_published_total",
			Help: "Processing events published on the bus by type/outcome.",
		}, []string{"type", "status"}),
		dbStats: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "docprov_db_pool",
			Help: "database/sql pool statistics.",
		}, []string{"stat"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route, status).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveAggregateOperation(op, status string, dur time.Duration) {
	if m == nil {
		return
	}
	op, status = orUnknown(op), orUnknown(status)
	m.aggregateOps.WithLabelValues(op, status).Inc()
	m.aggregateLatency.WithLabelValues(op, status).Observe(dur.Seconds())
}

func (m *Metrics) IncAggregateConflict(op string) {
	if m == nil {
		return
	}
	m.aggregateConflicts.WithLabelValues(orUnknown(op)).Inc()
}

func (m *Metrics) IncAggregateRetry(op string) {
	if m == nil {
		return
	}
	m.aggregateRetries.WithLabelValues(orUnknown(op)).Inc()
}

func (m *Metrics) ObserveActivity(activityName, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.activityTime.WithLabelValues(orUnknown(activityName), orUnknown(status)).Observe(dur.Seconds())
}

func (m *Metrics) IncEvent(eventType, status string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(orUnknown(eventType), orUnknown(status)).Inc()
}

var poolStats = map[string]func(sql.DBStats) float64{
	"open_connections":      func(s sql.DBStats) float64 { return float64(s.OpenConnections) },
	"in_use":                func(s sql.DBStats) float64 { return float64(s.InUse) },
	"idle":                  func(s sql.DBStats) float64 { return float64(s.Idle) },
	"wait_count":            func(s sql.DBStats) float64 { return float64(s.WaitCount) },
	"wait_duration_seconds": func(s sql.DBStats) float64 { return s.WaitDuration.Seconds() },
	"max_open_connections":  func(s sql.DBStats) float64 { return float64(s.MaxOpenConnections) },
}

// StartDBCollector samples pool stats of db until ctx is done.
func (m *Metrics) StartDBCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		if log != nil {
			log.Warn("metrics: db stats unavailable", "error", err)
		}
		return
	}
	go func() {
		ticker := time.NewTicker(m.dbInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.recordPool(sqlDB.Stats())
			}
		}
	}()
}

func (m *Metrics) recordPool(stats sql.DBStats) {
	for name, read := range poolStats {
		m.dbStats.WithLabelValues(name).Set(read(stats))
	}
}

func orUnknown(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	return s
}
