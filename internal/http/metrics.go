package http

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dropDatabas3/portal/internal/http/middlewares"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portal",
		Name:      "http_requests_total",
		Help:      "Número total de requests procesadas por el dashboard",
	}, []string{"method", "path", "status"})

	httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "portal",
		Name:      "http_request_duration_seconds",
		Help:      "Latencia de los requests HTTP",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	httpInflight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "portal",
		Name:      "http_inflight_requests",
		Help:      "Requests en vuelo por método y ruta",
	}, []string{"method", "path"})
)

// MetricsConfig agrupa dependencias necesarias para exponer /metrics.
type MetricsConfig struct {
	Registry prometheus.Registerer
	// Gatherer sirve /metrics; si es nil se usa el global.
	Gatherer prometheus.Gatherer
	// StoragePool expone el pool del storage postgres, si se usa ese driver.
	StoragePool func() *pgxpool.Pool
}

// RegisterMetrics registra las métricas HTTP (y el collector del pool de
// storage, si hay) y devuelve el handler para /metrics.
func RegisterMetrics(cfg MetricsConfig) (http.Handler, error) {
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{httpRequestsTotal, httpRequestDuration, httpInflight} {
		if err := registerCollector(registry, c); err != nil {
			return nil, err
		}
	}
	if cfg.StoragePool != nil {
		if err := registerCollector(registry, newPoolCollector(cfg.StoragePool)); err != nil {
			return nil, err
		}
	}
	if cfg.Gatherer != nil {
		return promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}), nil
	}
	return promhttp.Handler(), nil
}

// WithMetrics instrumenta requests HTTP (contadores, latencia, inflight).
func WithMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := strings.ToUpper(r.Method)
		pathLabel := normalizePath(r.URL.Path)

		httpInflight.WithLabelValues(method, pathLabel).Inc()
		start := time.Now()

		rec := middlewares.NewStatusRecorder(w)
		defer func() {
			httpInflight.WithLabelValues(method, pathLabel).Dec()
			httpRequestDuration.WithLabelValues(method, pathLabel).Observe(time.Since(start).Seconds())
			httpRequestsTotal.WithLabelValues(method, pathLabel, strconv.Itoa(rec.Status)).Inc()
		}()

		next.ServeHTTP(rec, r)
	})
}

// registerCollector registra el collector ignorando duplicados.
func registerCollector(reg prometheus.Registerer, collector prometheus.Collector) error {
	if err := reg.Register(collector); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}

// poolCollector expone gauges del pool pgx del storage.
type poolCollector struct {
	pool func() *pgxpool.Pool

	acquiredDesc *prometheus.Desc
	idleDesc     *prometheus.Desc
	totalDesc    *prometheus.Desc
}

func newPoolCollector(pool func() *pgxpool.Pool) *poolCollector {
	return &poolCollector{
		pool:         pool,
		acquiredDesc: prometheus.NewDesc("portal_storage_pgxpool_acquired", "Conexiones adquiridas del storage", nil, nil),
		idleDesc:     prometheus.NewDesc("portal_storage_pgxpool_idle", "Conexiones inactivas del storage", nil, nil),
		totalDesc:    prometheus.NewDesc("portal_storage_pgxpool_total", "Conexiones totales del storage", nil, nil),
	}
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.acquiredDesc
	ch <- c.idleDesc
	ch <- c.totalDesc
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	pool := c.pool()
	if pool == nil {
		return
	}
	stat := pool.Stat()
	if stat == nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.acquiredDesc, prometheus.GaugeValue, float64(stat.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(c.idleDesc, prometheus.GaugeValue, float64(stat.IdleConns()))
	ch <- prometheus.MustNewConstMetric(c.totalDesc, prometheus.GaugeValue, float64(stat.TotalConns()))
}

var (
	uuidSegmentRE = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F-]{4}-[0-9a-fA-F-]{4,}$`)
	hexSegmentRE  = regexp.MustCompile(`^[0-9a-fA-F]{16,}$`)
)

// normalizePath colapsa ids en ":param" para acotar la cardinalidad.
func normalizePath(p string) string {
	clean := strings.SplitN(p, "?", 2)[0]
	var out []string
	for _, seg := range strings.Split(clean, "/") {
		if seg == "" {
			continue
		}
		if isDynamicSegment(seg) {
			out = append(out, ":param")
		} else {
			out = append(out, seg)
		}
	}
	if len(out) == 0 {
		return "/"
	}
	return "/" + strings.Join(out, "/")
}

func isDynamicSegment(seg string) bool {
	if len(seg) > 48 || uuidSegmentRE.MatchString(seg) || hexSegmentRE.MatchString(seg) {
		return true
	}
	_, err := strconv.Atoi(seg)
	return err == nil
}
