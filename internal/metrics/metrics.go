// Package metrics define las métricas Prometheus del ciclo de sesión y de la
// query cache. Vive en un paquete propio para evitar ciclos entre session,
// query y http.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Logins = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portal",
		Name:      "logins_total",
		Help:      "Intentos de login por resultado",
	}, []string{"result"}) // ok|error

	Logouts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portal",
		Name:      "logouts_total",
		Help:      "Logouts por origen",
	}, []string{"reason"}) // user|unauthorized|decrypt|fetch_failed

	Refreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portal",
		Name:      "session_refresh_total",
		Help:      "Chequeos del refresher por resultado",
	}, []string{"outcome"})

	QueryRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portal",
		Name:      "query_cache_requests_total",
		Help:      "Lecturas de la query cache por familia y resultado",
	}, []string{"family", "result"}) // hit|miss|error

	QueryInvalidations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portal",
		Name:      "query_cache_invalidations_total",
		Help:      "Invalidaciones por familia",
	}, []string{"family"})

	APILatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "portal",
		Name:      "api_request_duration_seconds",
		Help:      "Latencia de llamadas a la API remota",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint", "kind"})
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{Logins, Logouts, Refreshes, QueryRequests, QueryInvalidations, APILatency}
}

// Register registra las métricas en reg (o el default si es nil).
// Registrar dos veces no es error.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
