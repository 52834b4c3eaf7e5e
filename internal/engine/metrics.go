package engine

import "github.com/prometheus/client_golang/prometheus"

// managerMetrics holds Prometheus metrics for one Manager instance.
type managerMetrics struct {
	inits        prometheus.Counter
	initFailures prometheus.Counter
	loads        *prometheus.CounterVec
	dedupHits    prometheus.Counter
	queries      *prometheus.CounterVec
	publications prometheus.Counter
	openConns    prometheus.Gauge
}

// newManagerMetrics registers the manager's metrics on reg. A nil reg
// gets a private registry, which keeps tests and secondary managers from
// colliding on duplicate registration.
func newManagerMetrics(reg prometheus.Registerer) *managerMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &managerMetrics{
		inits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "querystore_engine_inits_total",
			Help: "Number of successful engine initializations.",
		}),
		initFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "querystore_engine_init_failures_total",
			Help: "Number of failed engine initialization attempts.",
		}),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "querystore_file_loads_total",
			Help: "File loads by result.",
		}, []string{"result"}),
		dedupHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "querystore_file_load_dedup_hits_total",
			Help: "Loads short-circuited by an already-ready entry.",
		}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "querystore_queries_total",
			Help: "Queries executed by result.",
		}, []string{"result"}),
		publications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "querystore_publications_total",
			Help: "Shared publications created.",
		}),
		openConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "querystore_open_connections",
			Help: "Currently open logical connections.",
		}),
	}

	reg.MustRegister(
		m.inits, m.initFailures, m.loads, m.dedupHits,
		m.queries, m.publications, m.openConns,
	)
	return m
}
