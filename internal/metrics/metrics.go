// Package metrics records the outcome of a dyndns run as Prometheus metrics
// for the node_exporter textfile collector.
package metrics

import (
	"time"

	"github.com/Travis-Britz/dyndns"
	"github.com/prometheus/client_golang/prometheus"
)

const Namespace = "dyndns"

// Run holds the metrics of one process. Each Run has its own registry
// so that only these series are written to the textfile.
type Run struct {
	Registry *prometheus.Registry

	Addresses     *prometheus.GaugeVec
	LastRun       prometheus.Gauge
	LastRunStatus prometheus.Gauge
	Published     *prometheus.CounterVec

	now func() time.Time
}

func New() *Run {
	r := &Run{
		Registry: prometheus.NewRegistry(),
		Addresses: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "addresses",
			Help:      "Number of addresses discovered in the last run, by family.",
		}, []string{"family"}),
		LastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
		LastRunStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_run_success",
			Help:      "1 if the last run succeeded, 0 otherwise.",
		}),
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "publish_total",
			Help:      "Record sets published, by record type.",
		}, []string{"type"}),
		now: time.Now,
	}
	r.Registry.MustRegister(r.Addresses, r.LastRun, r.LastRunStatus, r.Published)
	return r
}

// ObserveRun implements dyndns.RunObserver.
func (r *Run) ObserveRun(result dyndns.Result, err error) {
	var v4, v6 float64
	for _, a := range result.Addresses {
		if a.Is4() {
			v4++
		} else {
			v6++
		}
	}
	r.Addresses.WithLabelValues(dyndns.IPv4.String()).Set(v4)
	r.Addresses.WithLabelValues(dyndns.IPv6.String()).Set(v6)

	for _, set := range result.Published {
		r.Published.WithLabelValues(string(set.Type)).Inc()
	}

	r.LastRun.Set(float64(r.now().Unix()))
	if err != nil {
		r.LastRunStatus.Set(0)
	} else {
		r.LastRunStatus.Set(1)
	}
}

// WriteFile writes the registry in the text exposition format.
// The file is replaced atomically so a collector never reads half of it.
func (r *Run) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, r.Registry)
}
