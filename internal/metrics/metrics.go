package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	GroupsBuilt  prometheus.Counter
	BuildErrors  *prometheus.CounterVec // reason label: integrity|invalid|source
	PartialViews prometheus.Counter
	LastGroups   prometheus.Gauge

	AlignDuration  prometheus.Histogram
	StatesExplored prometheus.Histogram
	BuildDuration  prometheus.Histogram

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	DBSwitches *prometheus.CounterVec // reason label: update|ping_failure

	Workers         prometheus.Gauge
	MaxStates       prometheus.Gauge
	RefreshInterval prometheus.Gauge // seconds
}

func NewCollector(workers, maxStates int, refreshInterval time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		GroupsBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timetable_groups_built_total",
			Help: "Total timetable grids built.",
		}),
		BuildErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timetable_build_errors_total",
			Help: "Groups dropped from a build run.",
		}, []string{"reason"}),
		PartialViews: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timetable_partial_views_total",
			Help: "Groups that exceeded the alignment budget and were laid out as a partial view.",
		}),
		LastGroups: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "timetable_last_build_groups",
			Help: "Number of grids produced by the last build run.",
		}),
		AlignDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "timetable_align_duration_seconds",
			Help:    "Duration of one group alignment.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 18),
		}),
		StatesExplored: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "timetable_align_states",
			Help:    "Search states explored per group alignment.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 12),
		}),
		BuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "timetable_build_duration_seconds",
			Help:    "Duration of a full build run.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timetable_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timetable_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "timetable_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "timetable_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		DBSwitches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timetable_db_switches_total",
			Help: "Number of database switches.",
		}, []string{"reason"}),
		Workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "timetable_build_workers",
			Help: "Groups aligned in parallel.",
		}),
		MaxStates: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "timetable_align_max_states",
			Help: "Per-group search state budget (-1 when unlimited).",
		}),
		RefreshInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "timetable_refresh_interval_seconds",
			Help: "Rebuild interval in seconds.",
		}),
	}

	reg.MustRegister(
		c.GroupsBuilt, c.BuildErrors, c.PartialViews, c.LastGroups,
		c.AlignDuration, c.StatesExplored, c.BuildDuration,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.DBSwitches,
		c.Workers, c.MaxStates, c.RefreshInterval,
	)

	c.Workers.Set(float64(workers))
	c.MaxStates.Set(float64(maxStates))
	c.RefreshInterval.Set(refreshInterval.Seconds())

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}
