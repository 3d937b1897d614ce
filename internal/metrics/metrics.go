// Package metrics exposes the service's Prometheus instrumentation: flow
// counters owned by the handlers, and index gauges sampled from the state
// store at scrape time.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/muster-gg/muster/internal/state"
)

// Metrics bundles every counter the handlers touch. One instance per
// process, wired alongside the store.
type Metrics struct {
	GamesRegistered prometheus.Counter
	GamesClosed     prometheus.Counter
	Joins           prometheus.Counter
	Leaves          prometheus.Counter
	Connections     prometheus.Counter
	DroppedEvents   prometheus.Counter

	registry *prometheus.Registry
}

// New builds a registry holding the flow counters and a collector over the
// store's index census.
func New(store *state.Store) *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		GamesRegistered: factory.NewCounter(prometheus.CounterOpts{
			Name: "muster_games_registered_total",
			Help: "Games registered into the state store.",
		}),
		GamesClosed: factory.NewCounter(prometheus.CounterOpts{
			Name: "muster_games_closed_total",
			Help: "Games marked closed.",
		}),
		Joins: factory.NewCounter(prometheus.CounterOpts{
			Name: "muster_joins_total",
			Help: "Successful game joins.",
		}),
		Leaves: factory.NewCounter(prometheus.CounterOpts{
			Name: "muster_leaves_total",
			Help: "Successful game leaves.",
		}),
		Connections: factory.NewCounter(prometheus.CounterOpts{
			Name: "muster_ws_connections_total",
			Help: "Accepted websocket connections.",
		}),
		DroppedEvents: factory.NewCounter(prometheus.CounterOpts{
			Name: "muster_dropped_events_total",
			Help: "Notifications dropped because a client buffer was full.",
		}),
		registry: registry,
	}
	registry.MustRegister(newStoreCollector(store))
	return m
}

// Handler returns the scrape endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// storeCollector samples Store.Stats on every scrape. Stats only takes the
// coarse read lock briefly, so scraping never contends with entity leases.
type storeCollector struct {
	store   *state.Store
	players *prometheus.Desc
	games   *prometheus.Desc
}

func newStoreCollector(store *state.Store) *storeCollector {
	return &storeCollector{
		store: store,
		players: prometheus.NewDesc(
			"muster_tracked_players",
			"Player records currently indexed, attached to a game or not.",
			nil, nil,
		),
		games: prometheus.NewDesc(
			"muster_open_games",
			"Game records currently indexed, including closed ones awaiting purge.",
			nil, nil,
		),
	}
}

func (c *storeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.players
	ch <- c.games
}

func (c *storeCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.store.Stats()
	ch <- prometheus.MustNewConstMetric(c.players, prometheus.GaugeValue, float64(stats.Players))
	ch <- prometheus.MustNewConstMetric(c.games, prometheus.GaugeValue, float64(stats.Games))
}
