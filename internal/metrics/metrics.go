// Package metrics exposes Prometheus collectors for the game server and the
// balancer. Gauges read live state through callbacks; counters are bumped by
// the components that own the events. All methods are safe on a nil receiver.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "overbyte"

// Handler serves the registry in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func gauge(reg *prometheus.Registry, subsystem, name, help string, fn func() int) {
	if fn == nil {
		return
	}
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(fn()) }))
}

// GameSources are the live values exported as game server gauges.
type GameSources struct {
	Rooms    func() int
	Players  func() int
	Sessions func() int
	// Queued returns the queue length for party size q.
	Queued func(q int) int
	// Tracked is the number of players held by the movement filter.
	Tracked func() int
}

// Game holds the game server collectors.
type Game struct {
	Registry *prometheus.Registry
	frames   *prometheus.CounterVec
	connects *prometheus.CounterVec
	rooms    *prometheus.CounterVec
}

// NewGame registers the game server collectors.
func NewGame(src GameSources) *Game {
	reg := newRegistry()

	gauge(reg, "game", "rooms", "Rooms currently alive.", src.Rooms)
	gauge(reg, "game", "players", "Players seated in rooms.", src.Players)
	gauge(reg, "game", "sessions", "Open WebSocket sessions.", src.Sessions)
	gauge(reg, "anticheat", "tracked", "Players with movement filter state.", src.Tracked)

	if src.Queued != nil {
		for q := 1; q <= 4; q++ {
			size := q
			reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace:   namespace,
				Subsystem:   "matchmaking",
				Name:        "queued",
				Help:        "Players waiting per party size.",
				ConstLabels: prometheus.Labels{"quantity": strconv.Itoa(size)},
			}, func() float64 { return float64(src.Queued(size)) }))
		}
	}

	g := &Game{
		Registry: reg,
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "frames_total",
			Help:      "Inbound frames by message type and outcome.",
		}, []string{"type", "result"}),
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "connects_total",
			Help:      "Connection attempts by outcome.",
		}, []string{"result"}),
		rooms: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "game",
			Name:      "rooms_closed_total",
			Help:      "Rooms torn down by final status.",
		}, []string{"status"}),
	}
	reg.MustRegister(g.frames, g.connects, g.rooms)
	return g
}

// Frame counts one inbound frame.
func (g *Game) Frame(kind, result string) {
	if g == nil {
		return
	}
	g.frames.WithLabelValues(kind, result).Inc()
}

// Connect counts one connection attempt.
func (g *Game) Connect(result string) {
	if g == nil {
		return
	}
	g.connects.WithLabelValues(result).Inc()
}

// RoomClosed counts a torn down room.
func (g *Game) RoomClosed(status string) {
	if g == nil {
		return
	}
	g.rooms.WithLabelValues(status).Inc()
}

// BalancerSources are the live values exported as balancer gauges.
type BalancerSources struct {
	Servers func() int
	Online  func() int
	Players func() int
}

// Balancer holds the balancer collectors.
type Balancer struct {
	Registry    *prometheus.Registry
	assignments *prometheus.CounterVec
	evictions   prometheus.Counter
	history     *prometheus.CounterVec
}

// NewBalancer registers the balancer collectors.
func NewBalancer(src BalancerSources) *Balancer {
	reg := newRegistry()

	gauge(reg, "balancer", "servers", "Registered game servers.", src.Servers)
	gauge(reg, "balancer", "servers_online", "Game servers reporting online.", src.Online)
	gauge(reg, "balancer", "players", "Players reported by all game servers.", src.Players)

	b := &Balancer{
		Registry: reg,
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "balancer",
			Name:      "assignments_total",
			Help:      "Server assignment requests by outcome.",
		}, []string{"result"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "balancer",
			Name:      "evictions_total",
			Help:      "Game servers evicted for missing heartbeats.",
		}),
		history: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "balancer",
			Name:      "history_jobs_total",
			Help:      "History writes by outcome.",
		}, []string{"result"}),
	}
	reg.MustRegister(b.assignments, b.evictions, b.history)
	return b
}

// Assignment counts one assign-server request.
func (b *Balancer) Assignment(result string) {
	if b == nil {
		return
	}
	b.assignments.WithLabelValues(result).Inc()
}

// Eviction counts one evicted server.
func (b *Balancer) Eviction() {
	if b == nil {
		return
	}
	b.evictions.Inc()
}

// History counts one history job.
func (b *Balancer) History(result string) {
	if b == nil {
		return
	}
	b.history.WithLabelValues(result).Inc()
}
