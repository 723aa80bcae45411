// Package registry tracks live game servers for the balancer and picks the
// least loaded one for new sessions.
package registry

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// StatusOnline is the only status Assign considers.
const StatusOnline = "online"

// DefaultStaleness is how long a server may go without a heartbeat.
const DefaultStaleness = 20 * time.Second

var (
	// ErrAlreadyRegistered is returned when registering a known server id.
	ErrAlreadyRegistered = errors.New("server id already registered")

	// ErrNotFound is returned for heartbeats from unknown servers.
	ErrNotFound = errors.New("server not found")

	// ErrNoServers is returned by Assign when nothing is online.
	ErrNoServers = errors.New("no servers available")
)

// Server is a snapshot of one registered game server.
type Server struct {
	RegisteredAt  time.Time `json:"registered_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	ID            string    `json:"id"`
	Host          string    `json:"host"`
	Status        string    `json:"status"`
	Version       string    `json:"version,omitempty"`
	Port          int       `json:"port"`
	Players       int       `json:"players"`
	seq           uint64
}

// Registration is the data a server announces itself with.
type Registration struct {
	ID      string
	Host    string
	Status  string
	Version string
	Port    int
}

// Config holds registry settings.
type Config struct {
	// Staleness is the eviction threshold; zero means DefaultStaleness.
	Staleness time.Duration
}

// Registry is the in-memory set of live servers.
type Registry struct {
	now       func() time.Time
	servers   map[string]*Server
	onEvict   []func(Server)
	staleness time.Duration
	seq       uint64
	mu        sync.RWMutex
}

// New creates an empty registry.
func New(cfg Config) *Registry {
	return NewWithClock(cfg, time.Now)
}

// NewWithClock creates an empty registry with an injected clock.
func NewWithClock(cfg Config, now func() time.Time) *Registry {
	if cfg.Staleness <= 0 {
		cfg.Staleness = DefaultStaleness
	}
	return &Registry{
		now:       now,
		servers:   make(map[string]*Server),
		staleness: cfg.Staleness,
	}
}

// OnEvict adds a callback invoked, without locks held, for every evicted server.
func (r *Registry) OnEvict(fn func(Server)) {
	r.mu.Lock()
	r.onEvict = append(r.onEvict, fn)
	r.mu.Unlock()
}

// Register adds a new server with zero players. An empty status means online.
func (r *Registry) Register(reg Registration) (Server, error) {
	if reg.Status == "" {
		reg.Status = StatusOnline
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.servers[reg.ID]; ok {
		return Server{}, ErrAlreadyRegistered
	}

	now := r.now()
	r.seq++
	s := &Server{
		ID:            reg.ID,
		Host:          reg.Host,
		Port:          reg.Port,
		Status:        reg.Status,
		Version:       reg.Version,
		RegisteredAt:  now,
		LastHeartbeat: now,
		seq:           r.seq,
	}
	r.servers[reg.ID] = s

	log.Info().Str("server", reg.ID).Str("host", reg.Host).Int("port", reg.Port).Msg("Game server registered")
	return *s, nil
}

// Heartbeat refreshes a server's load, status and liveness.
func (r *Registry) Heartbeat(id string, players int, status string) (Server, error) {
	if status == "" {
		status = StatusOnline
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.servers[id]
	if !ok {
		return Server{}, ErrNotFound
	}
	s.Players = max(0, players)
	s.Status = status
	s.LastHeartbeat = r.now()
	return *s, nil
}

// Assign returns the online server with the fewest players. Ties go to the
// server registered first.
func (r *Registry) Assign() (Server, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *Server
	for _, s := range r.servers {
		if s.Status != StatusOnline {
			continue
		}
		if best == nil || s.Players < best.Players || (s.Players == best.Players && s.seq < best.seq) {
			best = s
		}
	}
	if best == nil {
		return Server{}, ErrNoServers
	}
	return *best, nil
}

// Get returns a server by id.
func (r *Registry) Get(id string) (Server, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.servers[id]
	if !ok {
		return Server{}, false
	}
	return *s, true
}

// Len returns the number of registered servers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.servers)
}

// Online returns the number of servers reporting online.
func (r *Registry) Online() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.servers {
		if s.Status == StatusOnline {
			n++
		}
	}
	return n
}

// Players returns the sum of reported players across all servers.
func (r *Registry) Players() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.servers {
		n += s.Players
	}
	return n
}

// Snapshot returns all servers in registration order.
func (r *Registry) Snapshot() []Server {
	r.mu.RLock()
	out := make([]Server, 0, len(r.servers))
	for _, s := range r.servers {
		out = append(out, *s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Sweep evicts every server whose last heartbeat is older than the staleness
// threshold, whatever its status, and returns them.
func (r *Registry) Sweep(now time.Time) []Server {
	r.mu.Lock()
	var evicted []Server
	for id, s := range r.servers {
		if now.Sub(s.LastHeartbeat) > r.staleness {
			evicted = append(evicted, *s)
			delete(r.servers, id)
		}
	}
	listeners := append([](func(Server))(nil), r.onEvict...)
	r.mu.Unlock()

	for _, s := range evicted {
		log.Warn().Str("server", s.ID).Time("last_heartbeat", s.LastHeartbeat).Msg("Removing dead game server")
		for _, fn := range listeners {
			fn(s)
		}
	}
	return evicted
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = 5 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(r.now())
		}
	}
}
