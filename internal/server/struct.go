package server

import (
	"sync"
	"time"

	"github.com/woozymasta/overbyte/internal/metrics"
	"github.com/woozymasta/overbyte/internal/models"
	"github.com/woozymasta/overbyte/internal/registry"
)

// HistoryStore persists the server history. It may be nil on the balancer.
type HistoryStore interface {
	RecordRegister(s models.ServerRecord) error
	RecordHeartbeat(id string, players int, status string, at time.Time) error
	MarkEvicted(id string, at time.Time) error
	GetServers(limit int) ([]models.ServerRecord, error)
	// GetServer returns nil without error for an unknown id.
	GetServer(id string) (*models.ServerRecord, error)
}

// Balancer holds the dependencies, configuration, and runtime state required
// to serve the network API and persist server history in the background.
type Balancer struct {
	// registry is the live set of game servers.
	registry *registry.Registry

	// storage receives history writes from the workers. Nil disables history.
	storage HistoryStore

	// metrics counts assignments, evictions and history writes.
	metrics *metrics.Balancer

	// keys are the accepted internal API keys.
	keys []string

	// limiter is the per-IP hard rate limit of the network API.
	limiter *rateLimiter

	// queue passes history jobs from handlers and the sweeper to the workers.
	queue chan historyJob

	// shutdown is closed to stop the workers and the limiter cleanup.
	shutdown chan struct{}

	// wg waits for the workers to drain the queue on shutdown.
	wg sync.WaitGroup

	// maxBody limits request bodies.
	maxBody int64

	// historyLimit caps the rows of the history endpoint.
	historyLimit int

	// workers is the number of history writers.
	workers int

	// trustProxy enables X-Forwarded-For based client IPs.
	trustProxy bool

	// qmu orders sends on queue against its close in StopWorkers.
	qmu sync.RWMutex

	// stopped is set under qmu once queue is closed.
	stopped bool
}

type historyKind int

const (
	historyRegister historyKind = iota
	historyHeartbeat
	historyEvict
)

func (k historyKind) String() string {
	switch k {
	case historyRegister:
		return "register"
	case historyHeartbeat:
		return "heartbeat"
	default:
		return "evict"
	}
}

// historyJob is one server event waiting to be persisted.
type historyJob struct {
	at     time.Time
	server registry.Server
	kind   historyKind
}
