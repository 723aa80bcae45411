package config

import (
	"errors"
	"os"
	"time"

	"github.com/woozymasta/overbyte/internal/logger"
)

// Balancer represents the complete network balancer configuration.
type Balancer struct {
	// betteralign:ignore

	Server    BalancerServer `group:"Server Options" env-namespace:"OVERBYTE_BALANCER"`
	Registry  Registry       `group:"Registry Options" namespace:"registry" env-namespace:"OVERBYTE_BALANCER_REGISTRY"`
	Storage   Storage        `group:"Storage Options" namespace:"db" env-namespace:"OVERBYTE_BALANCER_DB"`
	RateLimit RateLimit      `group:"Rate Limit Options" namespace:"rate-limit" env-namespace:"OVERBYTE_BALANCER_RATE_LIMIT"`
	Logger    logger.Config  `group:"Logger Options" namespace:"log" env-namespace:"OVERBYTE_BALANCER_LOG"`

	Version bool `short:"v" long:"version" description:"Print version and build info"`
}

// BalancerServer holds web server configuration.
type BalancerServer struct {
	// betteralign:ignore

	Address      string   `short:"l" long:"address" env:"LISTEN_ADDRESS" description:"Server listen address" default:":3010"`
	InternalKeys []string `short:"k" long:"internal-key" env:"INTERNAL_API_KEY" env-delim:"," description:"Accepted bearer keys for the network API"`
	MaxBodySize  int64    `long:"max-body-size" env:"MAX_BODY_SIZE" description:"Max body size for incoming requests" default:"4096"`
	TrustProxy   bool     `long:"trust-proxy" env:"TRUST_PROXY" description:"Trust X-Forwarded-For headers"`
}

// Registry holds liveness settings of registered game servers.
type Registry struct {
	// betteralign:ignore

	Staleness     time.Duration `long:"staleness" env:"STALENESS" description:"Evict servers silent for longer than this" default:"20s"`
	SweepInterval time.Duration `long:"sweep-interval" env:"SWEEP_INTERVAL" description:"How often stale servers are evicted" default:"5s"`
}

// Storage holds database configuration.
type Storage struct {
	// betteralign:ignore

	Path         string `short:"d" long:"path" env:"PATH" description:"Path to SQLite database (empty = no history)" default:"overbyte-balancer.db"`
	Workers      int    `long:"workers" env:"WORKERS" description:"History writer workers" default:"4"`
	QueueSize    int    `long:"queue-size" env:"QUEUE_SIZE" description:"Pending history writes before new ones are dropped" default:"1000"`
	PruneEvicted string `long:"prune-evicted" description:"Delete history of servers evicted longer ago than AGE and exit" optional:"true" optional-value:"168h" value-name:"AGE"`
	HistoryLimit int    `long:"history-limit" env:"HISTORY_LIMIT" description:"Rows returned by the history endpoint" default:"500"`
}

// RateLimit holds API rate limiting configuration.
type RateLimit struct {
	// betteralign:ignore

	HardLimitCount int           `long:"hard-count" env:"HARD_COUNT" description:"Hard IP limit: requests count" default:"120"`
	HardLimitWin   time.Duration `long:"hard-window" env:"HARD_WINDOW" description:"Hard IP limit: window duration" default:"1m"`
}

// ParseBalancer reads the balancer configuration. It terminates the
// application on invalid configuration, help or version requests.
func ParseBalancer() *Balancer {
	if err := loadDotEnv(); err != nil {
		exit(false, false, err)
	}

	cfg, help, err := parseBalancer(os.Args[1:])
	exit(help, cfg != nil && cfg.Version, err)
	return cfg
}

func parseBalancer(args []string) (*Balancer, bool, error) {
	var cfg Balancer
	help, err := parse(&cfg, args)
	if err != nil || help {
		return nil, help, err
	}
	if cfg.Version {
		return &cfg, false, nil
	}
	if err := cfg.validate(); err != nil {
		return nil, false, err
	}
	return &cfg, false, nil
}

func (c *Balancer) validate() error {
	if len(c.Server.InternalKeys) == 0 && c.Storage.PruneEvicted == "" {
		return errors.New("required flag `-k, --internal-key' or environment variable `OVERBYTE_BALANCER_INTERNAL_API_KEY' was not specified")
	}
	if c.Registry.Staleness <= 0 || c.Registry.SweepInterval <= 0 {
		return errors.New("registry staleness and sweep interval must be positive")
	}
	if c.RateLimit.HardLimitCount < 1 || c.RateLimit.HardLimitWin <= 0 {
		return errors.New("rate limit count and window must be positive")
	}
	if c.Storage.PruneEvicted != "" {
		if _, err := c.PruneAge(); err != nil {
			return err
		}
	}
	return nil
}

// PruneAge returns the --prune-evicted age.
func (c *Balancer) PruneAge() (time.Duration, error) {
	d, err := time.ParseDuration(c.Storage.PruneEvicted)
	if err != nil || d < 0 {
		return 0, errors.New("--db-prune-evicted expects a non-negative duration such as 72h")
	}
	return d, nil
}
