package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/woozymasta/overbyte/internal/logger"
)

// Game represents the complete game server configuration.
type Game struct {
	// betteralign:ignore

	Server    GameServer    `group:"Server Options" env-namespace:"OVERBYTE"`
	Auth      Auth          `group:"Auth Options" namespace:"auth" env-namespace:"OVERBYTE_AUTH"`
	Play      Gameplay      `group:"Game Options" namespace:"game" env-namespace:"OVERBYTE_GAME"`
	Heartbeat Heartbeat     `group:"Heartbeat Options" namespace:"heartbeat" env-namespace:"OVERBYTE_HEARTBEAT"`
	Network   Reporter      `group:"Network Balancer Options" namespace:"network" env-namespace:"OVERBYTE_NETWORK"`
	Data      Data          `group:"Data Options" namespace:"data" env-namespace:"OVERBYTE_DATA"`
	Logger    logger.Config `group:"Logger Options" namespace:"log" env-namespace:"OVERBYTE_LOG"`

	IssueToken string `long:"issue-token" description:"Print an access token for the given user id and exit"`
	Version    bool   `short:"v" long:"version" description:"Print version and build info"`
}

// GameServer holds listener and internal API configuration.
type GameServer struct {
	// betteralign:ignore

	APIAddress  string `short:"l" long:"api-address" env:"API_ADDRESS" description:"Internal HTTP API listen address" default:":3002"`
	WSAddress   string `short:"w" long:"ws-address" env:"WS_ADDRESS" description:"WebSocket listen address" default:":3003"`
	WSHost      string `long:"ws-host" env:"GAME_WS_HOST" description:"Public WebSocket host announced to clients" default:"localhost"`
	WSPort      int    `long:"ws-port" env:"GAME_WS_PORT" description:"Public WebSocket port announced to clients (0 = listen port)"`
	InternalKey string `short:"k" long:"internal-key" env:"INTERNAL_API_KEY" description:"Bearer key for the internal HTTP API"`
	LobbyID     string `long:"lobby-id" env:"LOBBY_ID" description:"Room id that connects without joining a room" default:"lobby"`
	AllowBareID bool   `long:"ws-allow-bare-id" env:"WS_ALLOW_BARE_ID" description:"Accept an id query parameter instead of an access token"`
	TrustProxy  bool   `long:"trust-proxy" env:"TRUST_PROXY" description:"Trust X-Forwarded-For headers"`
	MaxBodySize int64  `long:"max-body-size" env:"MAX_BODY_SIZE" description:"Max body size for internal API requests" default:"4096"`
}

// Auth holds access token configuration.
type Auth struct {
	// betteralign:ignore

	Secret string `long:"secret" env:"ACCESS_TOKEN_SECRET" description:"HS256 secret of access tokens"`
}

// Gameplay holds simulation, room and matchmaking limits.
type Gameplay struct {
	// betteralign:ignore

	TickRate          time.Duration `long:"tick-rate" env:"TICK_RATE" description:"Simulation tick length" default:"50ms"`
	InactivityTimeout time.Duration `long:"inactivity-timeout" env:"INACTIVITY_TIMEOUT" description:"Close sessions idle for this long (0 = never)" default:"5m"`
	MaxTeleport       float64       `long:"max-teleport" env:"MAX_TELEPORT" description:"Largest accepted displacement per tick" default:"50"`
	MaxRotationDelta  float64       `long:"max-rotation-delta" env:"MAX_ROTATION_DELTA" description:"Largest accepted yaw change per tick in degrees" default:"180"`
	MaxRooms          int           `long:"max-rooms" env:"MAX_ROOMS" description:"Maximum concurrent rooms" default:"100"`
	RoomTimeout       time.Duration `long:"room-timeout" env:"ROOM_TIMEOUT" description:"Waiting room countdown (0 = none)" default:"60s"`
	DefaultMaxPlayers int           `long:"default-max-players" env:"DEFAULT_MAX_PLAYERS" description:"Room size for create-room requests without maxPlayers" default:"2"`
	Capacity          map[int]int   `long:"capacity" env:"MAX_PLAYERS_PER_MATCH" env-delim:"," description:"Room size per party size as size:players" default:"1:2" default:"2:4" default:"3:6" default:"4:8"`
	InboundRate       float64       `long:"inbound-rate" env:"INBOUND_RATE" description:"Inbound frames per second per connection (0 = unlimited)" default:"60"`
	InboundBurst      int           `long:"inbound-burst" env:"INBOUND_BURST" description:"Inbound frame burst per connection" default:"120"`
	SendBuffer        int           `long:"send-buffer" env:"SEND_BUFFER" description:"Outbound frames queued per connection" default:"64"`
}

// Heartbeat holds the WebSocket liveness schedule.
type Heartbeat struct {
	// betteralign:ignore

	Interval  time.Duration `long:"interval" env:"INTERVAL" description:"Ping interval" default:"30s"`
	MaxMissed int           `long:"max-missed" env:"MAX_MISSED" description:"Unanswered pings before the connection is closed (1-10)" default:"3"`
}

// Reporter holds the network balancer registration settings.
type Reporter struct {
	// betteralign:ignore

	URL      string        `long:"url" env:"URL" description:"Network balancer base URL (empty = do not register)"`
	Key      string        `long:"key" env:"KEY" description:"Internal key of the network balancer"`
	ServerID string        `long:"server-id" env:"SERVER_ID" description:"Id this server registers under (default: hostname)"`
	Interval time.Duration `long:"interval" env:"INTERVAL" description:"Heartbeat interval" default:"15s"`
}

// Data holds optional overrides of the embedded game data.
type Data struct {
	// betteralign:ignore

	Maps      string `long:"maps" env:"MAPS" description:"Path to a maps JSON document"`
	Weapons   string `long:"weapons" env:"WEAPONS" description:"Path to a weapons JSON document"`
	Colliders string `long:"colliders" env:"COLLIDERS" description:"Path to a colliders JSON document"`
}

// ParseGame reads the game server configuration. It terminates the
// application on invalid configuration, help or version requests.
func ParseGame() *Game {
	if err := loadDotEnv(); err != nil {
		exit(false, false, err)
	}

	cfg, help, err := parseGame(os.Args[1:])
	exit(help, cfg != nil && cfg.Version, err)
	return cfg
}

func parseGame(args []string) (*Game, bool, error) {
	var cfg Game
	help, err := parse(&cfg, args)
	if err != nil || help {
		return nil, help, err
	}
	if cfg.Version || cfg.IssueToken != "" {
		return &cfg, false, nil
	}
	if err := cfg.validate(); err != nil {
		return nil, false, err
	}
	return &cfg, false, nil
}

func (c *Game) validate() error {
	if c.Server.InternalKey == "" {
		return errors.New("required flag `-k, --internal-key' or environment variable `OVERBYTE_INTERNAL_API_KEY' was not specified")
	}
	if c.Auth.Secret == "" && !c.Server.AllowBareID {
		return errors.New("`--auth-secret' (OVERBYTE_AUTH_ACCESS_TOKEN_SECRET) is required unless --ws-allow-bare-id is set")
	}
	if c.Heartbeat.MaxMissed < 1 || c.Heartbeat.MaxMissed > 10 {
		return fmt.Errorf("heartbeat max missed must be within 1..10, got %d", c.Heartbeat.MaxMissed)
	}
	if c.Heartbeat.Interval <= 0 {
		return errors.New("heartbeat interval must be positive")
	}
	if c.Play.TickRate <= 0 {
		return errors.New("tick rate must be positive")
	}
	if c.Play.MaxTeleport <= 0 || c.Play.MaxRotationDelta <= 0 {
		return errors.New("movement limits must be positive")
	}
	if c.Play.DefaultMaxPlayers < 2 || c.Play.DefaultMaxPlayers%2 != 0 {
		return fmt.Errorf("default max players must be an even number of at least 2, got %d", c.Play.DefaultMaxPlayers)
	}
	if c.Play.MaxRooms < 1 {
		return errors.New("max rooms must be at least 1")
	}
	for size, players := range c.Play.Capacity {
		if size < 1 || size > 4 {
			return fmt.Errorf("capacity: party size %d is outside 1..4", size)
		}
		if players < 2*size {
			return fmt.Errorf("capacity: %d players cannot seat two parties of %d", players, size)
		}
	}
	if c.Network.URL != "" && c.Network.Key == "" {
		return errors.New("network balancer key is required when a balancer URL is set")
	}
	return nil
}

// PublicPort returns the announced WebSocket port, falling back to the port
// of the WebSocket listen address.
func (c *Game) PublicPort() int {
	if c.Server.WSPort > 0 {
		return c.Server.WSPort
	}
	_, port, err := net.SplitHostPort(c.Server.WSAddress)
	if err != nil {
		return 0
	}
	p, _ := strconv.Atoi(port)
	return p
}

// ServerID returns the registration id, defaulting to the hostname.
func (c *Game) ServerID() string {
	if c.Network.ServerID != "" {
		return c.Network.ServerID
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "overbyte"
	}
	return host
}
