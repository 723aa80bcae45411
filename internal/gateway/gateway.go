// Package gateway accepts game client WebSockets, authenticates them, binds
// them to rooms and pumps their frames into the router.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/woozymasta/overbyte/internal/heartbeat"
	"github.com/woozymasta/overbyte/internal/logger"
	"github.com/woozymasta/overbyte/internal/metrics"
	"github.com/woozymasta/overbyte/internal/protocol"
	"github.com/woozymasta/overbyte/internal/room"
	"github.com/woozymasta/overbyte/internal/router"
)

// DefaultLobbyID is the room id that binds a session to no room.
const DefaultLobbyID = "lobby"

// Connect errors sent before the socket is closed.
const (
	errMissingParams = "Missing room or accessToken"
	errInvalidToken  = "Invalid or expired accessToken"
	errInvalidID     = "Invalid player id"
	errRoomNotFound  = "Room not found"
	errRoomStarted   = "Room already started"
	errRoomFull      = "Room is full"
	errInOtherRoom   = "Already in another room"
)

// Rooms looks up live rooms by id.
type Rooms interface {
	Get(id string) (*room.Room, error)
}

// Allocator is the matchmaking side the gateway cleans up after.
type Allocator interface {
	router.Matchmaker
	RoomOf(id string) *room.Room
}

// Dispatcher handles one inbound frame.
type Dispatcher interface {
	Dispatch(ctx context.Context, s router.Sender, raw []byte) error
}

// Forgetter drops per-player movement state.
type Forgetter interface {
	Forget(uuid string)
}

// Config holds connection settings.
type Config struct {
	// LobbyID is the room id for sessions that matchmake after connecting.
	LobbyID string
	// Heartbeat configures server pings.
	Heartbeat heartbeat.Config
	// InactivityTimeout closes sessions that send nothing but pongs; zero disables it.
	InactivityTimeout time.Duration
	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration
	// RateLimit is the inbound frame rate per connection; zero means unlimited.
	RateLimit rate.Limit
	// RateBurst is the inbound burst per connection.
	RateBurst int
	// SendBuffer is the outbound queue length per connection.
	SendBuffer int
	// ReadLimit is the largest accepted frame in bytes.
	ReadLimit int64
	// AllowBareID accepts an id query parameter instead of a token.
	AllowBareID bool
}

// Deps are the services a session talks to. Verifier may be nil when only
// bare ids are accepted.
type Deps struct {
	Rooms     Rooms
	Allocator Allocator
	Router    Dispatcher
	Verifier  router.Verifier
	Movement  Forgetter
	Metrics   *metrics.Game
}

// Handler is the WebSocket endpoint.
type Handler struct {
	deps     Deps
	log      zerolog.Logger
	conns    map[*wsConn]struct{}
	upgrader websocket.Upgrader
	cfg      Config
	mu       sync.Mutex
}

// New creates the endpoint.
func New(cfg Config, deps Deps) *Handler {
	if cfg.LobbyID == "" {
		cfg.LobbyID = DefaultLobbyID
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = 16 << 10
	}

	return &Handler{
		cfg:   cfg,
		deps:  deps,
		conns: make(map[*wsConn]struct{}),
		log:   logger.Component("gateway"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Active returns the number of open sessions.
func (h *Handler) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Shutdown closes every open session.
func (h *Handler) Shutdown(reason string) {
	h.mu.Lock()
	conns := make([]*wsConn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.closeWith(websocket.CloseGoingAway, reason)
	}
}

// ServeHTTP upgrades the request and runs the session until the socket closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("Upgrade failed")
		return
	}

	c := newConn(ws, h.cfg.SendBuffer, h.cfg.WriteTimeout, h.log.With().Str("remote", r.RemoteAddr).Logger())
	go c.writePump()

	sess, ok := h.connect(c, r)
	if !ok {
		return
	}

	h.track(c, true)
	defer h.track(c, false)

	sess.run()
}

// connect validates the query and binds the connection to its room. On
// failure an error frame is sent and the connection closed.
func (h *Handler) connect(c *wsConn, r *http.Request) (*session, bool) {
	q := r.URL.Query()
	roomID := q.Get("room")
	token := q.Get("accessToken")
	bareID := q.Get("id")

	if roomID == "" || (token == "" && (!h.cfg.AllowBareID || bareID == "")) {
		return nil, h.reject(c, errMissingParams)
	}

	var userID string
	switch {
	case token != "":
		if h.deps.Verifier == nil {
			return nil, h.reject(c, errInvalidToken)
		}
		id, err := h.deps.Verifier.Verify(token)
		if err != nil {
			c.log.Debug().Err(err).Msg("Token rejected")
			return nil, h.reject(c, errInvalidToken)
		}
		userID = id.UserID
	default:
		if _, err := uuid.Parse(bareID); err != nil {
			return nil, h.reject(c, errInvalidID)
		}
		userID = bareID
	}

	c.log = c.log.With().Str("player", userID).Logger()

	var bound *room.Room
	if roomID != h.cfg.LobbyID {
		rm, err := h.deps.Rooms.Get(roomID)
		if err != nil {
			return nil, h.reject(c, errRoomNotFound)
		}
		if cur := h.deps.Allocator.RoomOf(userID); cur != nil && cur != rm {
			c.log.Info().Str("room", roomID).Str("current", cur.ID()).Msg("Join refused, player is in another room")
			return nil, h.reject(c, errInOtherRoom)
		}
		if h.deps.Allocator.LeaveQueue(userID) {
			c.log.Debug().Str("room", roomID).Msg("Player left queue to join room")
		}
		if err := rm.AddPlayer(userID, c); err != nil {
			c.log.Info().Err(err).Str("room", roomID).Msg("Join refused")
			return nil, h.reject(c, joinError(err))
		}
		if cur := h.deps.Allocator.RoomOf(userID); cur != rm {
			// Matched into another room while joining this one.
			rm.Detach(userID, c)
			return nil, h.reject(c, errInOtherRoom)
		}
		bound = rm
	}

	sess := &session{
		h:      h,
		conn:   c,
		userID: userID,
		bound:  bound,
		ctx:    c.log.WithContext(context.Background()),
	}
	if h.cfg.RateLimit > 0 {
		sess.limiter = rate.NewLimiter(h.cfg.RateLimit, max(1, h.cfg.RateBurst))
	}

	h.deps.Metrics.Connect("accepted")
	c.log.Info().Str("room", roomID).Msg("Player connected")
	sess.reply(protocol.Joined{Type: protocol.EventJoined, RoomID: roomID, UserID: userID})
	return sess, true
}

func (h *Handler) reject(c *wsConn, text string) bool {
	h.deps.Metrics.Connect("rejected")
	if frame, err := protocol.Encode(protocol.NewError(text, "")); err == nil {
		_ = c.Send(frame)
	}
	c.closeWith(websocket.ClosePolicyViolation, text)
	return false
}

func (h *Handler) track(c *wsConn, open bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if open {
		h.conns[c] = struct{}{}
	} else {
		delete(h.conns, c)
	}
}

func joinError(err error) string {
	switch {
	case errors.Is(err, room.ErrRoomStarted):
		return errRoomStarted
	case errors.Is(err, room.ErrRoomFull):
		return errRoomFull
	default:
		return errRoomNotFound
	}
}
