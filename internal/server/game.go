package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/woozymasta/overbyte/internal/config"
	"github.com/woozymasta/overbyte/internal/metrics"
	"github.com/woozymasta/overbyte/internal/models"
	"github.com/woozymasta/overbyte/internal/room"
)

// Rooms is the room set the game API creates in and lists.
type Rooms interface {
	Create(id string, maxPlayers int) (*room.Room, error)
	Snapshot() []room.Info
}

// Game serves the game server's internal API.
type Game struct {
	rooms      Rooms
	registry   *prometheus.Registry
	keys       []string
	newID      func() string
	wsHost     string
	wsPort     int
	maxPlayers int
	maxBody    int64
	trustProxy bool
}

// NewGame creates the game API. reg may be nil to disable /metrics.
func NewGame(rooms Rooms, reg *prometheus.Registry, cfg *config.Game) *Game {
	return &Game{
		rooms:      rooms,
		registry:   reg,
		keys:       []string{cfg.Server.InternalKey},
		newID:      roomID,
		wsHost:     cfg.Server.WSHost,
		wsPort:     cfg.PublicPort(),
		maxPlayers: cfg.Play.DefaultMaxPlayers,
		maxBody:    cfg.Server.MaxBodySize,
		trustProxy: cfg.Server.TrustProxy,
	}
}

// Handler configures the HTTP routes and returns the main handler.
func (g *Game) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(LoggingMiddleware(g.trustProxy))

	r.HandleFunc("/health", handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/version", handleVersion).Methods(http.MethodGet)
	if g.registry != nil {
		r.Handle("/metrics", metrics.Handler(g.registry)).Methods(http.MethodGet)
	}

	auth := InternalKeyMiddleware(g.keys, models.ErrGameMissingAuth, models.ErrGameInvalidKey)
	r.Handle("/create-room", auth(http.HandlerFunc(g.handleCreateRoom))).Methods(http.MethodPost)
	r.Handle("/rooms", auth(http.HandlerFunc(g.handleRooms))).Methods(http.MethodGet)

	return r
}

func (g *Game) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req models.CreateRoomRequest
	if err := decodeBody(w, r, g.maxBody, &req); err != nil {
		writeError(w, models.ErrMalformedRequest)
		return
	}
	if req.MaxPlayers <= 0 {
		req.MaxPlayers = g.maxPlayers
	}

	id := g.newID()
	if _, err := g.rooms.Create(id, req.MaxPlayers); err != nil {
		switch {
		case errors.Is(err, room.ErrTooManyRooms):
			writeError(w, models.ErrRoomLimit)
		case errors.Is(err, room.ErrExists):
			writeError(w, models.ErrRoomExists)
		case errors.Is(err, room.ErrUnsupportedSize):
			writeError(w, models.ErrRoomSize)
		default:
			log.Error().Err(err).Msg("Failed to create room")
			writeError(w, models.ErrStorageFailure)
		}
		return
	}

	writeJSON(w, http.StatusOK, models.CreateRoomResponse{
		OK:     true,
		RoomID: id,
		WSHost: g.wsHost,
		WSPort: g.wsPort,
	})
}

func (g *Game) handleRooms(w http.ResponseWriter, _ *http.Request) {
	rooms := g.rooms.Snapshot()
	if rooms == nil {
		rooms = []room.Info{}
	}
	writeJSON(w, http.StatusOK, rooms)
}

// roomID returns a short random id for ad-hoc rooms.
func roomID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}
