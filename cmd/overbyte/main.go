// main is the entry point of the overbyte game server.
// It loads the game data, starts the internal HTTP API and the WebSocket
// gateway, and keeps the server registered with the network balancer.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/woozymasta/overbyte/internal/anticheat"
	"github.com/woozymasta/overbyte/internal/auth"
	"github.com/woozymasta/overbyte/internal/config"
	"github.com/woozymasta/overbyte/internal/gateway"
	"github.com/woozymasta/overbyte/internal/heartbeat"
	"github.com/woozymasta/overbyte/internal/logger"
	"github.com/woozymasta/overbyte/internal/matchmaking"
	"github.com/woozymasta/overbyte/internal/metrics"
	"github.com/woozymasta/overbyte/internal/protocol"
	"github.com/woozymasta/overbyte/internal/reporter"
	"github.com/woozymasta/overbyte/internal/room"
	"github.com/woozymasta/overbyte/internal/router"
	"github.com/woozymasta/overbyte/internal/server"
)

func main() {
	cfg := config.ParseGame()

	logger.Setup(cfg.Logger)

	if cfg.IssueToken != "" {
		issueToken(cfg)
		return
	}

	log.Info().Msg("Starting overbyte game server...")

	data, err := loadData(cfg.Data)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load game data")
	}
	log.Info().
		Int("maps", data.maps.Len()).
		Strs("weapons", data.weapons.Names()).
		Int("colliders", data.colliders.Len()).
		Int("boxes", data.colliders.Boxes()).
		Msg("Game data loaded")

	for _, gun := range protocol.Guns {
		if !data.weapons.Has(gun) {
			log.Debug().Str("gun", gun).Msg("No weapon profile, default applies")
		}
	}

	if err := checkRoomSizes(cfg, data); err != nil {
		log.Fatal().Err(err).Msg("Configured room sizes do not fit the maps")
	}

	var verifier router.Verifier
	if cfg.Auth.Secret != "" {
		v, err := auth.NewVerifier(cfg.Auth.Secret)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize token verifier")
		}
		verifier = v
	}

	rooms := room.NewManager(room.ManagerConfig{
		Maps:     data.maps,
		MaxRooms: cfg.Play.MaxRooms,
		Timeout:  cfg.Play.RoomTimeout,
	})
	alloc := matchmaking.New(rooms, matchmaking.Config{Capacity: cfg.Play.Capacity})
	filter := anticheat.New(anticheat.Config{
		TickRate:         cfg.Play.TickRate,
		MaxTeleport:      cfg.Play.MaxTeleport,
		MaxRotationDelta: cfg.Play.MaxRotationDelta,
	})

	var ws *gateway.Handler
	gameMetrics := metrics.NewGame(metrics.GameSources{
		Rooms:    rooms.Count,
		Players:  rooms.Players,
		Sessions: func() int { return ws.Active() },
		Queued:   alloc.QueueLen,
		Tracked:  filter.Tracked,
	})

	rooms.OnTeardown(alloc.Release)
	rooms.OnTeardown(func(r *room.Room) {
		gameMetrics.RoomClosed(string(r.Status()))
	})

	rt := router.New(router.Deps{
		Validator:  protocol.NewValidator(),
		Filter:     filter,
		Weapons:    data.weapons,
		Geometry:   data.colliders,
		Matchmaker: alloc,
		Verifier:   verifier,
	})
	log.Debug().Int("kinds", rt.Kinds()).Msg("Message router ready")

	ws = gateway.New(gateway.Config{
		LobbyID:           cfg.Server.LobbyID,
		Heartbeat:         heartbeat.Config{Interval: cfg.Heartbeat.Interval, MaxMissed: cfg.Heartbeat.MaxMissed},
		InactivityTimeout: cfg.Play.InactivityTimeout,
		WriteTimeout:      5 * time.Second,
		RateLimit:         rate.Limit(cfg.Play.InboundRate),
		RateBurst:         cfg.Play.InboundBurst,
		SendBuffer:        cfg.Play.SendBuffer,
		AllowBareID:       cfg.Server.AllowBareID,
	}, gateway.Deps{
		Rooms:     rooms,
		Allocator: alloc,
		Router:    rt,
		Verifier:  verifier,
		Movement:  filter,
		Metrics:   gameMetrics,
	})

	api := server.NewGame(rooms, gameMetrics.Registry, cfg)

	apiServer := &http.Server{
		Addr:         cfg.Server.APIAddress,
		Handler:      api.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	wsServer := &http.Server{
		Addr:              cfg.Server.WSAddress,
		Handler:           ws,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return listen(apiServer, "api") })
	g.Go(func() error { return listen(wsServer, "websocket") })

	if cfg.Network.URL != "" {
		rep := reporter.New(reporter.Config{
			URL:      cfg.Network.URL,
			Key:      cfg.Network.Key,
			ServerID: cfg.ServerID(),
			Host:     cfg.Server.WSHost,
			Port:     cfg.PublicPort(),
			Interval: cfg.Network.Interval,
		}, rooms.Players)
		g.Go(func() error { return rep.Run(gctx) })
	} else {
		log.Info().Msg("Network balancer URL not set, skipping registration")
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down game server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("API server forced to shutdown")
		}
		ws.Shutdown("server shutting down")
		if err := wsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("WebSocket server forced to shutdown")
		}
		rooms.Shutdown()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Game server failed")
	}

	log.Info().Msg("Game server exited")
}

func listen(srv *http.Server, name string) error {
	log.Info().Str("address", srv.Addr).Str("listener", name).Msg("Server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s listener: %w", name, err)
	}
	return nil
}

// checkRoomSizes makes sure every configured room size has spawns on every map.
func checkRoomSizes(cfg *config.Game, data *gameData) error {
	if !data.maps.Seats(cfg.Play.DefaultMaxPlayers) {
		return fmt.Errorf("default max players %d", cfg.Play.DefaultMaxPlayers)
	}
	for q := 1; q <= matchmaking.MaxPartySize; q++ {
		players, ok := cfg.Play.Capacity[q]
		if !ok || players <= 0 {
			players = 2 * q
		}
		if !data.maps.Seats(players) {
			return fmt.Errorf("party size %d needs %d spawns", q, players)
		}
	}
	return nil
}

func issueToken(cfg *config.Game) {
	issuer, err := auth.NewIssuer(cfg.Auth.Secret, auth.AccessTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot issue token")
	}

	token, err := issuer.Issue(cfg.IssueToken)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot issue token")
	}

	fmt.Println(token)
}
