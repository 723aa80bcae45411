package gateway

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/woozymasta/overbyte/internal/heartbeat"
	"github.com/woozymasta/overbyte/internal/protocol"
	"github.com/woozymasta/overbyte/internal/room"
	"github.com/woozymasta/overbyte/internal/router"
)

// session is the read side of one authenticated connection.
type session struct {
	ctx     context.Context
	h       *Handler
	conn    *wsConn
	bound   *room.Room
	limiter *rate.Limiter
	monitor *heartbeat.Monitor
	idle    *time.Timer
	userID  string
}

// current returns the room the player is in: the room bound at connect time
// while still a member, otherwise the room matchmaking seated them in.
func (s *session) current() *room.Room {
	if s.bound != nil && s.bound.Has(s.userID) {
		return s.bound
	}
	return s.h.deps.Allocator.RoomOf(s.userID)
}

func (s *session) reply(payload any) {
	frame, err := protocol.Encode(payload)
	if err != nil {
		s.conn.log.Error().Err(err).Msg("Failed to encode frame")
		return
	}
	_ = s.conn.Send(frame)
}

func (s *session) run() {
	cfg := s.h.cfg
	ping, _ := protocol.Encode(protocol.Heartbeat{Type: protocol.EventPing})

	s.monitor = heartbeat.New(cfg.Heartbeat,
		func() error { return s.conn.Send(ping) },
		func() {
			s.conn.log.Info().Msg("Heartbeat lost, closing connection")
			s.conn.Close("heartbeat timeout")
		},
	)
	s.monitor.Start()

	if cfg.InactivityTimeout > 0 {
		s.idle = time.AfterFunc(cfg.InactivityTimeout, func() {
			s.conn.log.Info().Dur("timeout", cfg.InactivityTimeout).Msg("Inactive connection closed")
			s.conn.Close("inactivity timeout")
		})
	}

	defer s.cleanup()

	ws := s.conn.ws
	ws.SetReadLimit(cfg.ReadLimit)

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if !s.conn.closed() {
				s.conn.log.Debug().Err(err).Msg("Read ended")
			}
			return
		}
		s.handle(raw)
	}
}

func (s *session) handle(raw []byte) {
	m := s.h.deps.Metrics

	kind, err := protocol.Peek(raw)
	if err != nil {
		m.Frame("", "unparsable")
		s.conn.log.Debug().Err(err).Msg("Unparsable frame dropped")
		return
	}
	if kind == protocol.KindPong {
		m.Frame(string(kind), "ok")
		s.monitor.OnPong()
		return
	}

	if s.limiter != nil && !s.limiter.Allow() {
		m.Frame(label(kind), "rate_limited")
		s.conn.log.Warn().Str("type", string(kind)).Msg("Rate limit exceeded, frame dropped")
		return
	}
	if s.idle != nil {
		s.idle.Reset(s.h.cfg.InactivityTimeout)
	}

	sender := router.Sender{UUID: s.userID, Conn: s.conn, Room: s.current()}
	err = s.h.deps.Router.Dispatch(s.ctx, sender, raw)

	var verr *protocol.ValidationError
	switch {
	case err == nil:
		m.Frame(string(kind), "ok")
	case errors.As(err, &verr):
		m.Frame(string(kind), "invalid")
		s.conn.log.Debug().Str("type", string(kind)).Str("details", verr.Details).Msg("Invalid payload")
	case errors.Is(err, protocol.ErrUnknownKind):
		m.Frame("", "unknown")
		s.conn.log.Debug().Str("type", string(kind)).Msg("Unknown frame dropped")
	default:
		m.Frame(string(kind), "dropped")
		s.conn.log.Debug().Err(err).Str("type", string(kind)).Msg("Frame dropped")
	}
}

// cleanup releases everything the session holds. A room is only detached
// when this connection is still the one bound to the player.
func (s *session) cleanup() {
	s.monitor.Stop()
	if s.idle != nil {
		s.idle.Stop()
	}

	deps := s.h.deps
	deps.Allocator.LeaveQueue(s.userID)

	replaced := false
	if r := s.current(); r != nil {
		if r.Detach(s.userID, s.conn) {
			deps.Allocator.Forget(s.userID)
		} else {
			replaced = r.Has(s.userID)
		}
	}
	if !replaced && deps.Movement != nil {
		deps.Movement.Forget(s.userID)
	}

	s.conn.Close("")
	s.conn.log.Info().Msg("Player disconnected")
}

// label maps a frame type to a metrics label; unknown types collapse to "".
func label(kind protocol.Kind) string {
	if protocol.Known(kind) {
		return string(kind)
	}
	return ""
}
