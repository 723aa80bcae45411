package router

import (
	"context"
	"errors"

	"github.com/woozymasta/overbyte/internal/anticheat"
	"github.com/woozymasta/overbyte/internal/geometry"
	"github.com/woozymasta/overbyte/internal/matchmaking"
	"github.com/woozymasta/overbyte/internal/protocol"
)

func (r *Router) ping(ctx context.Context, s Sender, _ *protocol.Ping) {
	reply(ctx, s, protocol.Heartbeat{Type: protocol.EventPong})
}

func (r *Router) move(ctx context.Context, s Sender, m *protocol.Move) {
	if !s.InRoom() {
		replyError(ctx, s, errNotInRoom)
		return
	}

	sample := anticheat.Sample{
		Position:  m.Position(),
		Velocity:  geometry.Vec3{X: *m.VX, Y: *m.VY, Z: *m.VZ},
		RotationY: *m.RotationY,
	}
	if err := r.deps.Filter.Check(s.UUID, sample); err != nil {
		logger(ctx).Warn().Err(err).Str("player", s.UUID).Str("room", s.Room.ID()).Msg("Movement rejected")
		replyError(ctx, s, errSuspiciousMove)
		return
	}

	s.Room.BroadcastExcept(s.UUID, protocol.PlayerMoved{
		Type:      protocol.EventPlayerMoved,
		UUID:      s.UUID,
		X:         sample.Position.X,
		Y:         sample.Position.Y,
		Z:         sample.Position.Z,
		RotationY: sample.RotationY,
		VX:        sample.Velocity.X,
		VY:        sample.Velocity.Y,
		VZ:        sample.Velocity.Z,
	})
}

func (r *Router) aiming(ctx context.Context, s Sender, m *protocol.Aiming) {
	if !s.InRoom() {
		replyError(ctx, s, errAimNoRoom)
		return
	}
	s.Room.BroadcastExcept(s.UUID, protocol.AimingChanged{
		Type:  protocol.EventAiming,
		UUID:  s.UUID,
		Pitch: *m.Pitch,
	})
}

func (r *Router) changeGun(ctx context.Context, s Sender, m *protocol.ChangeGun) {
	if !s.InRoom() {
		replyError(ctx, s, errGunNoRoom)
		return
	}
	s.Room.BroadcastExcept(s.UUID, protocol.GunChanged{
		Type: protocol.EventGunChanged,
		UUID: s.UUID,
		Gun:  m.Gun,
	})
}

// shoot relays the visual event first, then resolves the claimed hit against
// the weapon range and static geometry.
func (r *Router) shoot(ctx context.Context, s Sender, m *protocol.Shoot) {
	if !s.InRoom() {
		replyError(ctx, s, errNotInRoom)
		return
	}

	fired := protocol.ShootFired{
		Type: protocol.EventShootFired,
		UUID: s.UUID,
		Hit:  m.Hit,
		Gun:  m.Gun,
	}
	if m.HitPoint != nil {
		p := m.HitPoint.Vec()
		fired.HitPoint = &p
	}
	if m.HitNormal != nil {
		n := m.HitNormal.Vec()
		fired.HitNormal = &n
	}
	s.Room.BroadcastExcept(s.UUID, fired)

	if m.Hit == protocol.HitNone || fired.HitPoint == nil {
		return
	}

	l := logger(ctx).With().Str("player", s.UUID).Str("room", s.Room.ID()).Str("gun", m.Gun).Logger()
	weapon := r.deps.Weapons.Resolve(m.Gun)
	origin := m.Origin.Vec()

	blocked, dist := r.deps.Geometry.Blocked(origin, *fired.HitPoint)
	if dist > weapon.Distance {
		l.Debug().Float64("distance", dist).Float64("max", weapon.Distance).Msg("Shot out of range")
		return
	}
	if blocked {
		l.Debug().Float64("distance", dist).Msg("Shot blocked by geometry")
		return
	}
	if m.Hit != protocol.HitPlayer || m.HitUUID == s.UUID {
		return
	}

	hp, ok := s.Room.Damage(m.HitUUID, weapon.Damage)
	if !ok {
		return
	}

	s.Room.SendTo(m.HitUUID, protocol.ShootReceived{Type: protocol.EventShootReceived, HP: hp})
	s.Room.SendTo(s.UUID, protocol.ShootGiven{
		Type:       protocol.EventShootGiven,
		TargetUUID: m.HitUUID,
		HP:         weapon.Damage,
	})
	l.Debug().Str("target", m.HitUUID).Int("hp", hp).Msg("Player hit")
}

func (r *Router) joinQueue(ctx context.Context, s Sender, m *protocol.JoinQueue) {
	if s.InRoom() {
		replyError(ctx, s, errAlreadyInRoom)
		return
	}

	q := m.PartySize()
	matched, err := r.deps.Matchmaker.JoinQueue(s.UUID, q, s.Conn)
	if err != nil {
		logger(ctx).Warn().Err(err).Str("player", s.UUID).Int("quantity", q).Msg("Join queue failed")
		if errors.Is(err, matchmaking.ErrInRoom) {
			replyError(ctx, s, errAlreadyInRoom)
			return
		}
		replyError(ctx, s, errQueueFailed)
		return
	}

	// A formed match already sent startGame.
	if matched == nil {
		reply(ctx, s, protocol.Queued{Type: protocol.EventQueued, Quantity: q})
	}
}

func (r *Router) leaveQueue(_ context.Context, s Sender, _ *protocol.LeaveQueue) {
	r.deps.Matchmaker.LeaveQueue(s.UUID)
}

func (r *Router) leaveRoom(ctx context.Context, s Sender, _ *protocol.LeaveRoom) {
	if !s.InRoom() {
		replyError(ctx, s, errNoRoomToLeave)
		return
	}

	s.Room.SendTo(s.UUID, protocol.RoomNotice{Type: protocol.EventRoomLefted, RoomID: s.Room.ID()})
	s.Room.RemovePlayer(s.UUID)
	r.deps.Matchmaker.Forget(s.UUID)
	r.deps.Filter.Forget(s.UUID)

	logger(ctx).Info().Str("player", s.UUID).Str("room", s.Room.ID()).Msg("Player left room")
}

func (r *Router) auth(ctx context.Context, s Sender, m *protocol.Auth) {
	if r.deps.Verifier == nil {
		replyError(ctx, s, errAuthDisabled)
		return
	}

	id, err := r.deps.Verifier.Verify(m.Token)
	if err != nil {
		logger(ctx).Debug().Err(err).Str("player", s.UUID).Msg("Token rejected")
		replyError(ctx, s, errInvalidToken)
		return
	}
	if id.UserID != s.UUID {
		replyError(ctx, s, errTokenMismatch)
		return
	}

	reply(ctx, s, protocol.Authenticated{
		Type:      protocol.EventAuthenticated,
		UserID:    id.UserID,
		ExpiresAt: id.ExpiresAt,
	})
}
