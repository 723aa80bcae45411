// Package router dispatches validated inbound messages to their handlers.
package router

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/overbyte/internal/anticheat"
	"github.com/woozymasta/overbyte/internal/auth"
	"github.com/woozymasta/overbyte/internal/geometry"
	"github.com/woozymasta/overbyte/internal/protocol"
	"github.com/woozymasta/overbyte/internal/room"
	"github.com/woozymasta/overbyte/internal/weapons"
)

// Error texts sent to clients.
const (
	errSuspiciousMove = "Suspicious movement detected. Move cancelled."
	errNotInRoom      = "Not in room"
	errAimNoRoom      = "Not in room. Join a room to aim."
	errGunNoRoom      = "Not in room. Join a room to change gun."
	errNoRoomToLeave  = "Not in any room"
	errAlreadyInRoom  = "Already in a room"
	errQueueFailed    = "Matchmaking failed"
	errInvalidToken   = "Invalid or expired accessToken"
	errTokenMismatch  = "Token does not belong to this session"
	errAuthDisabled   = "Token authentication is disabled"
)

// Sender is the connection a message arrived on together with its current room.
type Sender struct {
	Conn room.Conn
	Room *room.Room
	UUID string
}

// InRoom reports whether the sender is a connected member of its room.
func (s Sender) InRoom() bool {
	return s.Room != nil && s.Room.Has(s.UUID)
}

// Matchmaker is the part of the allocator the router drives.
type Matchmaker interface {
	JoinQueue(id string, quantity int, conn room.Conn) (*room.Room, error)
	LeaveQueue(id string) bool
	Forget(id string)
}

// Verifier re-checks access tokens presented mid-session.
type Verifier interface {
	Verify(token string) (auth.Identity, error)
}

// Deps are the services handlers use. Geometry and Verifier may be nil.
type Deps struct {
	Validator  *protocol.Validator
	Filter     *anticheat.Filter
	Weapons    *weapons.Catalog
	Geometry   *geometry.Index
	Matchmaker Matchmaker
	Verifier   Verifier
}

type handlerFunc func(ctx context.Context, s Sender, msg protocol.Message)

// Router owns the static kind-to-handler table.
type Router struct {
	deps     Deps
	handlers map[protocol.Kind]handlerFunc
}

// New builds the handler table.
func New(deps Deps) *Router {
	if deps.Validator == nil {
		deps.Validator = protocol.NewValidator()
	}

	r := &Router{deps: deps}
	r.handlers = map[protocol.Kind]handlerFunc{
		protocol.KindPing:       handle(r.ping),
		protocol.KindPong:       handle(func(context.Context, Sender, *protocol.Pong) {}),
		protocol.KindMove:       handle(r.move),
		protocol.KindAiming:     handle(r.aiming),
		protocol.KindChangeGun:  handle(r.changeGun),
		protocol.KindShoot:      handle(r.shoot),
		protocol.KindJoinQueue:  handle(r.joinQueue),
		protocol.KindLeaveQueue: handle(r.leaveQueue),
		protocol.KindLeaveRoom:  handle(r.leaveRoom),
		protocol.KindAuth:       handle(r.auth),
	}
	return r
}

// handle adapts a typed handler to the table signature.
func handle[T protocol.Message](fn func(context.Context, Sender, T)) handlerFunc {
	return func(ctx context.Context, s Sender, msg protocol.Message) {
		if m, ok := msg.(T); ok {
			fn(ctx, s, m)
		}
	}
}

// Dispatch decodes raw, validates it and runs the handler for its kind.
// Frames of unknown kind are dropped and reported as protocol.ErrUnknownKind.
// Schema violations are answered with an error frame and returned.
func (r *Router) Dispatch(ctx context.Context, s Sender, raw []byte) error {
	msg, err := protocol.Decode(raw)
	if err == nil {
		err = r.deps.Validator.Validate(msg)
	}

	var verr *protocol.ValidationError
	switch {
	case errors.As(err, &verr):
		reply(ctx, s, protocol.NewValidationError(verr))
		return err
	case err != nil:
		return err
	}

	fn, ok := r.handlers[msg.Kind()]
	if !ok {
		return protocol.ErrUnknownKind
	}
	fn(ctx, s, msg)
	return nil
}

// Kinds returns the number of registered handlers.
func (r *Router) Kinds() int {
	return len(r.handlers)
}

// reply sends payload straight to the sender's connection.
func reply(ctx context.Context, s Sender, payload any) {
	frame, err := protocol.Encode(payload)
	if err != nil {
		logger(ctx).Error().Err(err).Msg("Failed to encode reply")
		return
	}
	if err := s.Conn.Send(frame); err != nil {
		logger(ctx).Debug().Err(err).Str("player", s.UUID).Msg("Reply dropped")
	}
}

func replyError(ctx context.Context, s Sender, text string) {
	reply(ctx, s, protocol.NewError(text, ""))
}

// logger returns the connection logger stored in ctx, or the global one.
func logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}
