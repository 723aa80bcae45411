// Package protocol defines the WebSocket wire format: the closed set of inbound
// message kinds, their validation rules and the outbound events.
package protocol

import "github.com/woozymasta/overbyte/internal/geometry"

// Kind is the "type" discriminant of an inbound message.
type Kind string

// Inbound message kinds.
const (
	KindPing       Kind = "ping"
	KindPong       Kind = "pong"
	KindMove       Kind = "move"
	KindAiming     Kind = "aiming"
	KindChangeGun  Kind = "changeGun"
	KindShoot      Kind = "shoot"
	KindJoinQueue  Kind = "joinQueue"
	KindLeaveQueue Kind = "leaveQueue"
	KindLeaveRoom  Kind = "leaveRoom"
	KindAuth       Kind = "auth"
)

// Hit kinds declared by a shoot message.
const (
	HitPlayer = "player"
	HitWall   = "wall"
	HitNone   = "none"
)

// Guns is the allow-list accepted by changeGun.
var Guns = []string{
	"Nothing", "HandGun", "Stinger", "Claw", "HandVulcan",
	"Ironfang", "Predator", "Executioner", "Bombard", "Vulcan",
}

// Message is implemented by every inbound message type.
type Message interface {
	Kind() Kind
}

// Ping is a client-initiated latency check.
type Ping struct{}

// Pong answers a server ping.
type Pong struct{}

// Move reports the sender's position, yaw and velocity.
// Pointers distinguish a missing field from zero.
type Move struct {
	X         *float64 `json:"x" validate:"required,finite"`
	Y         *float64 `json:"y" validate:"required,finite"`
	Z         *float64 `json:"z" validate:"required,finite"`
	RotationY *float64 `json:"rotationY" validate:"required,finite"`
	VX        *float64 `json:"vx" validate:"required,finite"`
	VY        *float64 `json:"vy" validate:"required,finite"`
	VZ        *float64 `json:"vz" validate:"required,finite"`
}

// Aiming reports the camera pitch in degrees.
type Aiming struct {
	Pitch *float64 `json:"pitch" validate:"required,finite,min=-45,max=45"`
}

// ChangeGun switches the sender's weapon.
type ChangeGun struct {
	Gun string `json:"gun" validate:"required,gun"`
}

// Vector is a wire vector whose components must all be present.
type Vector struct {
	X *float64 `json:"x" validate:"required,finite"`
	Y *float64 `json:"y" validate:"required,finite"`
	Z *float64 `json:"z" validate:"required,finite"`
}

// Shoot is a fired shot with the client's claimed hit.
type Shoot struct {
	Origin    *Vector `json:"origin" validate:"required"`
	HitPoint  *Vector `json:"hitPoint"`
	HitNormal *Vector `json:"hitNormal"`
	Gun       string  `json:"gun" validate:"required"`
	Hit       string  `json:"hit" validate:"required,oneof=player wall none"`
	HitUUID   string  `json:"hitUuid"`
}

// JoinQueue asks for matchmaking with a party size of 1..4.
type JoinQueue struct {
	Quantity *int `json:"quantity" validate:"omitempty,min=1,max=4"`
}

// LeaveQueue leaves matchmaking.
type LeaveQueue struct{}

// LeaveRoom leaves the current room.
type LeaveRoom struct{}

// Auth presents a rotated access token for the current session.
type Auth struct {
	Token string `json:"token" validate:"required"`
}

func (Ping) Kind() Kind       { return KindPing }
func (Pong) Kind() Kind       { return KindPong }
func (Move) Kind() Kind       { return KindMove }
func (Aiming) Kind() Kind     { return KindAiming }
func (ChangeGun) Kind() Kind  { return KindChangeGun }
func (Shoot) Kind() Kind      { return KindShoot }
func (JoinQueue) Kind() Kind  { return KindJoinQueue }
func (LeaveQueue) Kind() Kind { return KindLeaveQueue }
func (LeaveRoom) Kind() Kind  { return KindLeaveRoom }
func (Auth) Kind() Kind       { return KindAuth }

// Vec converts a validated wire vector. A nil vector yields the zero vector.
func (v *Vector) Vec() geometry.Vec3 {
	if v == nil {
		return geometry.Vec3{}
	}
	return geometry.Vec3{X: deref(v.X), Y: deref(v.Y), Z: deref(v.Z)}
}

// Position returns the reported position.
func (m *Move) Position() geometry.Vec3 {
	return geometry.Vec3{X: deref(m.X), Y: deref(m.Y), Z: deref(m.Z)}
}

// PartySize returns the requested party size clamped to [1,4], defaulting to 1.
func (m *JoinQueue) PartySize() int {
	if m.Quantity == nil {
		return 1
	}
	return ClampPartySize(*m.Quantity)
}

// ClampPartySize clamps q to the supported party sizes.
func ClampPartySize(q int) int {
	switch {
	case q < 1:
		return 1
	case q > 4:
		return 4
	}
	return q
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
