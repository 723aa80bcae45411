package protocol

import (
	"time"

	"github.com/woozymasta/overbyte/internal/geometry"
)

// Outbound event types.
const (
	EventJoined             = "joined"
	EventPing               = "ping"
	EventPong               = "pong"
	EventStartGame          = "startGame"
	EventStartPositions     = "startPositions"
	EventPlayerMoved        = "playerMoved"
	EventGunChanged         = "gunChanged"
	EventAiming             = "aiming"
	EventShootFired         = "shootFired"
	EventShootReceived      = "shootReceived"
	EventShootGiven         = "shootGiven"
	EventPlayerDisconnected = "playerDisconnected"
	EventRoomCancelled      = "roomCancelled"
	EventRoomDeleted        = "roomDeleted"
	EventRoomLefted         = "roomLefted"
	EventQueued             = "queued"
	EventAuthenticated      = "authenticated"
	EventError              = "error"
)

// Joined acknowledges a session bound to a room.
type Joined struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

// Heartbeat is the bare ping/pong frame.
type Heartbeat struct {
	Type string `json:"type"`
}

// StartGame announces a filled room.
type StartGame struct {
	Type    string   `json:"type"`
	RoomID  string   `json:"roomId"`
	Map     string   `json:"map"`
	Mode    string   `json:"mode"`
	Players []string `json:"players"`
}

// StartPositions assigns one spawn per player.
type StartPositions struct {
	Positions map[string]geometry.Vec3 `json:"positions"`
	Type      string                   `json:"type"`
}

// PlayerMoved relays an accepted move.
type PlayerMoved struct {
	Type      string  `json:"type"`
	UUID      string  `json:"uuid"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	RotationY float64 `json:"rotationY"`
	VX        float64 `json:"vx"`
	VY        float64 `json:"vy"`
	VZ        float64 `json:"vz"`
}

// GunChanged relays a weapon switch.
type GunChanged struct {
	Type string `json:"type"`
	UUID string `json:"uuid"`
	Gun  string `json:"gun"`
}

// AimingChanged relays the sender's pitch.
type AimingChanged struct {
	Type  string  `json:"type"`
	UUID  string  `json:"uuid"`
	Pitch float64 `json:"pitch"`
}

// ShootFired is the visual shot event sent before hit resolution.
type ShootFired struct {
	HitPoint  *geometry.Vec3 `json:"hitPoint"`
	HitNormal *geometry.Vec3 `json:"hitNormal"`
	Type      string         `json:"type"`
	UUID      string         `json:"uuid"`
	Hit       string         `json:"hit"`
	Gun       string         `json:"gun"`
}

// ShootReceived tells a target its new HP.
type ShootReceived struct {
	Type string `json:"type"`
	HP   int    `json:"HP"`
}

// ShootGiven confirms a hit to the shooter; HP carries the damage dealt.
type ShootGiven struct {
	Type       string `json:"type"`
	TargetUUID string `json:"targetUuid"`
	HP         int    `json:"HP"`
}

// PlayerDisconnected tells remaining members that a player left.
type PlayerDisconnected struct {
	Type string `json:"type"`
	UUID string `json:"uuid"`
}

// RoomCancelled is sent before a cancelled room closes its members.
type RoomCancelled struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	Reason string `json:"reason"`
}

// RoomNotice carries only a room id (roomDeleted, roomLefted).
type RoomNotice struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

// Queued acknowledges a matchmaking request.
type Queued struct {
	Type     string `json:"type"`
	Quantity int    `json:"quantity"`
}

// Authenticated acknowledges a re-verified token.
type Authenticated struct {
	ExpiresAt time.Time `json:"expiresAt"`
	Type      string    `json:"type"`
	UserID    string    `json:"userId"`
}

// Error is a typed error reply.
type Error struct {
	Type    string `json:"type"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// NewError builds an error frame.
func NewError(reason, details string) Error {
	return Error{Type: EventError, Error: reason, Details: details}
}

// NewValidationError builds the reply for a failed schema check.
func NewValidationError(err *ValidationError) Error {
	return NewError(ReasonInvalidPayload, err.Details)
}
