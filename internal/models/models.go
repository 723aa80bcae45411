// Package models defines the data structures used for API requests, responses and database persistence.
package models

import "time"

// RegisterRequest is sent by a game server announcing itself to the balancer.
type RegisterRequest struct {
	ID      string `json:"id"`
	Host    string `json:"host"`
	Status  string `json:"status,omitempty"`
	Version string `json:"version,omitempty"`
	Port    int    `json:"port"`
}

// HeartbeatRequest refreshes a registered game server.
type HeartbeatRequest struct {
	ID      string `json:"id"`
	Status  string `json:"status,omitempty"`
	Players int    `json:"players"`
}

// AssignResponse names the game server a new session should connect to.
type AssignResponse struct {
	ServerID string `json:"serverId"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
}

// CreateRoomRequest asks a game server for an ad-hoc room.
type CreateRoomRequest struct {
	MaxPlayers int `json:"maxPlayers"`
}

// CreateRoomResponse tells the caller where the new room lives.
type CreateRoomResponse struct {
	RoomID string `json:"roomId"`
	WSHost string `json:"wsHost"`
	WSPort int    `json:"wsPort"`
	OK     bool   `json:"ok"`
}

// OKResponse is the body of a successful internal call.
type OKResponse struct {
	OK bool `json:"ok"`
}

// HealthResponse is returned by the health endpoints; Time is in Unix milliseconds.
type HealthResponse struct {
	Status string `json:"status"`
	Time   int64  `json:"time"`
}

// ServerRecord is the persisted history of one game server.
type ServerRecord struct {
	FirstSeen  time.Time  `json:"first_seen"`
	LastSeen   time.Time  `json:"last_seen"`
	EvictedAt  *time.Time `json:"evicted_at,omitempty"`
	ID         string     `json:"id"`
	Host       string     `json:"host"`
	Status     string     `json:"status"`
	Version    string     `json:"version,omitempty"`
	Port       int        `json:"port"`
	Players    int        `json:"players"`
	Heartbeats int64      `json:"heartbeats"`
}
