package models

import "net/http"

// APIError is the {code,error} body of a rejected internal call. Codes are
// strings on the wire.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
	Status  int    `json:"-"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// Balancer error codes.
var (
	ErrMissingAuth      = &APIError{Code: "41", Message: "Missing authorization", Status: http.StatusUnauthorized}
	ErrMissingFields    = &APIError{Code: "41", Message: "Missing fields", Status: http.StatusBadRequest}
	ErrInvalidKey       = &APIError{Code: "44", Message: "Invalid internal API key", Status: http.StatusUnauthorized}
	ErrDuplicateServer  = &APIError{Code: "45", Message: "Server ID already registered", Status: http.StatusConflict}
	ErrNoServers        = &APIError{Code: "45", Message: "No servers available", Status: http.StatusServiceUnavailable}
	ErrServerNotFound   = &APIError{Code: "47", Message: "Server not found", Status: http.StatusNotFound}
	ErrHistoryDisabled  = &APIError{Code: "48", Message: "History storage is disabled", Status: http.StatusNotFound}
	ErrStorageFailure   = &APIError{Code: "49", Message: "Storage error", Status: http.StatusInternalServerError}
	ErrTooManyRequests  = &APIError{Code: "42", Message: "Too many requests", Status: http.StatusTooManyRequests}
	ErrMalformedRequest = &APIError{Code: "43", Message: "Malformed request body", Status: http.StatusBadRequest}
)

// Game server error codes.
var (
	ErrGameMissingAuth = &APIError{Code: "51", Message: "Missing authorization", Status: http.StatusUnauthorized}
	ErrGameInvalidKey  = &APIError{Code: "54", Message: "Invalid internal API key", Status: http.StatusUnauthorized}
	ErrRoomLimit       = &APIError{Code: "55", Message: "Room limit reached", Status: http.StatusServiceUnavailable}
	ErrRoomExists      = &APIError{Code: "56", Message: "Room already exists", Status: http.StatusConflict}
	ErrRoomSize        = &APIError{Code: "57", Message: "No map supports this maxPlayers", Status: http.StatusBadRequest}
)
