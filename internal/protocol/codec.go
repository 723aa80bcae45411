package protocol

import (
	"errors"

	"github.com/segmentio/encoding/json"
)

var (
	// ErrMalformed is returned for frames that are not a JSON object.
	ErrMalformed = errors.New("malformed frame")

	// ErrUnknownKind is returned for frames whose type has no registered message.
	ErrUnknownKind = errors.New("unknown message type")
)

// factories is the closed set of inbound kinds.
var factories = map[Kind]func() Message{
	KindPing:       func() Message { return &Ping{} },
	KindPong:       func() Message { return &Pong{} },
	KindMove:       func() Message { return &Move{} },
	KindAiming:     func() Message { return &Aiming{} },
	KindChangeGun:  func() Message { return &ChangeGun{} },
	KindShoot:      func() Message { return &Shoot{} },
	KindJoinQueue:  func() Message { return &JoinQueue{} },
	KindLeaveQueue: func() Message { return &LeaveQueue{} },
	KindLeaveRoom:  func() Message { return &LeaveRoom{} },
	KindAuth:       func() Message { return &Auth{} },
}

type envelope struct {
	Type Kind `json:"type"`
}

// Peek returns the type discriminant of a raw frame.
func Peek(raw []byte) (Kind, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", ErrMalformed
	}
	return env.Type, nil
}

// Known reports whether kind is part of the protocol.
func Known(kind Kind) bool {
	_, ok := factories[kind]
	return ok
}

// Decode parses a raw frame into its typed message. Unknown kinds return
// ErrUnknownKind; fields of the wrong JSON type return a *ValidationError.
func Decode(raw []byte) (Message, error) {
	kind, err := Peek(raw)
	if err != nil {
		return nil, err
	}

	factory, ok := factories[kind]
	if !ok {
		return nil, ErrUnknownKind
	}

	msg := factory()
	if err := json.Unmarshal(raw, msg); err != nil {
		return nil, &ValidationError{Kind: kind, Details: decodeDetails(err)}
	}

	return msg, nil
}

// Encode serializes an outbound event.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func decodeDetails(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" && typeErr.Type != nil {
		return `"` + typeErr.Field + `" must be a ` + typeErr.Type.String()
	}
	return "payload does not match the message shape"
}
