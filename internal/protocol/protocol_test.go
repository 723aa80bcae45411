package protocol

import (
	"errors"
	"strings"
	"testing"
)

func TestDecodeUnknownAndMalformed(t *testing.T) {
	if _, err := Decode([]byte(`{"type":"teleport","x":1}`)); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("unknown type: err = %v, want ErrUnknownKind", err)
	}
	if _, err := Decode([]byte(`{}`)); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("missing type: err = %v, want ErrUnknownKind", err)
	}
	if _, err := Decode([]byte(`not json`)); !errors.Is(err, ErrMalformed) {
		t.Fatalf("garbage: err = %v, want ErrMalformed", err)
	}
}

func TestDecodeWrongFieldType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"aiming","pitch":"up"}`))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	if verr.Kind != KindAiming {
		t.Fatalf("kind = %s, want aiming", verr.Kind)
	}
}

func TestValidate(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name    string
		frame   string
		ok      bool
		details string
	}{
		{"move complete", `{"type":"move","x":0,"y":0,"z":0,"rotationY":0,"vx":0,"vy":0,"vz":0}`, true, ""},
		{"move missing vz", `{"type":"move","x":1,"y":2,"z":3,"rotationY":0,"vx":0,"vy":0}`, false, `"vz" is required`},
		{"aiming lower bound", `{"type":"aiming","pitch":-45}`, true, ""},
		{"aiming upper bound", `{"type":"aiming","pitch":45}`, true, ""},
		{"aiming too high", `{"type":"aiming","pitch":45.5}`, false, `"pitch" must be less than or equal to 45`},
		{"aiming missing", `{"type":"aiming"}`, false, `"pitch" is required`},
		{"gun allowed", `{"type":"changeGun","gun":"Vulcan"}`, true, ""},
		{"gun unknown", `{"type":"changeGun","gun":"Railgun"}`, false, `"gun" must be one of`},
		{"shoot none", `{"type":"shoot","gun":"HandGun","origin":{"x":0,"y":0,"z":0},"hit":"none"}`, true, ""},
		{"shoot none with point", `{"type":"shoot","gun":"HandGun","origin":{"x":0,"y":0,"z":0},"hit":"none","hitPoint":{"x":1,"y":1,"z":1}}`, false, `"hitPoint" is not allowed when hit is none`},
		{"shoot wall", `{"type":"shoot","gun":"HandGun","origin":{"x":0,"y":0,"z":0},"hit":"wall","hitPoint":{"x":1,"y":1,"z":1},"hitNormal":{"x":0,"y":1,"z":0}}`, true, ""},
		{"shoot wall with uuid", `{"type":"shoot","gun":"HandGun","origin":{"x":0,"y":0,"z":0},"hit":"wall","hitUuid":"p2","hitPoint":{"x":1,"y":1,"z":1},"hitNormal":{"x":0,"y":1,"z":0}}`, false, `"hitUuid" is not allowed when hit is wall`},
		{"shoot player without uuid", `{"type":"shoot","gun":"HandGun","origin":{"x":0,"y":0,"z":0},"hit":"player","hitPoint":{"x":1,"y":1,"z":1},"hitNormal":{"x":0,"y":1,"z":0}}`, false, `"hitUuid" is required when hit is player`},
		{"shoot player without normal", `{"type":"shoot","gun":"HandGun","origin":{"x":0,"y":0,"z":0},"hit":"player","hitUuid":"p2","hitPoint":{"x":1,"y":1,"z":1}}`, false, `"hitNormal" is required when hit is player`},
		{"shoot bad hit kind", `{"type":"shoot","gun":"HandGun","origin":{"x":0,"y":0,"z":0},"hit":"sky"}`, false, `"hit" must be one of [player, wall, none]`},
		{"shoot partial origin", `{"type":"shoot","gun":"HandGun","origin":{"x":0,"y":0},"hit":"none"}`, false, `"z" is required`},
		{"shoot no origin", `{"type":"shoot","gun":"HandGun","hit":"none"}`, false, `"origin" is required`},
		{"join default", `{"type":"joinQueue"}`, true, ""},
		{"join four", `{"type":"joinQueue","quantity":4}`, true, ""},
		{"join five", `{"type":"joinQueue","quantity":5}`, false, `"quantity" must be less than or equal to 4`},
		{"join zero", `{"type":"joinQueue","quantity":0}`, false, `"quantity" must be greater than or equal to 1`},
		{"auth empty", `{"type":"auth","token":""}`, false, `"token" is required`},
		{"leave room", `{"type":"leaveRoom"}`, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.frame))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}

			err = v.Validate(msg)
			if tt.ok {
				if err != nil {
					t.Fatalf("unexpected validation error: %v", err)
				}
				return
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want *ValidationError", err)
			}
			if !strings.Contains(verr.Details, tt.details) {
				t.Fatalf("details = %q, want it to contain %q", verr.Details, tt.details)
			}
		})
	}
}

func TestPartySize(t *testing.T) {
	three := 3
	if got := (&JoinQueue{}).PartySize(); got != 1 {
		t.Fatalf("default party size = %d, want 1", got)
	}
	if got := (&JoinQueue{Quantity: &three}).PartySize(); got != 3 {
		t.Fatalf("party size = %d, want 3", got)
	}
	for in, want := range map[int]int{-2: 1, 0: 1, 4: 4, 9: 4} {
		if got := ClampPartySize(in); got != want {
			t.Errorf("ClampPartySize(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestEncodeError(t *testing.T) {
	frame, err := Encode(NewValidationError(&ValidationError{Kind: KindAiming, Details: `"pitch" is required`}))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"type":"error","error":"invalid_payload","details":"\"pitch\" is required"}`
	if string(frame) != want {
		t.Fatalf("frame = %s, want %s", frame, want)
	}
}
