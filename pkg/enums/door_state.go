package enums

import (
	"fmt"
	"strings"
)

// DoorState is the displayed open/closed state of a door.
type DoorState string

const (
	DoorStateOpen   DoorState = "open"
	DoorStateClosed DoorState = "closed"
)

var validDoorStates = []DoorState{
	DoorStateOpen,
	DoorStateClosed,
}

// String implements fmt.Stringer.
func (d DoorState) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DoorState.
func (d DoorState) IsValid() bool {
	for _, candidate := range validDoorStates {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDoorState converts raw input into a DoorState.
func ParseDoorState(value string) (DoorState, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validDoorStates {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid door state %q", value)
}
