package payloads

import (
	"github.com/angelmondragon/smartaccess-backend/pkg/enums"
	"github.com/google/uuid"
)

// IdentityCreatedEvent is emitted when an identity is created.
type IdentityCreatedEvent struct {
	IdentityID int64      `json:"identity_id"`
	Username   string     `json:"username"`
	Role       enums.Role `json:"role"`
}

// IdentityDeletedEvent is emitted when an identity and its profile are removed.
type IdentityDeletedEvent struct {
	IdentityID    int64  `json:"identity_id"`
	Username      string `json:"username"`
	LocksReleased int64  `json:"locks_released"`
}

// ProfileRepairedEvent records that provisioning recreated a missing profile.
type ProfileRepairedEvent struct {
	IdentityID int64     `json:"identity_id"`
	ProfileID  uuid.UUID `json:"profile_id"`
	AccessCode string    `json:"access_code"`
}

// AccessCodeChangedEvent never carries the codes themselves.
type AccessCodeChangedEvent struct {
	ProfileID  uuid.UUID `json:"profile_id"`
	IdentityID int64     `json:"identity_id"`
}

// DoorStateChangedEvent is emitted by open/close, including no-op transitions.
type DoorStateChangedEvent struct {
	DoorID uuid.UUID       `json:"door_id"`
	Name   string          `json:"name"`
	From   enums.DoorState `json:"from"`
	To     enums.DoorState `json:"to"`
}

// DoorActiveChangedEvent is emitted when a door is activated or deactivated.
type DoorActiveChangedEvent struct {
	DoorID uuid.UUID `json:"door_id"`
	Name   string    `json:"name"`
	Active bool      `json:"active"`
}

// LockChangedEvent is emitted on engage and disengage.
type LockChangedEvent struct {
	LockID  uuid.UUID `json:"lock_id"`
	DoorID  uuid.UUID `json:"door_id"`
	Engaged bool      `json:"engaged"`
	Notes   *string   `json:"notes,omitempty"`
}
