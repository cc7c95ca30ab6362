package models

import (
	"time"

	"github.com/google/uuid"
)

// LockOverride records whether the secondary lock of a door is engaged and who
// last changed it. ChangedByID is nulled when that identity is deleted.
type LockOverride struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	DoorID      uuid.UUID `gorm:"column:door_id;type:uuid;not null;uniqueIndex:ux_lock_overrides_door_id"`
	Engaged     bool      `gorm:"column:engaged;not null"`
	ChangedByID *int64    `gorm:"column:changed_by_id"`
	ChangedAt   time.Time `gorm:"column:changed_at;not null"`
	Notes       *string   `gorm:"column:notes;type:text"`
}
