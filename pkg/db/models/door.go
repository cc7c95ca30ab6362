package models

import (
	"time"

	"github.com/angelmondragon/smartaccess-backend/pkg/enums"
	"github.com/google/uuid"
)

// Door is a named physical access point.
type Door struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Name        string          `gorm:"column:name;type:varchar(100);not null;uniqueIndex:ux_doors_name"`
	Location    string          `gorm:"column:location;type:varchar(200);not null"`
	Description string          `gorm:"column:description;type:text;not null"`
	State       enums.DoorState `gorm:"column:state;type:text;not null"`
	IsActive    bool            `gorm:"column:is_active;not null"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
