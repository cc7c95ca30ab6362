package models

import (
	"strings"
	"time"

	"github.com/angelmondragon/smartaccess-backend/pkg/enums"
	"github.com/google/uuid"
)

// PlaceholderCodePrefix marks access codes assigned by provisioning before a
// real numeric code has been issued.
const PlaceholderCodePrefix = "temp_"

// Profile extends an identity with its role, access code and status.
type Profile struct {
	ID         uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	IdentityID int64      `gorm:"column:identity_id;not null;uniqueIndex:ux_profiles_identity_id"`
	Role       enums.Role `gorm:"column:role;type:text;not null"`
	AccessCode string     `gorm:"column:access_code;type:varchar(20);not null;uniqueIndex:ux_profiles_access_code"`
	Phone      *string    `gorm:"column:phone;type:varchar(16)"`
	IsActive   bool       `gorm:"column:is_active;not null"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// IsPlaceholder reports whether the profile still carries a provisioning code.
func (p Profile) IsPlaceholder() bool {
	return strings.HasPrefix(p.AccessCode, PlaceholderCodePrefix)
}
