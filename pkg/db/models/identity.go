package models

import (
	"time"

	"github.com/angelmondragon/smartaccess-backend/pkg/enums"
)

// Identity is the base account record that owns a profile.
type Identity struct {
	ID           int64      `gorm:"column:id;primaryKey;autoIncrement"`
	Username     string     `gorm:"column:username;type:text;not null;uniqueIndex:ux_identities_username"`
	Email        string     `gorm:"column:email;type:text;not null"`
	FirstName    string     `gorm:"column:first_name;not null"`
	LastName     string     `gorm:"column:last_name;not null"`
	PasswordHash string     `gorm:"column:password_hash;not null"`
	IsActive     bool       `gorm:"column:is_active;not null"`
	IsStaff      bool       `gorm:"column:is_staff;not null"`
	IsSuperuser  bool       `gorm:"column:is_superuser;not null"`
	LastLoginAt  *time.Time `gorm:"column:last_login_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// IdentityGrant records an explicit permission or group membership.
type IdentityGrant struct {
	IdentityID int64       `gorm:"column:identity_id;primaryKey"`
	Grant      enums.Grant `gorm:"column:grant_name;type:text;primaryKey"`
	CreatedAt  time.Time   `gorm:"column:created_at;autoCreateTime"`
}

func (IdentityGrant) TableName() string { return "identity_grants" }
