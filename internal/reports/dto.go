package reports

import (
	"time"

	"github.com/angelmondragon/smartaccess-backend/pkg/enums"
)

// IdentityCounts summarises identities.
type IdentityCounts struct {
	Total      int64 `json:"total" gorm:"column:total"`
	Active     int64 `json:"active" gorm:"column:active"`
	Superusers int64 `json:"superusers" gorm:"column:superusers"`
}

// ProfileCounts summarises profiles. Unprovisioned counts placeholder codes.
type ProfileCounts struct {
	Total         int64                `json:"total"`
	Active        int64                `json:"active"`
	Inactive      int64                `json:"inactive"`
	Unprovisioned int64                `json:"unprovisioned"`
	ByRole        map[enums.Role]int64 `json:"by_role"`
}

// DoorCounts summarises doors.
type DoorCounts struct {
	Total    int64 `json:"total" gorm:"column:total"`
	Open     int64 `json:"open" gorm:"column:open_doors"`
	Closed   int64 `json:"closed" gorm:"column:closed_doors"`
	Inactive int64 `json:"inactive" gorm:"column:inactive_doors"`
}

// LockCounts summarises lock overrides.
type LockCounts struct {
	Total      int64 `json:"total" gorm:"column:total"`
	Engaged    int64 `json:"engaged" gorm:"column:engaged"`
	Disengaged int64 `json:"disengaged" gorm:"column:disengaged"`
}

// Summary is the reporting snapshot.
type Summary struct {
	Identities  IdentityCounts `json:"identities"`
	Profiles    ProfileCounts  `json:"profiles"`
	Doors       DoorCounts     `json:"doors"`
	Locks       LockCounts     `json:"locks"`
	GeneratedAt time.Time      `json:"generated_at"`
}
