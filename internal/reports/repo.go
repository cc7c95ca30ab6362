package reports

import (
	"context"
	"time"

	"github.com/angelmondragon/smartaccess-backend/internal/repo"
	"github.com/angelmondragon/smartaccess-backend/pkg/db/models"
	"github.com/angelmondragon/smartaccess-backend/pkg/enums"
	"gorm.io/gorm"
)

// Repository runs the aggregate queries behind the reports.
type Repository interface {
	IdentityCounts(ctx context.Context) (IdentityCounts, error)
	ProfileGroups(ctx context.Context) ([]profileGroup, error)
	PlaceholderProfiles(ctx context.Context) (int64, error)
	DoorCounts(ctx context.Context) (DoorCounts, error)
	LockCounts(ctx context.Context) (LockCounts, error)
	DoorLines(ctx context.Context) ([]doorLine, error)
	LockLines(ctx context.Context) ([]lockLine, error)
}

type profileGroup struct {
	Role     enums.Role `gorm:"column:role"`
	IsActive bool       `gorm:"column:is_active"`
	Total    int64      `gorm:"column:total"`
}

type doorLine struct {
	Name        string          `gorm:"column:name"`
	Location    string          `gorm:"column:location"`
	State       enums.DoorState `gorm:"column:state"`
	IsActive    bool            `gorm:"column:is_active"`
	LockEngaged *bool           `gorm:"column:lock_engaged"`
	UpdatedAt   time.Time       `gorm:"column:updated_at"`
}

type lockLine struct {
	DoorName  string    `gorm:"column:door_name"`
	Engaged   bool      `gorm:"column:engaged"`
	ChangedBy *string   `gorm:"column:changed_by"`
	ChangedAt time.Time `gorm:"column:changed_at"`
	Notes     *string   `gorm:"column:notes"`
}

type repository struct {
	base repo.Base
}

// NewRepository constructs a reports repo bound to the provided GORM DB.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{base: repo.NewBase(conn)}
}

func (r *repository) IdentityCounts(ctx context.Context) (IdentityCounts, error) {
	var counts IdentityCounts
	err := r.base.DB(ctx).Model(&models.Identity{}).
		Select(`COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN is_active THEN 1 ELSE 0 END), 0) AS active,
			COALESCE(SUM(CASE WHEN is_superuser THEN 1 ELSE 0 END), 0) AS superusers`).
		Scan(&counts).Error
	return counts, err
}

func (r *repository) ProfileGroups(ctx context.Context) ([]profileGroup, error) {
	var groups []profileGroup
	err := r.base.DB(ctx).Model(&models.Profile{}).
		Select("role, is_active, COUNT(*) AS total").
		Group("role, is_active").
		Scan(&groups).Error
	return groups, err
}

func (r *repository) PlaceholderProfiles(ctx context.Context) (int64, error) {
	var n int64
	err := r.base.DB(ctx).Model(&models.Profile{}).
		Where("SUBSTR(access_code, 1, ?) = ?", len(models.PlaceholderCodePrefix), models.PlaceholderCodePrefix).
		Count(&n).Error
	return n, err
}

func (r *repository) DoorCounts(ctx context.Context) (DoorCounts, error) {
	var counts DoorCounts
	err := r.base.DB(ctx).Model(&models.Door{}).
		Select(`COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN state = ? THEN 1 ELSE 0 END), 0) AS open_doors,
			COALESCE(SUM(CASE WHEN state = ? THEN 1 ELSE 0 END), 0) AS closed_doors,
			COALESCE(SUM(CASE WHEN is_active THEN 0 ELSE 1 END), 0) AS inactive_doors`,
			enums.DoorStateOpen, enums.DoorStateClosed).
		Scan(&counts).Error
	return counts, err
}

func (r *repository) LockCounts(ctx context.Context) (LockCounts, error) {
	var counts LockCounts
	err := r.base.DB(ctx).Model(&models.LockOverride{}).
		Select(`COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN engaged THEN 1 ELSE 0 END), 0) AS engaged,
			COALESCE(SUM(CASE WHEN engaged THEN 0 ELSE 1 END), 0) AS disengaged`).
		Scan(&counts).Error
	return counts, err
}

func (r *repository) DoorLines(ctx context.Context) ([]doorLine, error) {
	var lines []doorLine
	err := r.base.DB(ctx).Table("doors").
		Select("doors.name, doors.location, doors.state, doors.is_active, lock_overrides.engaged AS lock_engaged, doors.updated_at").
		Joins("LEFT JOIN lock_overrides ON lock_overrides.door_id = doors.id").
		Order("doors.name ASC").
		Scan(&lines).Error
	return lines, err
}

func (r *repository) LockLines(ctx context.Context) ([]lockLine, error) {
	var lines []lockLine
	err := r.base.DB(ctx).Table("lock_overrides").
		Select("doors.name AS door_name, lock_overrides.engaged, identities.username AS changed_by, lock_overrides.changed_at, lock_overrides.notes").
		Joins("JOIN doors ON doors.id = lock_overrides.door_id").
		Joins("LEFT JOIN identities ON identities.id = lock_overrides.changed_by_id").
		Order("doors.name ASC").
		Scan(&lines).Error
	return lines, err
}
