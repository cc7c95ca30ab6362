package locks

import (
	"context"

	"github.com/angelmondragon/smartaccess-backend/internal/repo"
	"github.com/angelmondragon/smartaccess-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists lock overrides.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByDoorID(ctx context.Context, doorID uuid.UUID) (*lockRow, error)
	Save(ctx context.Context, lock *models.LockOverride) error
	List(ctx context.Context, filter listFilter) ([]lockRow, error)
}

type listFilter struct {
	Engaged       *bool
	AfterDoorName string
	Limit         int
}

// lockRow is a lock joined with its door name and the username of whoever
// changed it last.
type lockRow struct {
	models.LockOverride `gorm:"embedded"`
	DoorName            string  `gorm:"column:door_name"`
	ChangedByUsername   *string `gorm:"column:changed_by_username"`
}

type repository struct {
	base repo.Base
}

// NewRepository constructs a locks repo bound to the provided GORM DB.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{base: repo.NewBase(conn)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{base: r.base.Bind(tx)}
}

func (r *repository) joined(ctx context.Context) *gorm.DB {
	return r.base.DB(ctx).
		Table("lock_overrides").
		Select("lock_overrides.*, doors.name AS door_name, identities.username AS changed_by_username").
		Joins("JOIN doors ON doors.id = lock_overrides.door_id").
		Joins("LEFT JOIN identities ON identities.id = lock_overrides.changed_by_id")
}

func (r *repository) FindByDoorID(ctx context.Context, doorID uuid.UUID) (*lockRow, error) {
	var rows []lockRow
	if err := r.joined(ctx).Where("lock_overrides.door_id = ?", doorID).Limit(1).Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &rows[0], nil
}

// Save writes the audited columns. A lock deleted with its door underneath
// the caller yields gorm.ErrRecordNotFound.
func (r *repository) Save(ctx context.Context, lock *models.LockOverride) error {
	res := r.base.DB(ctx).Model(&models.LockOverride{}).Where("id = ?", lock.ID).Updates(map[string]any{
		"engaged":       lock.Engaged,
		"changed_by_id": lock.ChangedByID,
		"changed_at":    lock.ChangedAt,
		"notes":         lock.Notes,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) List(ctx context.Context, filter listFilter) ([]lockRow, error) {
	query := r.joined(ctx)
	if filter.Engaged != nil {
		query = query.Where("lock_overrides.engaged = ?", *filter.Engaged)
	}
	if filter.AfterDoorName != "" {
		query = query.Where("doors.name > ?", filter.AfterDoorName)
	}
	var rows []lockRow
	err := query.Order("doors.name ASC").Limit(filter.Limit).Scan(&rows).Error
	return rows, err
}
