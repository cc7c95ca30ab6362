package doors

import (
	"context"
	"strings"
	"time"

	"github.com/angelmondragon/smartaccess-backend/internal/repo"
	"github.com/angelmondragon/smartaccess-backend/pkg/db"
	"github.com/angelmondragon/smartaccess-backend/pkg/db/models"
	"github.com/angelmondragon/smartaccess-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists doors and the lock row created alongside each door.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, door *models.Door) error
	CreateLock(ctx context.Context, lock *models.LockOverride) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Door, error)
	NameTaken(ctx context.Context, name string, exclude uuid.UUID) (bool, error)
	LockEngaged(ctx context.Context, doorID uuid.UUID) (bool, error)
	Update(ctx context.Context, id uuid.UUID, fields map[string]any) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter listFilter) ([]doorRow, error)
}

type listFilter struct {
	State     *enums.DoorState
	Active    *bool
	Search    string
	AfterName string
	Limit     int
}

// doorRow is a door joined with its lock flag. LockEngaged is nil for doors
// created without a lock row.
type doorRow struct {
	models.Door `gorm:"embedded"`
	LockEngaged *bool `gorm:"column:lock_engaged"`
}

type repository struct {
	base repo.Base
}

// NewRepository constructs a doors repo bound to the provided GORM DB.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{base: repo.NewBase(conn)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{base: r.base.Bind(tx)}
}

func (r *repository) Create(ctx context.Context, door *models.Door) error {
	if door.ID == uuid.Nil {
		door.ID = uuid.New()
	}
	return r.base.DB(ctx).Create(door).Error
}

func (r *repository) CreateLock(ctx context.Context, lock *models.LockOverride) error {
	if lock.ID == uuid.Nil {
		lock.ID = uuid.New()
	}
	if lock.ChangedAt.IsZero() {
		lock.ChangedAt = time.Now().UTC()
	}
	return r.base.DB(ctx).Create(lock).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Door, error) {
	var door models.Door
	if err := r.base.DB(ctx).First(&door, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &door, nil
}

func (r *repository) NameTaken(ctx context.Context, name string, exclude uuid.UUID) (bool, error) {
	query := r.base.DB(ctx).Model(&models.Door{}).Where("name = ?", name)
	if exclude != uuid.Nil {
		query = query.Where("id <> ?", exclude)
	}
	var count int64
	err := query.Count(&count).Error
	return count > 0, err
}

// LockEngaged reports the lock flag of a door. A door without a lock row is
// treated as disengaged.
func (r *repository) LockEngaged(ctx context.Context, doorID uuid.UUID) (bool, error) {
	var engaged []bool
	err := r.base.DB(ctx).Model(&models.LockOverride{}).
		Where("door_id = ?", doorID).
		Limit(1).
		Pluck("engaged", &engaged).Error
	if err != nil || len(engaged) == 0 {
		return false, err
	}
	return engaged[0], nil
}

// Update applies the column map and bumps updated_at. A missing row yields
// gorm.ErrRecordNotFound.
func (r *repository) Update(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	fields["updated_at"] = time.Now().UTC()
	res := r.base.DB(ctx).Model(&models.Door{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes the door. Its lock row goes with it through the foreign key.
func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.base.DB(ctx).Where("id = ?", id).Delete(&models.Door{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) List(ctx context.Context, filter listFilter) ([]doorRow, error) {
	query := r.base.DB(ctx).
		Table("doors").
		Select("doors.*, lock_overrides.engaged AS lock_engaged").
		Joins("LEFT JOIN lock_overrides ON lock_overrides.door_id = doors.id")
	if filter.State != nil {
		query = query.Where("doors.state = ?", *filter.State)
	}
	if filter.Active != nil {
		query = query.Where("doors.is_active = ?", *filter.Active)
	}
	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		like := "%" + search + "%"
		query = query.Where("LOWER(doors.name) LIKE ? OR LOWER(doors.location) LIKE ?", like, like)
	}
	if filter.AfterName != "" {
		query = query.Where("doors.name > ?", filter.AfterName)
	}

	var rows []doorRow
	err := query.Order("doors.name ASC").Limit(filter.Limit).Scan(&rows).Error
	return rows, err
}

// isDuplicateName matches the door name unique index.
func isDuplicateName(err error) bool {
	return db.IsUniqueViolation(err, "ux_doors_name", "doors.name")
}
