package profiles

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
	"gorm.io/gorm/clause"
)

// Repository persists profiles.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	IdentityExists(ctx context.Context, identityID int64) (bool, error)
	IdentityPrivileged(ctx context.Context, identityID int64) (bool, error)
	Create(ctx context.Context, profile *models.Profile) error
	CreateIfAbsent(ctx context.Context, profile *models.Profile) (bool, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	FindByIdentityID(ctx context.Context, identityID int64) (*models.Profile, error)
	FindByAccessCode(ctx context.Context, code string) (*models.Profile, error)
	AccessCodeTaken(ctx context.Context, code string, exclude uuid.UUID) (bool, error)
	Save(ctx context.Context, profile *models.Profile) error
	List(ctx context.Context, filter listFilter) ([]models.Profile, error)
}

type listFilter struct {
	Role            *enums.Role
	Active          *bool
	Search          string
	AfterIdentityID int64
	Limit           int
}

type repository struct {
	base repo.Base
}

// NewRepository constructs a profiles repo bound to the provided GORM DB.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{base: repo.NewBase(conn)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{base: r.base.Bind(tx)}
}

func (r *repository) IdentityExists(ctx context.Context, identityID int64) (bool, error) {
	var count int64
	err := r.base.DB(ctx).Model(&models.Identity{}).Where("id = ?", identityID).Count(&count).Error
	return count > 0, err
}

// IdentityPrivileged reports whether the identity is a superuser or staff.
func (r *repository) IdentityPrivileged(ctx context.Context, identityID int64) (bool, error) {
	var count int64
	err := r.base.DB(ctx).Model(&models.Identity{}).
		Where("id = ? AND (is_superuser = ? OR is_staff = ?)", identityID, true, true).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) Create(ctx context.Context, profile *models.Profile) error {
	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
	}
	return r.base.DB(ctx).Create(profile).Error
}

// CreateIfAbsent inserts the profile unless the identity already has one. The
// unique identity_id index arbitrates concurrent callers.
func (r *repository) CreateIfAbsent(ctx context.Context, profile *models.Profile) (bool, error) {
	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
	}
	res := r.base.DB(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "identity_id"}}, DoNothing: true}).
		Create(profile)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	var profile models.Profile
	if err := r.base.DB(ctx).First(&profile, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *repository) FindByIdentityID(ctx context.Context, identityID int64) (*models.Profile, error) {
	var profile models.Profile
	if err := r.base.DB(ctx).Where("identity_id = ?", identityID).First(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *repository) FindByAccessCode(ctx context.Context, code string) (*models.Profile, error) {
	var profile models.Profile
	if err := r.base.DB(ctx).Where("access_code = ?", code).First(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *repository) AccessCodeTaken(ctx context.Context, code string, exclude uuid.UUID) (bool, error) {
	query := r.base.DB(ctx).Model(&models.Profile{}).Where("access_code = ?", code)
	if exclude != uuid.Nil {
		query = query.Where("id <> ?", exclude)
	}
	var count int64
	err := query.Count(&count).Error
	return count > 0, err
}

// Save writes the mutable columns. A row deleted underneath the caller
// yields gorm.ErrRecordNotFound rather than being recreated.
func (r *repository) Save(ctx context.Context, profile *models.Profile) error {
	profile.UpdatedAt = time.Now().UTC()
	res := r.base.DB(ctx).Model(&models.Profile{}).Where("id = ?", profile.ID).Updates(map[string]any{
		"role":        profile.Role,
		"access_code": profile.AccessCode,
		"phone":       profile.Phone,
		"is_active":   profile.IsActive,
		"updated_at":  profile.UpdatedAt,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) List(ctx context.Context, filter listFilter) ([]models.Profile, error) {
	query := r.base.DB(ctx).Model(&models.Profile{})
	if filter.Role != nil {
		query = query.Where("role = ?", *filter.Role)
	}
	if filter.Active != nil {
		query = query.Where("is_active = ?", *filter.Active)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		query = query.Where("access_code LIKE ? OR phone LIKE ?", search+"%", "%"+search+"%")
	}
	if filter.AfterIdentityID > 0 {
		query = query.Where("identity_id > ?", filter.AfterIdentityID)
	}

	var rows []models.Profile
	err := query.Order("identity_id ASC").Limit(filter.Limit).Find(&rows).Error
	return rows, err
}

// IsDuplicateAccessCode matches the access code unique index on postgres and sqlite.
func IsDuplicateAccessCode(err error) bool {
	return db.IsUniqueViolation(err, "ux_profiles_access_code", "profiles.access_code")
}

// isDuplicateIdentity matches the one-profile-per-identity unique index.
func isDuplicateIdentity(err error) bool {
	return db.IsUniqueViolation(err, "ux_profiles_identity_id", "profiles.identity_id")
}
