package identities

import (
	"context"
	"strings"
	"time"

	"github.com/angelmondragon/smartaccess-backend/internal/repo"
	"github.com/angelmondragon/smartaccess-backend/pkg/db"
	"github.com/angelmondragon/smartaccess-backend/pkg/db/models"
	"github.com/angelmondragon/smartaccess-backend/pkg/enums"
	"gorm.io/gorm"
)

// Repository persists identities and their grants.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, identity *models.Identity) error
	FindByID(ctx context.Context, id int64) (*models.Identity, error)
	FindByUsername(ctx context.Context, username string) (*models.Identity, error)
	UsernameTaken(ctx context.Context, username string) (bool, error)
	Update(ctx context.Context, id int64, fields map[string]any) error
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, filter listFilter) ([]models.Identity, error)
	Grants(ctx context.Context, id int64) ([]enums.Grant, error)
	ReplaceGrants(ctx context.Context, id int64, grants []enums.Grant) error
	DeleteProfile(ctx context.Context, id int64) error
	ReleaseLocks(ctx context.Context, id int64) (int64, error)
	MissingProfiles(ctx context.Context, afterID int64, limit int) ([]models.Identity, error)
}

type listFilter struct {
	Search  string
	Active  *bool
	AfterID int64
	Limit   int
}

type repository struct {
	base repo.Base
}

// NewRepository constructs an identities repo bound to the provided GORM DB.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{base: repo.NewBase(conn)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{base: r.base.Bind(tx)}
}

func (r *repository) Create(ctx context.Context, identity *models.Identity) error {
	return r.base.DB(ctx).Create(identity).Error
}

func (r *repository) FindByID(ctx context.Context, id int64) (*models.Identity, error) {
	var identity models.Identity
	if err := r.base.DB(ctx).First(&identity, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &identity, nil
}

func (r *repository) FindByUsername(ctx context.Context, username string) (*models.Identity, error) {
	var identity models.Identity
	if err := r.base.DB(ctx).Where("username = ?", username).First(&identity).Error; err != nil {
		return nil, err
	}
	return &identity, nil
}

func (r *repository) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var count int64
	err := r.base.DB(ctx).Model(&models.Identity{}).Where("username = ?", username).Count(&count).Error
	return count > 0, err
}

// Update writes the given columns. A missing row yields gorm.ErrRecordNotFound.
func (r *repository) Update(ctx context.Context, id int64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	fields["updated_at"] = time.Now().UTC()
	res := r.base.DB(ctx).Model(&models.Identity{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	return r.base.DB(ctx).
		Model(&models.Identity{}).
		Where("id = ?", id).
		UpdateColumn("last_login_at", at).Error
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	res := r.base.DB(ctx).Where("id = ?", id).Delete(&models.Identity{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) List(ctx context.Context, filter listFilter) ([]models.Identity, error) {
	query := r.base.DB(ctx).Model(&models.Identity{})
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where(
			"LOWER(username) LIKE ? OR LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?",
			like, like, like, like,
		)
	}
	if filter.Active != nil {
		query = query.Where("is_active = ?", *filter.Active)
	}
	if filter.AfterID > 0 {
		query = query.Where("id > ?", filter.AfterID)
	}
	var rows []models.Identity
	err := query.Order("id ASC").Limit(filter.Limit).Find(&rows).Error
	return rows, err
}

func (r *repository) Grants(ctx context.Context, id int64) ([]enums.Grant, error) {
	var grants []enums.Grant
	err := r.base.DB(ctx).
		Model(&models.IdentityGrant{}).
		Where("identity_id = ?", id).
		Order("grant_name ASC").
		Pluck("grant_name", &grants).Error
	return grants, err
}

func (r *repository) ReplaceGrants(ctx context.Context, id int64, grants []enums.Grant) error {
	conn := r.base.DB(ctx)
	if err := conn.Where("identity_id = ?", id).Delete(&models.IdentityGrant{}).Error; err != nil {
		return err
	}
	if len(grants) == 0 {
		return nil
	}
	rows := make([]models.IdentityGrant, 0, len(grants))
	seen := map[enums.Grant]bool{}
	for _, g := range grants {
		if seen[g] {
			continue
		}
		seen[g] = true
		rows = append(rows, models.IdentityGrant{IdentityID: id, Grant: g})
	}
	return conn.Create(&rows).Error
}

func (r *repository) DeleteProfile(ctx context.Context, id int64) error {
	return r.base.DB(ctx).Where("identity_id = ?", id).Delete(&models.Profile{}).Error
}

// ReleaseLocks clears changed_by on every lock override last changed by the
// identity and returns how many rows were touched.
func (r *repository) ReleaseLocks(ctx context.Context, id int64) (int64, error) {
	res := r.base.DB(ctx).
		Model(&models.LockOverride{}).
		Where("changed_by_id = ?", id).
		UpdateColumn("changed_by_id", nil)
	return res.RowsAffected, res.Error
}

// MissingProfiles pages through identities that have no profile row, in id
// order starting after afterID.
func (r *repository) MissingProfiles(ctx context.Context, afterID int64, limit int) ([]models.Identity, error) {
	var rows []models.Identity
	err := r.base.DB(ctx).
		Model(&models.Identity{}).
		Joins("LEFT JOIN profiles ON profiles.identity_id = identities.id").
		Where("profiles.id IS NULL AND identities.id > ?", afterID).
		Order("identities.id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// isDuplicateUsername matches the username unique index.
func isDuplicateUsername(err error) bool {
	return db.IsUniqueViolation(err, "ux_identities_username", "identities.username")
}
