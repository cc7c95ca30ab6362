package identities

import (
	"time"

	"github.com/angelmondragon/smartaccess-backend/internal/profiles"
	"github.com/angelmondragon/smartaccess-backend/pkg/db/models"
	"github.com/angelmondragon/smartaccess-backend/pkg/enums"
)

// ProfileInput seeds the profile created alongside a new identity. Without it
// the identity gets a placeholder profile.
type ProfileInput struct {
	Role       enums.Role `json:"role" validate:"omitempty,oneof=admin director teacher student"`
	AccessCode string     `json:"access_code" validate:"omitempty,max=20,accesscode"`
	Phone      *string    `json:"phone,omitempty" validate:"omitempty,phone"`
}

// CreateInput carries a new identity.
type CreateInput struct {
	Username    string        `json:"username" validate:"required,max=150"`
	Email       string        `json:"email" validate:"omitempty,email"`
	FirstName   string        `json:"first_name" validate:"max=150"`
	LastName    string        `json:"last_name" validate:"max=150"`
	Password    string        `json:"password" validate:"required"`
	Active      *bool         `json:"active,omitempty"`
	IsStaff     bool          `json:"is_staff"`
	IsSuperuser bool          `json:"is_superuser"`
	Grants      []enums.Grant `json:"grants,omitempty"`
	Profile     *ProfileInput `json:"profile,omitempty"`
}

// UpdateInput carries optional identity changes. IsStaff, IsSuperuser and
// Grants are restricted fields.
type UpdateInput struct {
	Email       *string        `json:"email,omitempty" validate:"omitempty,email"`
	FirstName   *string        `json:"first_name,omitempty" validate:"omitempty,max=150"`
	LastName    *string        `json:"last_name,omitempty" validate:"omitempty,max=150"`
	Password    *string        `json:"password,omitempty"`
	Active      *bool          `json:"active,omitempty"`
	IsStaff     *bool          `json:"is_staff,omitempty"`
	IsSuperuser *bool          `json:"is_superuser,omitempty"`
	Grants      *[]enums.Grant `json:"grants,omitempty"`
}

func (u UpdateInput) touchesRestricted() bool {
	return u.IsStaff != nil || u.IsSuperuser != nil || u.Grants != nil
}

func (u UpdateInput) selfServiceOnly() bool {
	return !u.touchesRestricted() && u.Active == nil
}

// ListParams filters identity listings.
type ListParams struct {
	Search string
	Active *bool
	Limit  int
	Cursor string
}

// IdentityView omits the password hash.
type IdentityView struct {
	ID          int64                 `json:"id"`
	Username    string                `json:"username"`
	Email       string                `json:"email"`
	FirstName   string                `json:"first_name"`
	LastName    string                `json:"last_name"`
	IsActive    bool                  `json:"is_active"`
	IsStaff     bool                  `json:"is_staff"`
	IsSuperuser bool                  `json:"is_superuser"`
	Grants      []enums.Grant         `json:"grants"`
	LastLoginAt *time.Time            `json:"last_login_at,omitempty"`
	Profile     *profiles.ProfileView `json:"profile,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// ListResult is a page of identities.
type ListResult struct {
	Items      []IdentityView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// FromModel builds the view; profile may be nil.
func FromModel(i models.Identity, grants []enums.Grant, profile *models.Profile) IdentityView {
	view := IdentityView{
		ID:          i.ID,
		Username:    i.Username,
		Email:       i.Email,
		FirstName:   i.FirstName,
		LastName:    i.LastName,
		IsActive:    i.IsActive,
		IsStaff:     i.IsStaff,
		IsSuperuser: i.IsSuperuser,
		Grants:      append([]enums.Grant{}, grants...),
		LastLoginAt: i.LastLoginAt,
		CreatedAt:   i.CreatedAt,
		UpdatedAt:   i.UpdatedAt,
	}
	if profile != nil {
		pv := profiles.FromModel(*profile)
		view.Profile = &pv
	}
	return view
}
