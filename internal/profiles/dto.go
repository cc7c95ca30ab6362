package profiles

import (
	"time"

	"github.com/angelmondragon/smartaccess-backend/internal/authz"
	"github.com/angelmondragon/smartaccess-backend/pkg/db/models"
	"github.com/angelmondragon/smartaccess-backend/pkg/enums"
	"github.com/google/uuid"
)

// CreateInput carries the fields accepted when a profile is created directly.
type CreateInput struct {
	IdentityID int64
	Role       enums.Role
	AccessCode string
	Phone      *string
	Active     *bool
}

// UpdateInput carries optional profile changes. A nil field is left as is and
// an empty Phone clears the number.
type UpdateInput struct {
	Role       *enums.Role
	Phone      *string
	Active     *bool
	AccessCode *string
}

// ListParams filters profile listings.
type ListParams struct {
	Role   *enums.Role
	Active *bool
	Search string
	Limit  int
	Cursor string
}

// ProfileView is the API representation of a profile.
type ProfileView struct {
	ID           uuid.UUID          `json:"id"`
	IdentityID   int64              `json:"identity_id"`
	Role         enums.Role         `json:"role"`
	AccessCode   string             `json:"access_code"`
	Phone        *string            `json:"phone,omitempty"`
	Active       bool               `json:"active"`
	Provisioned  bool               `json:"provisioned"`
	Capabilities authz.Capabilities `json:"capabilities"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// ListResult is a page of profiles.
type ListResult struct {
	Items      []ProfileView `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// FromModel builds a view including the derived capabilities.
func FromModel(p models.Profile) ProfileView {
	return ProfileView{
		ID:           p.ID,
		IdentityID:   p.IdentityID,
		Role:         p.Role,
		AccessCode:   p.AccessCode,
		Phone:        p.Phone,
		Active:       p.IsActive,
		Provisioned:  !p.IsPlaceholder(),
		Capabilities: authz.CapabilitiesFor(p.Role, p.IsActive),
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}
