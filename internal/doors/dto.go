package doors

import (
	"time"

	"github.com/angelmondragon/smartaccess-backend/pkg/db/models"
	"github.com/angelmondragon/smartaccess-backend/pkg/enums"
	"github.com/google/uuid"
)

// CreateInput carries the fields of a new door. State defaults to closed and
// Active to true.
type CreateInput struct {
	Name        string          `json:"name" validate:"required,max=100"`
	Location    string          `json:"location" validate:"max=200"`
	Description string          `json:"description"`
	State       enums.DoorState `json:"state"`
	Active      *bool           `json:"active"`
}

// UpdateInput carries optional door changes. State moves only through open
// and close.
type UpdateInput struct {
	Name        *string `json:"name" validate:"omitempty,max=100"`
	Location    *string `json:"location" validate:"omitempty,max=200"`
	Description *string `json:"description"`
	Active      *bool   `json:"active"`
}

// ListParams filters door listings.
type ListParams struct {
	State  *enums.DoorState
	Active *bool
	Search string
	Limit  int
	Cursor string
}

// DoorView is the API representation of a door with its lock flag.
type DoorView struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Location    string          `json:"location"`
	Description string          `json:"description"`
	State       enums.DoorState `json:"state"`
	Active      bool            `json:"active"`
	LockEngaged bool            `json:"lock_engaged"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ListResult is a page of doors ordered by name.
type ListResult struct {
	Items      []DoorView `json:"items"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

// FromModel builds a view from a door row.
func FromModel(d models.Door, lockEngaged bool) DoorView {
	return DoorView{
		ID:          d.ID,
		Name:        d.Name,
		Location:    d.Location,
		Description: d.Description,
		State:       d.State,
		Active:      d.IsActive,
		LockEngaged: lockEngaged,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}
