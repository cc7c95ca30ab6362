package locks

import (
	"time"

	"github.com/google/uuid"
)

// ListParams filters lock listings.
type ListParams struct {
	Engaged *bool
	Limit   int
	Cursor  string
}

// LockView is the API representation of a door's lock override.
type LockView struct {
	ID          uuid.UUID `json:"id"`
	DoorID      uuid.UUID `json:"door_id"`
	DoorName    string    `json:"door_name"`
	Engaged     bool      `json:"engaged"`
	ChangedByID *int64    `json:"changed_by_id"`
	ChangedBy   *string   `json:"changed_by"`
	ChangedAt   time.Time `json:"changed_at"`
	Notes       *string   `json:"notes,omitempty"`
}

// ListResult is a page of locks ordered by door name.
type ListResult struct {
	Items      []LockView `json:"items"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

func fromRow(row lockRow) LockView {
	return LockView{
		ID:          row.ID,
		DoorID:      row.DoorID,
		DoorName:    row.DoorName,
		Engaged:     row.Engaged,
		ChangedByID: row.ChangedByID,
		ChangedBy:   row.ChangedByUsername,
		ChangedAt:   row.ChangedAt,
		Notes:       row.Notes,
	}
}
