package outbox

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/smartaccess-backend/pkg/db/models"
	"github.com/angelmondragon/smartaccess-backend/pkg/enums"
	"github.com/angelmondragon/smartaccess-backend/pkg/pagination"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(&event).Error
}

// ListFilter narrows audit listings.
type ListFilter struct {
	EventType     *enums.OutboxEventType
	AggregateType *enums.OutboxAggregateType
	AggregateID   string
	ActorID       *int64
}

// List returns events newest first. The returned cursor points at the last
// row of the page and is nil when there are no further rows.
func (r *Repository) List(ctx context.Context, filter ListFilter, cursor *pagination.Cursor, limit int) ([]models.OutboxEvent, *pagination.Cursor, error) {
	normalized := pagination.NormalizeLimit(limit)
	query := r.db.WithContext(ctx).Model(&models.OutboxEvent{})
	if filter.EventType != nil {
		query = query.Where("event_type = ?", *filter.EventType)
	}
	if filter.AggregateType != nil {
		query = query.Where("aggregate_type = ?", *filter.AggregateType)
	}
	if filter.AggregateID != "" {
		query = query.Where("aggregate_id = ?", filter.AggregateID)
	}
	if filter.ActorID != nil {
		query = query.Where("actor_id = ?", *filter.ActorID)
	}
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.OutboxEvent
	if err := query.Order("created_at DESC, id DESC").Limit(normalized + 1).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	if len(rows) > normalized {
		rows = rows[:normalized]
		last := rows[len(rows)-1]
		return rows, &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}, nil
	}
	return rows, nil, nil
}

// DeleteBefore removes events recorded before cutoff and returns how many
// rows went.
func (r *Repository) DeleteBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	conn := r.db
	if tx != nil {
		conn = tx
	}
	res := conn.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}
