// Package audit serves the trail of domain events recorded in the outbox.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/smartaccess-backend/internal/authz"
	"github.com/angelmondragon/smartaccess-backend/pkg/db/models"
	"github.com/angelmondragon/smartaccess-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/smartaccess-backend/pkg/errors"
	"github.com/angelmondragon/smartaccess-backend/pkg/outbox"
	"github.com/angelmondragon/smartaccess-backend/pkg/pagination"
	"github.com/google/uuid"
)

type eventLister interface {
	List(ctx context.Context, filter outbox.ListFilter, cursor *pagination.Cursor, limit int) ([]models.OutboxEvent, *pagination.Cursor, error)
}

// ListParams filters the trail. Empty strings match everything.
type ListParams struct {
	EventType     string
	AggregateType string
	AggregateID   string
	ActorID       *int64
	Limit         int
	Cursor        string
}

// EventView is one audited change.
type EventView struct {
	ID            uuid.UUID                 `json:"id"`
	EventType     enums.OutboxEventType     `json:"event_type"`
	AggregateType enums.OutboxAggregateType `json:"aggregate_type"`
	AggregateID   string                    `json:"aggregate_id"`
	Actor         *outbox.ActorRef          `json:"actor,omitempty"`
	OccurredAt    time.Time                 `json:"occurred_at"`
	Data          json.RawMessage           `json:"data"`
}

// ListResult is a page of events, newest first.
type ListResult struct {
	Items      []EventView `json:"items"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

// Service lists audit events.
type Service interface {
	List(ctx context.Context, actor authz.Actor, params ListParams) (*ListResult, error)
}

type service struct {
	events eventLister
	authz  authz.Authorizer
}

// NewService builds the audit service.
func NewService(events eventLister, authorizer authz.Authorizer) (Service, error) {
	if events == nil {
		return nil, fmt.Errorf("event repository required")
	}
	if authorizer == nil {
		return nil, fmt.Errorf("authorizer required")
	}
	return &service{events: events, authz: authorizer}, nil
}

func (s *service) List(ctx context.Context, actor authz.Actor, params ListParams) (*ListResult, error) {
	if err := s.authz.Authorize(ctx, actor, authz.ActionViewReports, authz.Target{Kind: authz.TargetReport}); err != nil {
		return nil, err
	}

	filter := outbox.ListFilter{AggregateID: strings.TrimSpace(params.AggregateID), ActorID: params.ActorID}
	if v := strings.TrimSpace(params.EventType); v != "" {
		eventType, err := enums.ParseOutboxEventType(v)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid event type").
				WithField("event_type", "is not a known event")
		}
		filter.EventType = &eventType
	}
	if v := strings.TrimSpace(params.AggregateType); v != "" {
		aggregateType, err := enums.ParseOutboxAggregateType(v)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid aggregate type").
				WithField("aggregate_type", "is not a known aggregate")
		}
		filter.AggregateType = &aggregateType
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, next, err := s.events.List(ctx, filter, cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list audit events")
	}

	result := &ListResult{Items: make([]EventView, 0, len(rows))}
	for _, row := range rows {
		result.Items = append(result.Items, toView(row))
	}
	if next != nil {
		result.NextCursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

// toView unwraps the envelope. A payload that does not decode is returned
// as stored.
func toView(row models.OutboxEvent) EventView {
	view := EventView{
		ID:            row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		OccurredAt:    row.CreatedAt,
		Data:          row.Payload,
	}
	env, err := outbox.DecodeEnvelope(row.Payload)
	if err != nil {
		return view
	}
	view.Actor = env.Actor
	view.Data = env.Data
	if !env.OccurredAt.IsZero() {
		view.OccurredAt = env.OccurredAt
	}
	return view
}
