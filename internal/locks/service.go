package locks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/smartaccess-backend/internal/authz"
	"github.com/angelmondragon/smartaccess-backend/internal/bulk"
	"github.com/angelmondragon/smartaccess-backend/internal/repo"
	"github.com/angelmondragon/smartaccess-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/smartaccess-backend/pkg/errors"
	"github.com/angelmondragon/smartaccess-backend/pkg/outbox"
	"github.com/angelmondragon/smartaccess-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/smartaccess-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Notes recorded by bulk runs when the caller gives none.
const (
	BulkEngageNote    = "Activado desde admin"
	BulkDisengageNote = "Desactivado desde admin"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service toggles the secondary lock of each door.
type Service interface {
	Engage(ctx context.Context, actor authz.Actor, doorID uuid.UUID, note string) (*LockView, error)
	Disengage(ctx context.Context, actor authz.Actor, doorID uuid.UUID, note string) (*LockView, error)
	BulkEngage(ctx context.Context, actor authz.Actor, doorIDs []uuid.UUID, note string) (bulk.Result, error)
	BulkDisengage(ctx context.Context, actor authz.Actor, doorIDs []uuid.UUID, note string) (bulk.Result, error)
	Get(ctx context.Context, actor authz.Actor, doorID uuid.UUID) (*LockView, error)
	List(ctx context.Context, actor authz.Actor, params ListParams) (*ListResult, error)
}

// ServiceParams packages the dependencies for the lock service.
type ServiceParams struct {
	Repo    Repository
	Tx      txRunner
	Authz   authz.Authorizer
	Outbox  outbox.Emitter
	Metrics bulk.Observer
	Now     func() time.Time
}

type service struct {
	repo    Repository
	tx      txRunner
	authz   authz.Authorizer
	outbox  outbox.Emitter
	metrics bulk.Observer
	now     func() time.Time
}

// NewService builds a lock service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("locks repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Authz == nil {
		return nil, fmt.Errorf("authorizer required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:    params.Repo,
		tx:      params.Tx,
		authz:   params.Authz,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		now:     now,
	}, nil
}

var lockTarget = authz.Target{Kind: authz.TargetLockOverride}

func (s *service) Engage(ctx context.Context, actor authz.Actor, doorID uuid.UUID, note string) (*LockView, error) {
	return s.set(ctx, actor, doorID, true, note)
}

func (s *service) Disengage(ctx context.Context, actor authz.Actor, doorID uuid.UUID, note string) (*LockView, error) {
	return s.set(ctx, actor, doorID, false, note)
}

func (s *service) BulkEngage(ctx context.Context, actor authz.Actor, doorIDs []uuid.UUID, note string) (bulk.Result, error) {
	return s.bulkSet(ctx, actor, doorIDs, true, defaultNote(note, BulkEngageNote))
}

func (s *service) BulkDisengage(ctx context.Context, actor authz.Actor, doorIDs []uuid.UUID, note string) (bulk.Result, error) {
	return s.bulkSet(ctx, actor, doorIDs, false, defaultNote(note, BulkDisengageNote))
}

func (s *service) bulkSet(ctx context.Context, actor authz.Actor, doorIDs []uuid.UUID, engaged bool, note string) (bulk.Result, error) {
	action, operation := authz.ActionEngageLock, "locks.engage"
	if !engaged {
		action, operation = authz.ActionDisengageLock, "locks.disengage"
	}
	if err := s.authz.Authorize(ctx, actor, action, lockTarget); err != nil {
		return bulk.Result{}, err
	}
	return bulk.Run(ctx, operation, doorIDs, s.metrics, func(ctx context.Context, id uuid.UUID) error {
		_, err := s.set(ctx, actor, id, engaged, note)
		return err
	})
}

// set records a transition. Repeating the current state still counts as a
// change: changed_by and changed_at move and the event is written. Notes are
// only replaced when a note is given.
func (s *service) set(ctx context.Context, actor authz.Actor, doorID uuid.UUID, engaged bool, note string) (*LockView, error) {
	action, eventType := authz.ActionEngageLock, enums.EventLockEngaged
	if !engaged {
		action, eventType = authz.ActionDisengageLock, enums.EventLockDisengaged
	}
	if err := s.authz.Authorize(ctx, actor, action, lockTarget); err != nil {
		return nil, err
	}

	var view *LockView
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		r := s.repo.WithTx(tx)
		row, err := r.FindByDoorID(ctx, doorID)
		if err != nil {
			return mapErr(err, "load lock")
		}

		lock := row.LockOverride
		lock.Engaged = engaged
		lock.ChangedAt = s.now()
		lock.ChangedByID = nil
		if actor.IdentityID != 0 {
			id := actor.IdentityID
			lock.ChangedByID = &id
		}
		if trimmed := strings.TrimSpace(note); trimmed != "" {
			lock.Notes = &trimmed
		}
		if err := r.Save(ctx, &lock); err != nil {
			return mapErr(err, "save lock")
		}

		err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateLockOverride,
			AggregateID:   lock.ID.String(),
			Actor:         actorRef(actor),
			OccurredAt:    lock.ChangedAt,
			Data: payloads.LockChangedEvent{
				LockID:  lock.ID,
				DoorID:  lock.DoorID,
				Engaged: lock.Engaged,
				Notes:   lock.Notes,
			},
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record lock change")
		}

		updated, err := r.FindByDoorID(ctx, doorID)
		if err != nil {
			return mapErr(err, "reload lock")
		}
		v := fromRow(*updated)
		view = &v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (s *service) Get(ctx context.Context, actor authz.Actor, doorID uuid.UUID) (*LockView, error) {
	if err := s.authz.Authorize(ctx, actor, authz.ActionViewDoor, lockTarget); err != nil {
		return nil, err
	}
	row, err := s.repo.FindByDoorID(ctx, doorID)
	if err != nil {
		return nil, mapErr(err, "load lock")
	}
	view := fromRow(*row)
	return &view, nil
}

func (s *service) List(ctx context.Context, actor authz.Actor, params ListParams) (*ListResult, error) {
	if err := s.authz.Authorize(ctx, actor, authz.ActionViewDoor, lockTarget); err != nil {
		return nil, err
	}
	after, err := pagination.ParseKey(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, listFilter{
		Engaged:       params.Engaged,
		AfterDoorName: after,
		Limit:         pagination.LimitWithBuffer(params.Limit),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list locks")
	}

	normalized := pagination.NormalizeLimit(params.Limit)
	result := &ListResult{Items: make([]LockView, 0, len(rows))}
	if len(rows) > normalized {
		rows = rows[:normalized]
		result.NextCursor = pagination.EncodeKey(rows[len(rows)-1].DoorName)
	}
	for _, row := range rows {
		result.Items = append(result.Items, fromRow(row))
	}
	return result, nil
}

func defaultNote(note, fallback string) string {
	if strings.TrimSpace(note) == "" {
		return fallback
	}
	return note
}

func actorRef(actor authz.Actor) *outbox.ActorRef {
	if actor.IdentityID == 0 {
		return nil
	}
	return &outbox.ActorRef{IdentityID: actor.IdentityID, Role: actor.RoleLabel()}
}

func mapErr(err error, action string) error {
	if repo.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "lock not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
