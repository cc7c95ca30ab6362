package doors

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/smartaccess-backend/internal/authz"
	"github.com/angelmondragon/smartaccess-backend/internal/bulk"
	"github.com/angelmondragon/smartaccess-backend/internal/repo"
	"github.com/angelmondragon/smartaccess-backend/pkg/db/models"
	"github.com/angelmondragon/smartaccess-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/smartaccess-backend/pkg/errors"
	"github.com/angelmondragon/smartaccess-backend/pkg/outbox"
	"github.com/angelmondragon/smartaccess-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/smartaccess-backend/pkg/pagination"
	"github.com/angelmondragon/smartaccess-backend/pkg/validation"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes the door registry.
type Service interface {
	Create(ctx context.Context, actor authz.Actor, input CreateInput) (*DoorView, error)
	Get(ctx context.Context, actor authz.Actor, id uuid.UUID) (*DoorView, error)
	List(ctx context.Context, actor authz.Actor, params ListParams) (*ListResult, error)
	Update(ctx context.Context, actor authz.Actor, id uuid.UUID, input UpdateInput) (*DoorView, error)
	Delete(ctx context.Context, actor authz.Actor, id uuid.UUID) error
	Open(ctx context.Context, actor authz.Actor, id uuid.UUID) (*DoorView, error)
	Close(ctx context.Context, actor authz.Actor, id uuid.UUID) (*DoorView, error)
	BulkSetState(ctx context.Context, actor authz.Actor, ids []uuid.UUID, state enums.DoorState) (bulk.Result, error)
	BulkSetActive(ctx context.Context, actor authz.Actor, ids []uuid.UUID, active bool) (bulk.Result, error)
}

// ServiceParams packages the dependencies for the door service.
type ServiceParams struct {
	Repo    Repository
	Tx      txRunner
	Authz   authz.Authorizer
	Outbox  outbox.Emitter
	Metrics bulk.Observer
}

type service struct {
	repo    Repository
	tx      txRunner
	authz   authz.Authorizer
	outbox  outbox.Emitter
	metrics bulk.Observer
}

// NewService builds a door service with the provided dependencies. Metrics
// is optional.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("doors repository required")
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
	return &service{
		repo:    params.Repo,
		tx:      params.Tx,
		authz:   params.Authz,
		outbox:  params.Outbox,
		metrics: params.Metrics,
	}, nil
}

var doorTarget = authz.Target{Kind: authz.TargetDoor}

// Create inserts the door together with its disengaged lock.
func (s *service) Create(ctx context.Context, actor authz.Actor, input CreateInput) (*DoorView, error) {
	if err := s.authz.Authorize(ctx, actor, authz.ActionManageDoor, doorTarget); err != nil {
		return nil, err
	}
	input.Name = strings.TrimSpace(input.Name)
	input.Location = strings.TrimSpace(input.Location)
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	state := input.State
	if state == "" {
		state = enums.DoorStateClosed
	}
	if !state.IsValid() {
		return nil, invalidState(state)
	}
	active := true
	if input.Active != nil {
		active = *input.Active
	}

	door := &models.Door{
		ID:          uuid.New(),
		Name:        input.Name,
		Location:    input.Location,
		Description: input.Description,
		State:       state,
		IsActive:    active,
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		r := s.repo.WithTx(tx)
		if err := ensureNameFree(ctx, r, door.Name, uuid.Nil); err != nil {
			return err
		}
		if err := r.Create(ctx, door); err != nil {
			return mapWriteErr(err, "create door")
		}
		if err := r.CreateLock(ctx, &models.LockOverride{DoorID: door.ID}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create door lock")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	view := FromModel(*door, false)
	return &view, nil
}

func (s *service) Get(ctx context.Context, actor authz.Actor, id uuid.UUID) (*DoorView, error) {
	if err := s.authz.Authorize(ctx, actor, authz.ActionViewDoor, doorTarget); err != nil {
		return nil, err
	}
	return s.load(ctx, s.repo, id)
}

func (s *service) List(ctx context.Context, actor authz.Actor, params ListParams) (*ListResult, error) {
	if err := s.authz.Authorize(ctx, actor, authz.ActionViewDoor, doorTarget); err != nil {
		return nil, err
	}
	if params.State != nil && !params.State.IsValid() {
		return nil, invalidState(*params.State)
	}
	after, err := pagination.ParseKey(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.List(ctx, listFilter{
		State:     params.State,
		Active:    params.Active,
		Search:    params.Search,
		AfterName: after,
		Limit:     pagination.LimitWithBuffer(params.Limit),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list doors")
	}

	normalized := pagination.NormalizeLimit(params.Limit)
	result := &ListResult{Items: make([]DoorView, 0, len(rows))}
	if len(rows) > normalized {
		rows = rows[:normalized]
		result.NextCursor = pagination.EncodeKey(rows[len(rows)-1].Name)
	}
	for _, row := range rows {
		result.Items = append(result.Items, FromModel(row.Door, row.LockEngaged != nil && *row.LockEngaged))
	}
	return result, nil
}

func (s *service) Update(ctx context.Context, actor authz.Actor, id uuid.UUID, input UpdateInput) (*DoorView, error) {
	if err := s.authz.Authorize(ctx, actor, authz.ActionManageDoor, doorTarget); err != nil {
		return nil, err
	}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "name cannot be empty").
				WithField("name", "is required")
		}
		input.Name = &name
	}
	if input.Location != nil {
		location := strings.TrimSpace(*input.Location)
		input.Location = &location
	}
	if err := validation.Struct(input); err != nil {
		return nil, err
	}

	var view *DoorView
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		r := s.repo.WithTx(tx)
		door, err := r.FindByID(ctx, id)
		if err != nil {
			return mapReadErr(err)
		}

		fields := map[string]any{}
		if input.Name != nil && *input.Name != door.Name {
			if err := ensureNameFree(ctx, r, *input.Name, door.ID); err != nil {
				return err
			}
			fields["name"] = *input.Name
			door.Name = *input.Name
		}
		if input.Location != nil {
			fields["location"] = *input.Location
			door.Location = *input.Location
		}
		if input.Description != nil {
			fields["description"] = *input.Description
			door.Description = *input.Description
		}
		activeChanged := input.Active != nil && *input.Active != door.IsActive
		if activeChanged {
			fields["is_active"] = *input.Active
			door.IsActive = *input.Active
		}

		if err := r.Update(ctx, door.ID, fields); err != nil {
			return mapWriteErr(err, "update door")
		}
		if activeChanged {
			if err := s.emitActiveChanged(ctx, tx, actor, door); err != nil {
				return err
			}
		}
		view, err = s.load(ctx, r, door.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (s *service) Delete(ctx context.Context, actor authz.Actor, id uuid.UUID) error {
	if err := s.authz.Authorize(ctx, actor, authz.ActionManageDoor, doorTarget); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return mapWriteErr(err, "delete door")
	}
	return nil
}

func (s *service) Open(ctx context.Context, actor authz.Actor, id uuid.UUID) (*DoorView, error) {
	return s.setState(ctx, actor, id, enums.DoorStateOpen)
}

func (s *service) Close(ctx context.Context, actor authz.Actor, id uuid.UUID) (*DoorView, error) {
	return s.setState(ctx, actor, id, enums.DoorStateClosed)
}

// setState moves a door to state in its own transaction. Setting the current
// state again is a successful no-op transition: the row is still touched and
// the event still recorded.
func (s *service) setState(ctx context.Context, actor authz.Actor, id uuid.UUID, state enums.DoorState) (*DoorView, error) {
	if err := s.authz.Authorize(ctx, actor, authz.ActionViewDoor, doorTarget); err != nil {
		return nil, err
	}

	var view *DoorView
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		r := s.repo.WithTx(tx)
		door, err := r.FindByID(ctx, id)
		if err != nil {
			return mapReadErr(err)
		}
		engaged, err := r.LockEngaged(ctx, door.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load door lock")
		}
		target := authz.Target{Kind: authz.TargetDoor, LockEngaged: engaged}
		if err := s.authz.Authorize(ctx, actor, authz.ActionOperateDoor, target); err != nil {
			return err
		}

		from := door.State
		if err := r.Update(ctx, door.ID, map[string]any{"state": state}); err != nil {
			return mapWriteErr(err, "update door state")
		}
		door.State = state
		err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDoorStateChanged,
			AggregateType: enums.AggregateDoor,
			AggregateID:   door.ID.String(),
			Actor:         actorRef(actor),
			Data:          payloads.DoorStateChangedEvent{DoorID: door.ID, Name: door.Name, From: from, To: state},
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record door state change")
		}
		view, err = s.load(ctx, r, door.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// BulkSetState opens or closes each door independently. One door failing
// leaves the others committed.
func (s *service) BulkSetState(ctx context.Context, actor authz.Actor, ids []uuid.UUID, state enums.DoorState) (bulk.Result, error) {
	if !state.IsValid() {
		return bulk.Result{}, invalidState(state)
	}
	return bulk.Run(ctx, "doors.set_state", ids, s.metrics, func(ctx context.Context, id uuid.UUID) error {
		_, err := s.setState(ctx, actor, id, state)
		return err
	})
}

// BulkSetActive activates or deactivates each door independently.
func (s *service) BulkSetActive(ctx context.Context, actor authz.Actor, ids []uuid.UUID, active bool) (bulk.Result, error) {
	if err := s.authz.Authorize(ctx, actor, authz.ActionManageDoor, doorTarget); err != nil {
		return bulk.Result{}, err
	}
	return bulk.Run(ctx, "doors.set_active", ids, s.metrics, func(ctx context.Context, id uuid.UUID) error {
		_, err := s.Update(ctx, actor, id, UpdateInput{Active: &active})
		return err
	})
}

func (s *service) load(ctx context.Context, r Repository, id uuid.UUID) (*DoorView, error) {
	door, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, mapReadErr(err)
	}
	engaged, err := r.LockEngaged(ctx, door.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load door lock")
	}
	view := FromModel(*door, engaged)
	return &view, nil
}

func (s *service) emitActiveChanged(ctx context.Context, tx *gorm.DB, actor authz.Actor, door *models.Door) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventDoorActiveChanged,
		AggregateType: enums.AggregateDoor,
		AggregateID:   door.ID.String(),
		Actor:         actorRef(actor),
		Data:          payloads.DoorActiveChangedEvent{DoorID: door.ID, Name: door.Name, Active: door.IsActive},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record door activation")
	}
	return nil
}

func ensureNameFree(ctx context.Context, r Repository, name string, exclude uuid.UUID) error {
	taken, err := r.NameTaken(ctx, name, exclude)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check door name")
	}
	if taken {
		return nameConflict(name)
	}
	return nil
}

func nameConflict(name string) error {
	return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("door %q already exists", name)).
		WithField("name", "is already in use")
}

func invalidState(state enums.DoorState) error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid door state %q", state)).
		WithField("state", "must be one of [open closed]")
}

func actorRef(actor authz.Actor) *outbox.ActorRef {
	if actor.IdentityID == 0 {
		return nil
	}
	return &outbox.ActorRef{IdentityID: actor.IdentityID, Role: actor.RoleLabel()}
}

func mapReadErr(err error) error {
	if repo.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "door not found")
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load door")
}

func mapWriteErr(err error, action string) error {
	switch {
	case repo.IsNotFound(err):
		return pkgerrors.New(pkgerrors.CodeNotFound, "door not found")
	case isDuplicateName(err):
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "door name already exists").
			WithField("name", "is already in use")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
	}
}
