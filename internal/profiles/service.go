package profiles

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/angelmondragon/smartaccess-backend/internal/authz"
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

// Service exposes the profile directory.
type Service interface {
	Create(ctx context.Context, actor authz.Actor, input CreateInput) (*ProfileView, error)
	Get(ctx context.Context, actor authz.Actor, id uuid.UUID) (*ProfileView, error)
	GetByIdentity(ctx context.Context, actor authz.Actor, identityID int64) (*ProfileView, error)
	LookupAccessCode(ctx context.Context, actor authz.Actor, code string) (*ProfileView, error)
	List(ctx context.Context, actor authz.Actor, params ListParams) (*ListResult, error)
	Update(ctx context.Context, actor authz.Actor, id uuid.UUID, input UpdateInput) (*ProfileView, error)
	UpdateAccessCode(ctx context.Context, actor authz.Actor, id uuid.UUID, code string) (*ProfileView, error)
	Capabilities(ctx context.Context, actor authz.Actor, id uuid.UUID) (authz.Capabilities, error)
}

// ServiceParams packages the dependencies for the profile service.
type ServiceParams struct {
	Repo   Repository
	Tx     txRunner
	Authz  authz.Authorizer
	Outbox outbox.Emitter
}

type service struct {
	repo   Repository
	tx     txRunner
	authz  authz.Authorizer
	outbox outbox.Emitter
}

// NewService builds a profile service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("profiles repository required")
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
	return &service{repo: params.Repo, tx: params.Tx, authz: params.Authz, outbox: params.Outbox}, nil
}

func (s *service) Create(ctx context.Context, actor authz.Actor, input CreateInput) (*ProfileView, error) {
	target := authz.Target{Kind: authz.TargetProfile, OwnerIdentityID: input.IdentityID}
	if err := s.authz.Authorize(ctx, actor, authz.ActionCreateProfile, target); err != nil {
		return nil, err
	}
	if input.IdentityID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "identity id required").
			WithField("identity_id", "is required")
	}

	role := input.Role
	if role == "" {
		role = enums.RoleStudent
	}
	if !role.IsValid() {
		return nil, invalidRole(role)
	}
	if role == enums.RoleAdmin {
		if err := s.authz.Authorize(ctx, actor, authz.ActionChangeRole, target); err != nil {
			return nil, err
		}
	}
	code := strings.TrimSpace(input.AccessCode)
	if err := validation.AccessCode(code); err != nil {
		return nil, err
	}
	phone, err := normalizePhone(input.Phone)
	if err != nil {
		return nil, err
	}
	active := true
	if input.Active != nil {
		active = *input.Active
	}

	profile := &models.Profile{
		ID:         uuid.New(),
		IdentityID: input.IdentityID,
		Role:       role,
		AccessCode: code,
		Phone:      phone,
		IsActive:   active,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		r := s.repo.WithTx(tx)
		exists, err := r.IdentityExists(ctx, input.IdentityID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check identity")
		}
		if !exists {
			return pkgerrors.New(pkgerrors.CodeNotFound, "identity not found")
		}
		if _, err := r.FindByIdentityID(ctx, input.IdentityID); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "identity already has a profile")
		} else if !repo.IsNotFound(err) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing profile")
		}
		if err := ensureCodeFree(ctx, r, code, uuid.Nil); err != nil {
			return err
		}
		if err := r.Create(ctx, profile); err != nil {
			return mapWriteErr(err, "create profile")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	view := FromModel(*profile)
	return &view, nil
}

func (s *service) Get(ctx context.Context, actor authz.Actor, id uuid.UUID) (*ProfileView, error) {
	profile, err := s.loadVisible(ctx, actor, func() (*models.Profile, error) {
		return s.repo.FindByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	view := FromModel(*profile)
	return &view, nil
}

func (s *service) GetByIdentity(ctx context.Context, actor authz.Actor, identityID int64) (*ProfileView, error) {
	profile, err := s.loadVisible(ctx, actor, func() (*models.Profile, error) {
		return s.repo.FindByIdentityID(ctx, identityID)
	})
	if err != nil {
		return nil, err
	}
	view := FromModel(*profile)
	return &view, nil
}

// LookupAccessCode resolves a numeric access code to its profile. Placeholder
// codes are never resolvable.
func (s *service) LookupAccessCode(ctx context.Context, actor authz.Actor, code string) (*ProfileView, error) {
	if err := s.authz.Authorize(ctx, actor, authz.ActionViewProfile, authz.Target{Kind: authz.TargetProfile}); err != nil {
		return nil, err
	}
	code = strings.TrimSpace(code)
	if err := validation.AccessCode(code); err != nil {
		return nil, err
	}
	profile, err := s.repo.FindByAccessCode(ctx, code)
	if err != nil {
		return nil, mapReadErr(err)
	}
	view := FromModel(*profile)
	return &view, nil
}

func (s *service) List(ctx context.Context, actor authz.Actor, params ListParams) (*ListResult, error) {
	if err := s.authz.Authorize(ctx, actor, authz.ActionViewProfile, authz.Target{Kind: authz.TargetProfile}); err != nil {
		return nil, err
	}
	if params.Role != nil && !params.Role.IsValid() {
		return nil, invalidRole(*params.Role)
	}

	filter := listFilter{
		Role:   params.Role,
		Active: params.Active,
		Search: params.Search,
		Limit:  pagination.LimitWithBuffer(params.Limit),
	}
	if params.Cursor != "" {
		key, err := pagination.ParseKey(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		after, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		filter.AfterIdentityID = after
	}

	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list profiles")
	}

	normalized := pagination.NormalizeLimit(params.Limit)
	result := &ListResult{Items: make([]ProfileView, 0, len(rows))}
	if len(rows) > normalized {
		rows = rows[:normalized]
		result.NextCursor = pagination.EncodeKey(strconv.FormatInt(rows[len(rows)-1].IdentityID, 10))
	}
	for _, row := range rows {
		result.Items = append(result.Items, FromModel(row))
	}
	return result, nil
}

func (s *service) Update(ctx context.Context, actor authz.Actor, id uuid.UUID, input UpdateInput) (*ProfileView, error) {
	if err := s.authz.Authorize(ctx, actor, authz.ActionEditProfile, authz.Target{Kind: authz.TargetProfile}); err != nil {
		return nil, err
	}
	if input.Role != nil && !input.Role.IsValid() {
		return nil, invalidRole(*input.Role)
	}
	var code string
	if input.AccessCode != nil {
		code = strings.TrimSpace(*input.AccessCode)
		if err := validation.AccessCode(code); err != nil {
			return nil, err
		}
	}
	var phone *string
	if input.Phone != nil {
		normalized, err := normalizePhone(input.Phone)
		if err != nil {
			return nil, err
		}
		phone = normalized
	}

	var updated models.Profile
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		r := s.repo.WithTx(tx)
		profile, err := r.FindByID(ctx, id)
		if err != nil {
			return mapReadErr(err)
		}
		target := authz.Target{Kind: authz.TargetProfile, OwnerIdentityID: profile.IdentityID}
		ownerRole := profile.Role

		if input.Role != nil && *input.Role != profile.Role {
			if err := s.authz.Authorize(ctx, actor, authz.ActionChangeRole, target); err != nil {
				return err
			}
			profile.Role = *input.Role
		}
		codeChanged := input.AccessCode != nil && code != profile.AccessCode
		if codeChanged {
			if err := s.authz.Authorize(ctx, actor, authz.ActionEditAccessCode, target); err != nil {
				return err
			}
			if err := ensureCodeFree(ctx, r, code, profile.ID); err != nil {
				return err
			}
			profile.AccessCode = code
		}
		if input.Phone != nil {
			profile.Phone = phone
		}
		if input.Active != nil {
			if *input.Active != profile.IsActive {
				if err := s.guardOutranked(ctx, r, actor, profile.IdentityID, ownerRole); err != nil {
					return err
				}
			}
			profile.IsActive = *input.Active
		}

		if err := r.Save(ctx, profile); err != nil {
			return mapWriteErr(err, "update profile")
		}
		if codeChanged {
			if err := s.emitCodeChanged(ctx, tx, actor, profile); err != nil {
				return err
			}
		}
		updated = *profile
		return nil
	})
	if err != nil {
		return nil, err
	}
	view := FromModel(updated)
	return &view, nil
}

// guardOutranked requires restricted-field permission before an actor
// toggles the profile of an account that outranks it.
func (s *service) guardOutranked(ctx context.Context, r Repository, actor authz.Actor, identityID int64, role enums.Role) error {
	privileged, err := r.IdentityPrivileged(ctx, identityID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load identity flags")
	}
	target := authz.Target{
		Kind:            authz.TargetProfile,
		OwnerIdentityID: identityID,
		OwnerPrivileged: privileged,
		OwnerRole:       role,
	}
	if !authz.Outranks(actor, target) {
		return nil
	}
	return s.authz.Authorize(ctx, actor, authz.ActionEditRestrictedFields, target)
}

// UpdateAccessCode replaces an access code. Only actors allowed to override
// access codes may call it; the check runs before anything is read.
func (s *service) UpdateAccessCode(ctx context.Context, actor authz.Actor, id uuid.UUID, code string) (*ProfileView, error) {
	if err := s.authz.Authorize(ctx, actor, authz.ActionEditAccessCode, authz.Target{Kind: authz.TargetProfile}); err != nil {
		return nil, err
	}
	code = strings.TrimSpace(code)
	if err := validation.AccessCode(code); err != nil {
		return nil, err
	}

	var updated models.Profile
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		r := s.repo.WithTx(tx)
		profile, err := r.FindByID(ctx, id)
		if err != nil {
			return mapReadErr(err)
		}
		if profile.AccessCode == code {
			updated = *profile
			return nil
		}
		if err := ensureCodeFree(ctx, r, code, profile.ID); err != nil {
			return err
		}
		profile.AccessCode = code
		if err := r.Save(ctx, profile); err != nil {
			return mapWriteErr(err, "update access code")
		}
		if err := s.emitCodeChanged(ctx, tx, actor, profile); err != nil {
			return err
		}
		updated = *profile
		return nil
	})
	if err != nil {
		return nil, err
	}
	view := FromModel(updated)
	return &view, nil
}

func (s *service) Capabilities(ctx context.Context, actor authz.Actor, id uuid.UUID) (authz.Capabilities, error) {
	profile, err := s.loadVisible(ctx, actor, func() (*models.Profile, error) {
		return s.repo.FindByID(ctx, id)
	})
	if err != nil {
		return authz.Capabilities{}, err
	}
	return authz.CapabilitiesFor(profile.Role, profile.IsActive), nil
}

// loadVisible lets managers see any profile and everyone else only their own.
// A denied caller gets the same FORBIDDEN whether or not the row exists.
func (s *service) loadVisible(ctx context.Context, actor authz.Actor, load func() (*models.Profile, error)) (*models.Profile, error) {
	denied := s.authz.Authorize(ctx, actor, authz.ActionViewProfile, authz.Target{Kind: authz.TargetProfile})

	profile, err := load()
	if err != nil {
		if denied != nil {
			return nil, denied
		}
		return nil, mapReadErr(err)
	}
	if denied != nil {
		self := authz.Target{Kind: authz.TargetProfile, OwnerIdentityID: profile.IdentityID}
		if err := s.authz.Authorize(ctx, actor, authz.ActionViewSelf, self); err != nil {
			return nil, denied
		}
	}
	return profile, nil
}

func (s *service) emitCodeChanged(ctx context.Context, tx *gorm.DB, actor authz.Actor, profile *models.Profile) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventAccessCodeChanged,
		AggregateType: enums.AggregateProfile,
		AggregateID:   profile.ID.String(),
		Actor:         &outbox.ActorRef{IdentityID: actor.IdentityID, Role: actor.RoleLabel()},
		Data:          payloads.AccessCodeChangedEvent{ProfileID: profile.ID, IdentityID: profile.IdentityID},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record access code change")
	}
	return nil
}

func ensureCodeFree(ctx context.Context, r Repository, code string, exclude uuid.UUID) error {
	taken, err := r.AccessCodeTaken(ctx, code, exclude)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check access code")
	}
	if taken {
		return DuplicateCodeError(code)
	}
	return nil
}

// DuplicateCodeError is the error returned when an access code belongs to
// another profile.
func DuplicateCodeError(code string) error {
	return pkgerrors.New(pkgerrors.CodeDuplicateCode, fmt.Sprintf("access code %s is already assigned", code)).
		WithField("access_code", "is already assigned")
}

func invalidRole(role enums.Role) error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid role %q", role)).
		WithField("role", "must be one of [admin director teacher student]")
}

func normalizePhone(phone *string) (*string, error) {
	if phone == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*phone)
	if trimmed == "" {
		return nil, nil
	}
	if err := validation.Phone(trimmed); err != nil {
		return nil, err
	}
	return &trimmed, nil
}

func mapReadErr(err error) error {
	if repo.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "profile not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load profile")
}

func mapWriteErr(err error, action string) error {
	switch {
	case repo.IsNotFound(err):
		return pkgerrors.New(pkgerrors.CodeNotFound, "profile not found")
	case IsDuplicateAccessCode(err):
		return pkgerrors.Wrap(pkgerrors.CodeDuplicateCode, err, "access code is already assigned").
			WithField("access_code", "is already assigned")
	case isDuplicateIdentity(err):
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "identity already has a profile")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
	}
}
