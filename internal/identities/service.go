package identities

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/angelmondragon/smartaccess-backend/internal/authz"
	"github.com/angelmondragon/smartaccess-backend/internal/profiles"
	"github.com/angelmondragon/smartaccess-backend/internal/provisioning"
	"github.com/angelmondragon/smartaccess-backend/internal/repo"
	"github.com/angelmondragon/smartaccess-backend/pkg/config"
	"github.com/angelmondragon/smartaccess-backend/pkg/db/models"
	"github.com/angelmondragon/smartaccess-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/smartaccess-backend/pkg/errors"
	"github.com/angelmondragon/smartaccess-backend/pkg/logger"
	"github.com/angelmondragon/smartaccess-backend/pkg/outbox"
	"github.com/angelmondragon/smartaccess-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/smartaccess-backend/pkg/pagination"
	"github.com/angelmondragon/smartaccess-backend/pkg/security"
	"github.com/angelmondragon/smartaccess-backend/pkg/validation"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Provisioner is the ensure-profile-exists rule.
type Provisioner interface {
	EnsureProfile(ctx context.Context, tx *gorm.DB, identity *models.Identity, opts provisioning.Options) (provisioning.Result, error)
}

// SessionRevoker ends the refresh sessions of an identity.
type SessionRevoker interface {
	RevokeAll(ctx context.Context, identityID int64) (int, error)
}

// Service manages identities. Every write runs the provisioning rule in the
// same transaction.
type Service interface {
	Create(ctx context.Context, actor authz.Actor, input CreateInput) (*IdentityView, error)
	Update(ctx context.Context, actor authz.Actor, id int64, input UpdateInput) (*IdentityView, error)
	Delete(ctx context.Context, actor authz.Actor, id int64) error
	Get(ctx context.Context, actor authz.Actor, id int64) (*IdentityView, error)
	List(ctx context.Context, actor authz.Actor, params ListParams) (*ListResult, error)
	LoadActor(ctx context.Context, identityID int64) (authz.Actor, error)
}

// ServiceParams packages the dependencies for the identity service.
type ServiceParams struct {
	Repo        Repository
	Profiles    profiles.Repository
	Provisioner Provisioner
	Tx          txRunner
	Authz       authz.Authorizer
	Outbox      outbox.Emitter
	Sessions    SessionRevoker
	Password    config.PasswordConfig
	Logger      *logger.Logger
}

type service struct {
	repo        Repository
	profiles    profiles.Repository
	provisioner Provisioner
	tx          txRunner
	authz       authz.Authorizer
	outbox      outbox.Emitter
	sessions    SessionRevoker
	passwordCfg config.PasswordConfig
	logg        *logger.Logger
}

// NewService builds an identity service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("identities repository required")
	case params.Profiles == nil:
		return nil, fmt.Errorf("profiles repository required")
	case params.Provisioner == nil:
		return nil, fmt.Errorf("provisioner required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Authz == nil:
		return nil, fmt.Errorf("authorizer required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:        params.Repo,
		profiles:    params.Profiles,
		provisioner: params.Provisioner,
		tx:          params.Tx,
		authz:       params.Authz,
		outbox:      params.Outbox,
		sessions:    params.Sessions,
		passwordCfg: params.Password,
		logg:        logg,
	}, nil
}

func (s *service) Create(ctx context.Context, actor authz.Actor, input CreateInput) (*IdentityView, error) {
	target := authz.Target{Kind: authz.TargetIdentity}
	if err := s.authz.Authorize(ctx, actor, authz.ActionCreateProfile, target); err != nil {
		return nil, err
	}
	if input.IsStaff || input.IsSuperuser || len(input.Grants) > 0 {
		if err := s.authz.Authorize(ctx, actor, authz.ActionEditRestrictedFields, target); err != nil {
			return nil, err
		}
	}
	if input.Profile != nil && input.Profile.Role == enums.RoleAdmin {
		if err := s.authz.Authorize(ctx, actor, authz.ActionChangeRole, target); err != nil {
			return nil, err
		}
	}

	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	if err := checkGrants(input.Grants); err != nil {
		return nil, err
	}
	if err := checkPassword(input.Password); err != nil {
		return nil, err
	}
	hash, err := security.HashPassword(input.Password, s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	active := true
	if input.Active != nil {
		active = *input.Active
	}
	identity := &models.Identity{
		Username:     input.Username,
		Email:        input.Email,
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		PasswordHash: hash,
		IsActive:     active,
		IsStaff:      input.IsStaff,
		IsSuperuser:  input.IsSuperuser,
	}

	var view IdentityView
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		r := s.repo.WithTx(tx)
		taken, err := r.UsernameTaken(ctx, identity.Username)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check username")
		}
		if taken {
			return usernameConflict(identity.Username)
		}
		if err := r.Create(ctx, identity); err != nil {
			if isDuplicateUsername(err) {
				return usernameConflict(identity.Username)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create identity")
		}
		if err := r.ReplaceGrants(ctx, identity.ID, input.Grants); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store grants")
		}

		opts := provisioning.Options{NewIdentity: true}
		if p := input.Profile; p != nil {
			opts.Defaults = &provisioning.Defaults{Role: p.Role, AccessCode: p.AccessCode, Phone: p.Phone}
		}
		res, err := s.provisioner.EnsureProfile(ctx, tx, identity, opts)
		if err != nil {
			return err
		}

		err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventIdentityCreated,
			AggregateType: enums.AggregateIdentity,
			AggregateID:   strconv.FormatInt(identity.ID, 10),
			Actor:         actorRef(actor),
			Data: payloads.IdentityCreatedEvent{
				IdentityID: identity.ID,
				Username:   identity.Username,
				Role:       res.Profile.Role,
			},
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record identity creation")
		}
		view = FromModel(*identity, input.Grants, &res.Profile)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

func (s *service) Update(ctx context.Context, actor authz.Actor, id int64, input UpdateInput) (*IdentityView, error) {
	target := authz.Target{Kind: authz.TargetIdentity, OwnerIdentityID: id}
	if err := s.authz.Authorize(ctx, actor, authz.ActionEditProfile, target); err != nil {
		if !input.selfServiceOnly() || s.authz.Authorize(ctx, actor, authz.ActionViewSelf, target) != nil {
			return nil, err
		}
	}
	if input.touchesRestricted() {
		if err := s.authz.Authorize(ctx, actor, authz.ActionEditRestrictedFields, target); err != nil {
			return nil, err
		}
	}
	if input.Password != nil || input.Active != nil {
		if err := s.guardOutranked(ctx, actor, id); err != nil {
			return nil, err
		}
	}
	if err := validation.Struct(input); err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if input.Email != nil {
		fields["email"] = strings.ToLower(strings.TrimSpace(*input.Email))
	}
	if input.FirstName != nil {
		fields["first_name"] = strings.TrimSpace(*input.FirstName)
	}
	if input.LastName != nil {
		fields["last_name"] = strings.TrimSpace(*input.LastName)
	}
	if input.Active != nil {
		fields["is_active"] = *input.Active
	}
	if input.IsStaff != nil {
		fields["is_staff"] = *input.IsStaff
	}
	if input.IsSuperuser != nil {
		fields["is_superuser"] = *input.IsSuperuser
	}
	if input.Password != nil {
		if err := checkPassword(*input.Password); err != nil {
			return nil, err
		}
		hash, err := security.HashPassword(*input.Password, s.passwordCfg)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
		}
		fields["password_hash"] = hash
	}
	if input.Grants != nil {
		if err := checkGrants(*input.Grants); err != nil {
			return nil, err
		}
	}

	var view IdentityView
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		r := s.repo.WithTx(tx)
		if err := r.Update(ctx, id, fields); err != nil {
			return mapReadErr(err, "update identity")
		}
		if input.Grants != nil {
			if err := r.ReplaceGrants(ctx, id, *input.Grants); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store grants")
			}
		}
		identity, err := r.FindByID(ctx, id)
		if err != nil {
			return mapReadErr(err, "load identity")
		}
		res, err := s.provisioner.EnsureProfile(ctx, tx, identity, provisioning.Options{})
		if err != nil {
			return err
		}
		grants, err := r.Grants(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load grants")
		}
		view = FromModel(*identity, grants, &res.Profile)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if (input.Active != nil && !*input.Active) || input.Password != nil {
		s.revokeSessions(ctx, id)
	}
	return &view, nil
}

// Delete removes an identity together with its profile and grants. Lock
// overrides it last changed keep their state with changed_by cleared.
func (s *service) Delete(ctx context.Context, actor authz.Actor, id int64) error {
	target := authz.Target{Kind: authz.TargetIdentity, OwnerIdentityID: id}
	if err := s.authz.Authorize(ctx, actor, authz.ActionDeleteProfile, target); err != nil {
		return err
	}
	if actor.IdentityID == id {
		return pkgerrors.New(pkgerrors.CodeConflict, "cannot delete the identity you are signed in with")
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		r := s.repo.WithTx(tx)
		identity, err := r.FindByID(ctx, id)
		if err != nil {
			return mapReadErr(err, "load identity")
		}
		if err := r.DeleteProfile(ctx, id); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete profile")
		}
		released, err := r.ReleaseLocks(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release lock overrides")
		}
		if err := r.ReplaceGrants(ctx, id, nil); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete grants")
		}
		if err := r.Delete(ctx, id); err != nil {
			return mapReadErr(err, "delete identity")
		}
		err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventIdentityDeleted,
			AggregateType: enums.AggregateIdentity,
			AggregateID:   strconv.FormatInt(id, 10),
			Actor:         actorRef(actor),
			Data: payloads.IdentityDeletedEvent{
				IdentityID:    id,
				Username:      identity.Username,
				LocksReleased: released,
			},
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record identity deletion")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.revokeSessions(ctx, id)
	return nil
}

func (s *service) Get(ctx context.Context, actor authz.Actor, id int64) (*IdentityView, error) {
	target := authz.Target{Kind: authz.TargetIdentity, OwnerIdentityID: id}
	if err := s.authz.Authorize(ctx, actor, authz.ActionViewProfile, target); err != nil {
		if s.authz.Authorize(ctx, actor, authz.ActionViewSelf, target) != nil {
			return nil, err
		}
	}
	identity, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapReadErr(err, "load identity")
	}
	view, err := s.view(ctx, *identity)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

func (s *service) List(ctx context.Context, actor authz.Actor, params ListParams) (*ListResult, error) {
	if err := s.authz.Authorize(ctx, actor, authz.ActionViewProfile, authz.Target{Kind: authz.TargetIdentity}); err != nil {
		return nil, err
	}
	filter := listFilter{Search: params.Search, Active: params.Active, Limit: pagination.LimitWithBuffer(params.Limit)}
	if params.Cursor != "" {
		key, err := pagination.ParseKey(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		if filter.AfterID, err = strconv.ParseInt(key, 10, 64); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
	}

	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list identities")
	}
	result := &ListResult{Items: make([]IdentityView, 0, len(rows))}
	if limit := pagination.NormalizeLimit(params.Limit); len(rows) > limit {
		rows = rows[:limit]
		result.NextCursor = pagination.EncodeKey(strconv.FormatInt(rows[len(rows)-1].ID, 10))
	}
	for _, row := range rows {
		view, err := s.view(ctx, row)
		if err != nil {
			return nil, err
		}
		result.Items = append(result.Items, view)
	}
	return result, nil
}

// LoadActor reads the identity, grants and profile that drive authorization.
// A missing profile is left nil so every role check fails closed.
func (s *service) LoadActor(ctx context.Context, identityID int64) (authz.Actor, error) {
	identity, err := s.repo.FindByID(ctx, identityID)
	if err != nil {
		return authz.Actor{}, mapReadErr(err, "load identity")
	}
	grants, err := s.repo.Grants(ctx, identityID)
	if err != nil {
		return authz.Actor{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load grants")
	}
	actor := authz.Actor{
		IdentityID:     identity.ID,
		IdentityActive: identity.IsActive,
		IsSuperuser:    identity.IsSuperuser,
		Grants:         grants,
	}
	profile, err := s.profiles.FindByIdentityID(ctx, identityID)
	switch {
	case err == nil:
		actor.Profile = &authz.ProfileSnapshot{Role: profile.Role, Active: profile.IsActive}
	case !repo.IsNotFound(err):
		return authz.Actor{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load profile")
	}
	return actor, nil
}

// guardOutranked requires restricted-field permission before an actor resets
// the password or activation of an account that outranks it.
func (s *service) guardOutranked(ctx context.Context, actor authz.Actor, id int64) error {
	if id == actor.IdentityID {
		return nil
	}
	identity, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return mapReadErr(err, "load identity")
	}
	target := authz.Target{
		Kind:            authz.TargetIdentity,
		OwnerIdentityID: id,
		OwnerPrivileged: identity.IsSuperuser || identity.IsStaff,
	}
	profile, err := s.profiles.FindByIdentityID(ctx, id)
	switch {
	case err == nil:
		target.OwnerRole = profile.Role
	case !repo.IsNotFound(err):
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load profile")
	}
	if !authz.Outranks(actor, target) {
		return nil
	}
	return s.authz.Authorize(ctx, actor, authz.ActionEditRestrictedFields, target)
}

func (s *service) view(ctx context.Context, identity models.Identity) (IdentityView, error) {
	grants, err := s.repo.Grants(ctx, identity.ID)
	if err != nil {
		return IdentityView{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load grants")
	}
	profile, err := s.profiles.FindByIdentityID(ctx, identity.ID)
	if err != nil && !repo.IsNotFound(err) {
		return IdentityView{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load profile")
	}
	return FromModel(identity, grants, profile), nil
}

func (s *service) revokeSessions(ctx context.Context, id int64) {
	if s.sessions == nil {
		return
	}
	if _, err := s.sessions.RevokeAll(ctx, id); err != nil {
		s.logg.Error(s.logg.WithIdentityID(ctx, id), "revoke sessions", err)
	}
}

func actorRef(actor authz.Actor) *outbox.ActorRef {
	if actor.IdentityID == 0 {
		return nil
	}
	return &outbox.ActorRef{IdentityID: actor.IdentityID, Role: actor.RoleLabel()}
}

func checkPassword(password string) error {
	if err := security.CheckPassword(password); err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "password "+err.Error()).
			WithField("password", err.Error())
	}
	return nil
}

func checkGrants(grants []enums.Grant) error {
	for _, g := range grants {
		if !g.IsValid() {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown grant %q", g)).
				WithField("grants", "contains an unknown grant")
		}
	}
	return nil
}

func usernameConflict(username string) error {
	return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("username %s already exists", username)).
		WithField("username", "already exists")
}

func mapReadErr(err error, action string) error {
	if repo.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "identity not found")
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
