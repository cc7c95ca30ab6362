// Package provisioning guarantees that every identity owns exactly one
// profile. Identity writes call EnsureProfile inside their transaction.
package provisioning

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/smartaccess-backend/internal/profiles"
	"github.com/angelmondragon/smartaccess-backend/pkg/db/models"
	"github.com/angelmondragon/smartaccess-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/smartaccess-backend/pkg/errors"
	"github.com/angelmondragon/smartaccess-backend/pkg/logger"
	"github.com/angelmondragon/smartaccess-backend/pkg/outbox"
	"github.com/angelmondragon/smartaccess-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/smartaccess-backend/pkg/validation"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Defaults overrides the placeholder values used for a new profile.
type Defaults struct {
	Role       enums.Role
	AccessCode string
	Phone      *string
	Active     *bool
}

// Options describes the identity write that triggered the check.
type Options struct {
	// NewIdentity is set when the identity was inserted in the same
	// transaction. A missing profile for an older identity is a repair.
	NewIdentity bool
	Defaults    *Defaults
}

// Result reports what EnsureProfile did.
type Result struct {
	Profile  models.Profile
	Created  bool
	Repaired bool
}

// RepairRecorder counts invariant repairs.
type RepairRecorder interface {
	IncProfileRepair()
}

// Params wires the rule.
type Params struct {
	Profiles profiles.Repository
	Outbox   outbox.Emitter
	Logger   *logger.Logger
	Metrics  RepairRecorder
}

// Rule implements the ensure-profile-exists check.
type Rule struct {
	profiles profiles.Repository
	outbox   outbox.Emitter
	logg     *logger.Logger
	metrics  RepairRecorder
}

// New builds a Rule.
func New(params Params) (*Rule, error) {
	if params.Profiles == nil {
		return nil, fmt.Errorf("profiles repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Rule{profiles: params.Profiles, outbox: params.Outbox, logg: logg, metrics: params.Metrics}, nil
}

// PlaceholderCode is the access code given to profiles created without one.
func PlaceholderCode(identityID int64) string {
	return fmt.Sprintf("%s%d", models.PlaceholderCodePrefix, identityID)
}

// EnsureProfile is idempotent: an identity that already has a profile is left
// untouched and Defaults are ignored. Concurrent callers are arbitrated by the
// unique identity_id index.
func (r *Rule) EnsureProfile(ctx context.Context, tx *gorm.DB, identity *models.Identity, opts Options) (Result, error) {
	if identity == nil || identity.ID <= 0 {
		return Result{}, pkgerrors.New(pkgerrors.CodeInternal, "ensure profile: identity id required")
	}
	repo := r.profiles.WithTx(tx)

	existing, err := repo.FindByIdentityID(ctx, identity.ID)
	if err == nil {
		return Result{Profile: *existing}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load profile")
	}

	profile, err := buildProfile(identity.ID, opts.Defaults)
	if err != nil {
		return Result{}, err
	}
	if !profile.IsPlaceholder() {
		taken, err := repo.AccessCodeTaken(ctx, profile.AccessCode, uuid.Nil)
		if err != nil {
			return Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check access code")
		}
		if taken {
			return Result{}, profiles.DuplicateCodeError(profile.AccessCode)
		}
	}

	created, err := repo.CreateIfAbsent(ctx, profile)
	if err != nil {
		if profiles.IsDuplicateAccessCode(err) {
			return Result{}, profiles.DuplicateCodeError(profile.AccessCode)
		}
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create profile")
	}
	if !created {
		// Lost the race to another writer; theirs is the profile.
		existing, err := repo.FindByIdentityID(ctx, identity.ID)
		if err != nil {
			return Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load profile")
		}
		return Result{Profile: *existing}, nil
	}

	res := Result{Profile: *profile, Created: true, Repaired: !opts.NewIdentity}
	if res.Repaired {
		if err := r.recordRepair(ctx, tx, identity, profile); err != nil {
			return Result{}, err
		}
	}
	return res, nil
}

func (r *Rule) recordRepair(ctx context.Context, tx *gorm.DB, identity *models.Identity, profile *models.Profile) error {
	ctx = r.logg.WithFields(ctx, map[string]any{
		"event":       "profile.repaired",
		"identity_id": identity.ID,
		"username":    identity.Username,
		"profile_id":  profile.ID.String(),
		"access_code": profile.AccessCode,
	})
	r.logg.Warn(ctx, "identity had no profile, created one")
	if r.metrics != nil {
		r.metrics.IncProfileRepair()
	}

	err := r.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventProfileRepaired,
		AggregateType: enums.AggregateProfile,
		AggregateID:   profile.ID.String(),
		Data: payloads.ProfileRepairedEvent{
			IdentityID: identity.ID,
			ProfileID:  profile.ID,
			AccessCode: profile.AccessCode,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record profile repair")
	}
	return nil
}

func buildProfile(identityID int64, defaults *Defaults) (*models.Profile, error) {
	profile := &models.Profile{
		ID:         uuid.New(),
		IdentityID: identityID,
		Role:       enums.RoleStudent,
		AccessCode: PlaceholderCode(identityID),
		IsActive:   true,
	}
	if defaults == nil {
		return profile, nil
	}

	if defaults.Role != "" {
		if !defaults.Role.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid role %q", defaults.Role)).
				WithField("role", "must be one of [admin director teacher student]")
		}
		profile.Role = defaults.Role
	}
	if code := strings.TrimSpace(defaults.AccessCode); code != "" {
		if err := validation.AccessCode(code); err != nil {
			return nil, err
		}
		profile.AccessCode = code
	}
	if defaults.Phone != nil {
		if phone := strings.TrimSpace(*defaults.Phone); phone != "" {
			if err := validation.Phone(phone); err != nil {
				return nil, err
			}
			profile.Phone = &phone
		}
	}
	if defaults.Active != nil {
		profile.IsActive = *defaults.Active
	}
	return profile, nil
}
