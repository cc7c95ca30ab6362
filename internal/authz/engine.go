package authz

import (
	"context"
	"fmt"

	"github.com/angelmondragon/smartaccess-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/smartaccess-backend/pkg/errors"
	"github.com/angelmondragon/smartaccess-backend/pkg/logger"
)

// Decision is the outcome of a single check.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow(reason string) Decision { return Decision{Allowed: true, Reason: reason} }
func deny(reason string) Decision  { return Decision{Reason: reason} }

// Decide evaluates the decision table. It is pure and fails closed: an
// inactive identity, a missing or inactive profile, an unknown role or an
// unknown action all deny, with superuser as the only bypass.
func Decide(actor Actor, action Action, target Target) Decision {
	if !actor.IdentityActive {
		return deny("identity inactive")
	}
	if action == ActionViewSelf {
		if actor.IdentityID != 0 && target.OwnerIdentityID == actor.IdentityID {
			return allow("own record")
		}
		return deny("not own record")
	}
	if actor.IsSuperuser {
		return allow("superuser")
	}
	if actor.Profile == nil {
		return deny("no profile")
	}
	if !actor.Profile.Active {
		return deny("profile inactive")
	}
	if !actor.Profile.Role.IsValid() {
		return deny("unrecognized role")
	}

	caps := actor.Capabilities()
	switch action {
	case ActionViewProfile, ActionEditProfile:
		return when(caps.CanManageUsers, "requires can_manage_users")
	case ActionCreateProfile:
		return when(actor.activeRole(enums.RoleAdmin, enums.RoleDirector), "requires admin or director")
	case ActionDeleteProfile:
		return when(actor.activeRole(enums.RoleAdmin), "requires admin")
	case ActionEditRestrictedFields, ActionChangeRole:
		return when(actor.activeRole(enums.RoleAdmin), "restricted to admin")
	case ActionEditAccessCode:
		return when(actor.activeRole(enums.RoleAdmin) || actor.HasGrant(enums.GrantOverrideAccessCode),
			"requires admin or access code override")
	case ActionEngageLock:
		return when(caps.CanControlLock, "requires can_control_lock")
	case ActionDisengageLock:
		return when(caps.CanControlLock && caps.CanForceUnlock, "requires can_force_unlock")
	case ActionViewDoor:
		return when(caps.CanOpenDoor, "requires can_open_door")
	case ActionOperateDoor:
		if !caps.CanOpenDoor {
			return deny("requires can_open_door")
		}
		return when(!target.LockEngaged || caps.CanForceUnlock, "lock engaged, requires can_force_unlock")
	case ActionManageDoor:
		return when(actor.activeRole(enums.RoleAdmin, enums.RoleDirector), "requires admin or director")
	case ActionViewReports:
		return when(caps.CanManageUsers, "requires can_manage_users")
	default:
		return deny("unknown action")
	}
}

func when(ok bool, denyReason string) Decision {
	if ok {
		return allow("capability")
	}
	return deny(denyReason)
}

// Authorizer is the single gate every entry point consults before acting.
type Authorizer interface {
	Authorize(ctx context.Context, actor Actor, action Action, target Target) error
}

// DecisionRecorder receives every decision for metrics.
type DecisionRecorder interface {
	ObserveDecision(action string, allowed bool)
}

// Engine wraps Decide with metrics, logging and typed errors.
type Engine struct {
	recorder DecisionRecorder
	logg     *logger.Logger
}

// NewEngine builds an Engine. Both arguments are optional.
func NewEngine(recorder DecisionRecorder, logg *logger.Logger) *Engine {
	return &Engine{recorder: recorder, logg: logg}
}

// Authorize returns a FORBIDDEN error when the decision denies.
func (e *Engine) Authorize(ctx context.Context, actor Actor, action Action, target Target) error {
	d := Decide(actor, action, target)
	if e.recorder != nil {
		e.recorder.ObserveDecision(string(action), d.Allowed)
	}
	if d.Allowed {
		return nil
	}
	if e.logg != nil {
		ctx = e.logg.WithFields(ctx, map[string]any{
			"action":      string(action),
			"target_kind": string(target.Kind),
			"actor_id":    actor.IdentityID,
			"actor_role":  actor.RoleLabel(),
			"reason":      d.Reason,
		})
		e.logg.Info(ctx, "authorization denied")
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, fmt.Sprintf("%s denied: %s", action, d.Reason))
}
