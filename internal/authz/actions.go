package authz

import "github.com/angelmondragon/smartaccess-backend/pkg/enums"

// Action is a gated operation.
type Action string

const (
	ActionViewSelf             Action = "view_self"
	ActionViewProfile          Action = "view_profile"
	ActionEditProfile          Action = "edit_profile"
	ActionCreateProfile        Action = "create_profile"
	ActionDeleteProfile        Action = "delete_profile"
	ActionEditRestrictedFields Action = "edit_restricted_identity_fields"
	ActionChangeRole           Action = "change_role"
	ActionEditAccessCode       Action = "edit_access_code"
	ActionEngageLock           Action = "engage_lock"
	ActionDisengageLock        Action = "disengage_lock"
	ActionViewDoor             Action = "view_door"
	ActionOperateDoor          Action = "operate_door"
	ActionManageDoor           Action = "manage_door"
	ActionViewReports          Action = "view_reports"
)

// TargetKind names the entity an action applies to.
type TargetKind string

const (
	TargetIdentity     TargetKind = "identity"
	TargetProfile      TargetKind = "profile"
	TargetDoor         TargetKind = "door"
	TargetLockOverride TargetKind = "lock_override"
	TargetReport       TargetKind = "report"
)

// Target describes the record an action is applied to.
type Target struct {
	Kind TargetKind
	// OwnerIdentityID is the identity that owns a profile or identity target.
	OwnerIdentityID int64
	// LockEngaged is set for door targets whose lock override is engaged.
	LockEngaged bool
	// OwnerPrivileged marks a superuser or staff owner.
	OwnerPrivileged bool
	// OwnerRole is the owner's profile role, empty when it has none.
	OwnerRole enums.Role
}
