package authz

import (
	"slices"

	"github.com/angelmondragon/smartaccess-backend/pkg/enums"
)

// ProfileSnapshot is the part of a profile the engine decides on.
type ProfileSnapshot struct {
	Role   enums.Role
	Active bool
}

// Actor is the caller of an operation. Profile is nil when the identity has
// no profile.
type Actor struct {
	IdentityID     int64
	IdentityActive bool
	IsSuperuser    bool
	Grants         []enums.Grant
	Profile        *ProfileSnapshot
}

// HasGrant reports whether the actor holds the explicit grant.
func (a Actor) HasGrant(g enums.Grant) bool {
	return slices.Contains(a.Grants, g)
}

// Capabilities derives the actor's capabilities from its profile.
func (a Actor) Capabilities() Capabilities {
	if a.Profile == nil {
		return Capabilities{}
	}
	return CapabilitiesFor(a.Profile.Role, a.Profile.Active)
}

// RoleLabel is used for logging and metrics.
func (a Actor) RoleLabel() string {
	switch {
	case a.IsSuperuser:
		return "superuser"
	case a.Profile == nil:
		return "none"
	default:
		return a.Profile.Role.String()
	}
}

// activeRole reports whether the actor has an active profile with one of roles.
func (a Actor) activeRole(roles ...enums.Role) bool {
	if a.Profile == nil || !a.Profile.Active || !a.Profile.Role.IsValid() {
		return false
	}
	return slices.Contains(roles, a.Profile.Role)
}

// System is the actor used by provisioning tools such as the seeder.
func System() Actor {
	return Actor{IdentityActive: true, IsSuperuser: true}
}
