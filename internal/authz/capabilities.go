package authz

import "github.com/angelmondragon/smartaccess-backend/pkg/enums"

// Capabilities are the named permissions derived from a profile's role and
// active flag.
type Capabilities struct {
	CanOpenDoor    bool `json:"can_open_door"`
	CanManageUsers bool `json:"can_manage_users"`
	CanControlLock bool `json:"can_control_lock"`
	CanForceUnlock bool `json:"can_force_unlock"`
}

var roleCapabilities = map[enums.Role]Capabilities{
	enums.RoleStudent: {
		CanOpenDoor: true,
	},
	enums.RoleTeacher: {
		CanOpenDoor:    true,
		CanManageUsers: true,
		CanControlLock: true,
	},
	enums.RoleDirector: {
		CanOpenDoor:    true,
		CanManageUsers: true,
		CanControlLock: true,
		CanForceUnlock: true,
	},
	enums.RoleAdmin: {
		CanOpenDoor:    true,
		CanManageUsers: true,
		CanControlLock: true,
		CanForceUnlock: true,
	},
}

// CapabilitiesFor returns the capability set for (role, active). Inactive
// profiles and unknown roles get nothing.
func CapabilitiesFor(role enums.Role, active bool) Capabilities {
	if !active {
		return Capabilities{}
	}
	return roleCapabilities[role]
}
