package authz

import "github.com/angelmondragon/smartaccess-backend/pkg/enums"

var roleRank = map[enums.Role]int{
	enums.RoleStudent:  1,
	enums.RoleTeacher:  2,
	enums.RoleDirector: 3,
	enums.RoleAdmin:    4,
}

// Outranks reports whether the owner of target sits above the actor: a
// superuser or staff account, or a profile role ranked higher than the
// actor's own. Credentials and activation of such accounts are restricted
// fields. An actor never outranks itself.
func Outranks(actor Actor, target Target) bool {
	if target.OwnerIdentityID != 0 && target.OwnerIdentityID == actor.IdentityID {
		return false
	}
	if target.OwnerPrivileged {
		return true
	}
	own := 0
	if actor.Profile != nil {
		own = roleRank[actor.Profile.Role]
	}
	return roleRank[target.OwnerRole] > own
}
