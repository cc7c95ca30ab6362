package enums

import (
	"fmt"
	"strings"
)

// Role is the institutional role carried by a profile.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleDirector Role = "director"
	RoleTeacher  Role = "teacher"
	RoleStudent  Role = "student"
)

var validRoles = []Role{
	RoleAdmin,
	RoleDirector,
	RoleTeacher,
	RoleStudent,
}

// String implements fmt.Stringer.
func (r Role) String() string {
	return string(r)
}

// IsValid reports whether the value is a known Role.
func (r Role) IsValid() bool {
	for _, candidate := range validRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// Roles returns every known role in privilege order, highest first.
func Roles() []Role {
	out := make([]Role, len(validRoles))
	copy(out, validRoles)
	return out
}

// ParseRole converts raw input into a Role. Matching is case-insensitive.
func ParseRole(value string) (Role, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validRoles {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid role %q", value)
}
