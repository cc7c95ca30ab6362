package enums

import "fmt"

// Grant is an explicit administrative permission or group membership held by
// an identity, independent of its profile role.
type Grant string

const (
	// GrantOverrideAccessCode allows editing access codes after creation.
	GrantOverrideAccessCode Grant = "profiles.override_access_code"
	GrantSecurityStaff      Grant = "group.security_staff"
	GrantFrontDesk          Grant = "group.front_desk"
)

var validGrants = []Grant{
	GrantOverrideAccessCode,
	GrantSecurityStaff,
	GrantFrontDesk,
}

// IsValid reports whether the value is a known Grant.
func (g Grant) IsValid() bool {
	for _, candidate := range validGrants {
		if candidate == g {
			return true
		}
	}
	return false
}

// ParseGrant converts raw input into a Grant.
func ParseGrant(value string) (Grant, error) {
	for _, candidate := range validGrants {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid grant %q", value)
}
