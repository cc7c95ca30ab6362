package auth

import (
	"github.com/angelmondragon/smartaccess-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	IdentityID  int64
	Username    string
	Role        enums.Role
	IsSuperuser bool
	// JTI pins the token id; a random one is generated when empty.
	JTI string
}

// AccessTokenClaims is the typed JWT issued to clients. Role and superuser
// are informational; permissions are re-read from storage on every request.
type AccessTokenClaims struct {
	IdentityID  int64      `json:"identity_id"`
	Username    string     `json:"username"`
	Role        enums.Role `json:"role"`
	IsSuperuser bool       `json:"is_superuser,omitempty"`
	jwt.RegisteredClaims
}
