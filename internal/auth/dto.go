package auth

import (
	"github.com/angelmondragon/smartaccess-backend/internal/authz"
	"github.com/angelmondragon/smartaccess-backend/pkg/enums"
)

// LoginRequest captures the credentials sent to the login endpoint.
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=150"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest pairs the (possibly expired) access token with its refresh
// token.
type RefreshRequest struct {
	AccessToken  string `json:"access_token" validate:"required"`
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// IdentitySummary describes who logged in.
type IdentitySummary struct {
	ID           int64              `json:"id"`
	Username     string             `json:"username"`
	Role         enums.Role         `json:"role"`
	IsSuperuser  bool               `json:"is_superuser"`
	Capabilities authz.Capabilities `json:"capabilities"`
}

// TokenResponse is returned by login and refresh.
type TokenResponse struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	ExpiresIn    int             `json:"expires_in"`
	Identity     IdentitySummary `json:"identity"`
}
