package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/smartaccess-backend/internal/authz"
	"github.com/angelmondragon/smartaccess-backend/internal/provisioning"
	pkgAuth "github.com/angelmondragon/smartaccess-backend/pkg/auth"
	"github.com/angelmondragon/smartaccess-backend/pkg/auth/session"
	"github.com/angelmondragon/smartaccess-backend/pkg/config"
	"github.com/angelmondragon/smartaccess-backend/pkg/db/models"
	"github.com/angelmondragon/smartaccess-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/smartaccess-backend/pkg/errors"
	"github.com/angelmondragon/smartaccess-backend/pkg/logger"
	"github.com/angelmondragon/smartaccess-backend/pkg/security"
	"gorm.io/gorm"
)

const invalidCredentialsMessage = "invalid credentials"

// Service issues and renews access tokens for identities.
type Service interface {
	Login(ctx context.Context, req LoginRequest) (*TokenResponse, error)
	Refresh(ctx context.Context, req RefreshRequest) (*TokenResponse, error)
	Logout(ctx context.Context, identityID int64, accessID string) error
}

// IdentityStore is the part of the identity repository login needs.
type IdentityStore interface {
	FindByUsername(ctx context.Context, username string) (*models.Identity, error)
	FindByID(ctx context.Context, id int64) (*models.Identity, error)
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error
}

// ProfileReader resolves the role carried in the token.
type ProfileReader interface {
	FindByIdentityID(ctx context.Context, identityID int64) (*models.Profile, error)
}

type provisioner interface {
	EnsureProfile(ctx context.Context, tx *gorm.DB, identity *models.Identity, opts provisioning.Options) (provisioning.Result, error)
}

type sessionManager interface {
	Generate(ctx context.Context, identityID int64, accessID string) (string, error)
	Rotate(ctx context.Context, identityID int64, oldAccessID, provided string) (string, string, error)
	Revoke(ctx context.Context, identityID int64, accessID string) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams bundles the dependencies required to build an auth service.
// Identities is called with the login transaction, or nil outside one.
type ServiceParams struct {
	Identities  func(tx *gorm.DB) IdentityStore
	Profiles    ProfileReader
	Provisioner provisioner
	Tx          txRunner
	Sessions    sessionManager
	JWTConfig   config.JWTConfig
	Password    config.PasswordConfig
	Logger      *logger.Logger
	Now         func() time.Time
}

type service struct {
	identities  func(tx *gorm.DB) IdentityStore
	profiles    ProfileReader
	provisioner provisioner
	tx          txRunner
	sessions    sessionManager
	jwtCfg      config.JWTConfig
	passwordCfg config.PasswordConfig
	logg        *logger.Logger
	now         func() time.Time
}

// NewService constructs the login service.
func NewService(params ServiceParams) (Service, error) {
	if params.Identities == nil {
		return nil, fmt.Errorf("identity store is required")
	}
	if params.Profiles == nil {
		return nil, fmt.Errorf("profile reader is required")
	}
	if params.Provisioner == nil {
		return nil, fmt.Errorf("provisioner is required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		identities:  params.Identities,
		profiles:    params.Profiles,
		provisioner: params.Provisioner,
		tx:          params.Tx,
		sessions:    params.Sessions,
		jwtCfg:      params.JWTConfig,
		passwordCfg: params.Password,
		logg:        params.Logger,
		now:         now,
	}, nil
}

// Login verifies the password and records last_login_at. Recording the login
// is an identity write, so the profile rule runs in the same transaction.
func (s *service) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	identity, err := s.identities(nil).FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup identity")
	}

	valid, err := security.VerifyPassword(req.Password, identity.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid || !identity.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	if security.NeedsRehash(identity.PasswordHash, s.passwordCfg) && s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "identity_id", identity.ID), "password hash uses outdated parameters")
	}

	now := s.now()
	var profile models.Profile
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.identities(tx).UpdateLastLogin(ctx, identity.ID, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update last login")
		}
		res, err := s.provisioner.EnsureProfile(ctx, tx, identity, provisioning.Options{})
		if err != nil {
			return err
		}
		profile = res.Profile
		return nil
	})
	if err != nil {
		return nil, err
	}
	identity.LastLoginAt = &now

	return s.issue(ctx, identity, &profile, now, func(accessID string) (string, error) {
		return s.sessions.Generate(ctx, identity.ID, accessID)
	})
}

// Refresh trades a refresh token for a new pair. The access token may be
// expired but its signature must be valid. Deactivated identities are refused.
func (s *service) Refresh(ctx context.Context, req RefreshRequest) (*TokenResponse, error) {
	claims, err := pkgAuth.ParseAccessTokenAllowExpired(s.jwtCfg, strings.TrimSpace(req.AccessToken))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid access token")
	}
	if claims.ID == "" || claims.IdentityID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid access token")
	}

	identity, err := s.identities(nil).FindByID(ctx, claims.IdentityID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid session")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup identity")
	}
	if !identity.IsActive {
		_ = s.sessions.Revoke(ctx, identity.ID, claims.ID)
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "identity inactive")
	}

	profile, err := s.profiles.FindByIdentityID(ctx, identity.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup profile")
	}

	newAccessID, newRefresh, err := s.sessions.Rotate(ctx, identity.ID, claims.ID, strings.TrimSpace(req.RefreshToken))
	if err != nil {
		if errors.Is(err, session.ErrInvalidRefreshToken) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid refresh token")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rotate session")
	}

	resp, err := s.mint(identity, profile, s.now(), newAccessID)
	if err != nil {
		return nil, err
	}
	resp.RefreshToken = newRefresh
	return resp, nil
}

// Logout ends the session bound to the access token id.
func (s *service) Logout(ctx context.Context, identityID int64, accessID string) error {
	if identityID <= 0 || strings.TrimSpace(accessID) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid session")
	}
	if err := s.sessions.Revoke(ctx, identityID, accessID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke session")
	}
	return nil
}

func (s *service) issue(ctx context.Context, identity *models.Identity, profile *models.Profile, now time.Time, store func(accessID string) (string, error)) (*TokenResponse, error) {
	accessID := session.NewAccessID()
	resp, err := s.mint(identity, profile, now, accessID)
	if err != nil {
		return nil, err
	}
	refresh, err := store(accessID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store refresh token")
	}
	resp.RefreshToken = refresh
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"identity_id": identity.ID,
			"role":        resp.Identity.Role,
		})
		s.logg.Info(logCtx, "auth.login")
	}
	return resp, nil
}

// mint builds the access token. The role claim is informational; without a
// profile it carries the least privileged role.
func (s *service) mint(identity *models.Identity, profile *models.Profile, now time.Time, accessID string) (*TokenResponse, error) {
	role := enums.RoleStudent
	var caps authz.Capabilities
	if profile != nil {
		role = profile.Role
		caps = authz.CapabilitiesFor(profile.Role, profile.IsActive)
	}
	token, err := pkgAuth.MintAccessToken(s.jwtCfg, now, pkgAuth.AccessTokenPayload{
		IdentityID:  identity.ID,
		Username:    identity.Username,
		Role:        role,
		IsSuperuser: identity.IsSuperuser,
		JTI:         accessID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	return &TokenResponse{
		AccessToken: token,
		ExpiresIn:   s.jwtCfg.ExpirationMinutes * 60,
		Identity: IdentitySummary{
			ID:           identity.ID,
			Username:     identity.Username,
			Role:         role,
			IsSuperuser:  identity.IsSuperuser,
			Capabilities: caps,
		},
	}, nil
}
