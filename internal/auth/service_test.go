package auth

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/smartaccess-backend/internal/provisioning"
	pkgAuth "github.com/angelmondragon/smartaccess-backend/pkg/auth"
	"github.com/angelmondragon/smartaccess-backend/pkg/auth/session"
	"github.com/angelmondragon/smartaccess-backend/pkg/config"
	"github.com/angelmondragon/smartaccess-backend/pkg/db/models"
	"github.com/angelmondragon/smartaccess-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/smartaccess-backend/pkg/errors"
	"github.com/angelmondragon/smartaccess-backend/pkg/security"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	testJWT       = config.JWTConfig{Secret: "secret", Issuer: "smartaccess", ExpirationMinutes: 30}
	fastPasswords = config.PasswordConfig{ArgonMemoryKB: 8 * 1024, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 16}
	// Tokens are parsed against the wall clock, so the fake clock must track it.
	loginTime = time.Now().UTC().Truncate(time.Second)
)

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubIdentities struct {
	byUsername map[string]*models.Identity
	lastLogin  map[int64]time.Time
}

func (s *stubIdentities) FindByUsername(ctx context.Context, username string) (*models.Identity, error) {
	if identity, ok := s.byUsername[username]; ok {
		return identity, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubIdentities) FindByID(ctx context.Context, id int64) (*models.Identity, error) {
	for _, identity := range s.byUsername {
		if identity.ID == id {
			return identity, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubIdentities) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	s.lastLogin[id] = at
	return nil
}

type stubProfiles struct {
	profiles map[int64]*models.Profile
}

func (s *stubProfiles) FindByIdentityID(ctx context.Context, identityID int64) (*models.Profile, error) {
	if p, ok := s.profiles[identityID]; ok {
		return p, nil
	}
	return nil, gorm.ErrRecordNotFound
}

// stubProvisioner returns the stored profile, or a placeholder as a repair.
type stubProvisioner struct {
	profiles *stubProfiles
	calls    int
}

func (s *stubProvisioner) EnsureProfile(ctx context.Context, tx *gorm.DB, identity *models.Identity, opts provisioning.Options) (provisioning.Result, error) {
	s.calls++
	if p, ok := s.profiles.profiles[identity.ID]; ok {
		return provisioning.Result{Profile: *p}, nil
	}
	p := &models.Profile{ID: uuid.New(), IdentityID: identity.ID, Role: enums.RoleStudent, AccessCode: provisioning.PlaceholderCode(identity.ID), IsActive: true}
	s.profiles.profiles[identity.ID] = p
	return provisioning.Result{Profile: *p, Created: true, Repaired: true}, nil
}

type stubSessions struct {
	refreshToken string
	generated    []string
	rotatedFrom  string
	revoked      []string
	rotateErr    error
}

func (s *stubSessions) Generate(ctx context.Context, identityID int64, accessID string) (string, error) {
	s.generated = append(s.generated, accessID)
	return s.refreshToken, nil
}

func (s *stubSessions) Rotate(ctx context.Context, identityID int64, oldAccessID, provided string) (string, string, error) {
	if s.rotateErr != nil {
		return "", "", s.rotateErr
	}
	if provided != s.refreshToken {
		return "", "", session.ErrInvalidRefreshToken
	}
	s.rotatedFrom = oldAccessID
	return "rotated-access-id", "rotated-refresh", nil
}

func (s *stubSessions) Revoke(ctx context.Context, identityID int64, accessID string) error {
	s.revoked = append(s.revoked, accessID)
	return nil
}

type testSetup struct {
	svc         Service
	identities  *stubIdentities
	profiles    *stubProfiles
	provisioner *stubProvisioner
	sessions    *stubSessions
}

func newTestSetup(t *testing.T) *testSetup {
	t.Helper()
	identities := &stubIdentities{byUsername: map[string]*models.Identity{}, lastLogin: map[int64]time.Time{}}
	profiles := &stubProfiles{profiles: map[int64]*models.Profile{}}
	provisioner := &stubProvisioner{profiles: profiles}
	sessions := &stubSessions{refreshToken: "refresh-token"}
	svc, err := NewService(ServiceParams{
		Identities:  func(tx *gorm.DB) IdentityStore { return identities },
		Profiles:    profiles,
		Provisioner: provisioner,
		Tx:          stubTxRunner{},
		Sessions:    sessions,
		JWTConfig:   testJWT,
		Password:    fastPasswords,
		Now:         func() time.Time { return loginTime },
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &testSetup{svc: svc, identities: identities, profiles: profiles, provisioner: provisioner, sessions: sessions}
}

func (s *testSetup) addIdentity(t *testing.T, id int64, username, password string, role *enums.Role) *models.Identity {
	t.Helper()
	hash, err := security.HashPassword(password, fastPasswords)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	identity := &models.Identity{ID: id, Username: username, PasswordHash: hash, IsActive: true}
	s.identities.byUsername[username] = identity
	if role != nil {
		s.profiles.profiles[id] = &models.Profile{ID: uuid.New(), IdentityID: id, Role: *role, AccessCode: "1001", IsActive: true}
	}
	return identity
}

func rolePtr(r enums.Role) *enums.Role { return &r }

func TestLoginIssuesTokens(t *testing.T) {
	setup := newTestSetup(t)
	setup.addIdentity(t, 1, "director", "director123", rolePtr(enums.RoleDirector))

	resp, err := setup.svc.Login(context.Background(), LoginRequest{Username: " director ", Password: "director123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.RefreshToken != "refresh-token" {
		t.Fatalf("expected refresh token, got %q", resp.RefreshToken)
	}
	if resp.ExpiresIn != 1800 {
		t.Fatalf("expected expires_in 1800, got %d", resp.ExpiresIn)
	}
	if !resp.Identity.Capabilities.CanForceUnlock {
		t.Fatalf("expected director capabilities, got %+v", resp.Identity.Capabilities)
	}

	claims, err := pkgAuth.ParseAccessToken(testJWT, resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.IdentityID != 1 || claims.Role != enums.RoleDirector {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if len(setup.sessions.generated) != 1 || setup.sessions.generated[0] != claims.ID {
		t.Fatalf("session not keyed by jti: %v vs %s", setup.sessions.generated, claims.ID)
	}
	if got := setup.identities.lastLogin[1]; !got.Equal(loginTime) {
		t.Fatalf("expected last login recorded, got %v", got)
	}
	if setup.provisioner.calls != 1 {
		t.Fatalf("expected provisioning to run once, got %d", setup.provisioner.calls)
	}
}

func TestLoginRepairsMissingProfile(t *testing.T) {
	setup := newTestSetup(t)
	setup.addIdentity(t, 7, "admin", "admin123", nil)

	resp, err := setup.svc.Login(context.Background(), LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.Identity.Role != enums.RoleStudent {
		t.Fatalf("expected placeholder role student, got %s", resp.Identity.Role)
	}
	if _, ok := setup.profiles.profiles[7]; !ok {
		t.Fatalf("expected profile to be provisioned")
	}
}

func TestLoginRejections(t *testing.T) {
	setup := newTestSetup(t)
	setup.addIdentity(t, 1, "maestro", "maestro123", rolePtr(enums.RoleTeacher))
	inactive := setup.addIdentity(t, 2, "ana.martinez", "alumno123", rolePtr(enums.RoleStudent))
	inactive.IsActive = false

	tests := []struct {
		name string
		req  LoginRequest
	}{
		{"wrong password", LoginRequest{Username: "maestro", Password: "maestro124"}},
		{"unknown username", LoginRequest{Username: "nadie", Password: "maestro123"}},
		{"inactive identity", LoginRequest{Username: "ana.martinez", Password: "alumno123"}},
		{"empty username", LoginRequest{Password: "maestro123"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := setup.svc.Login(context.Background(), tt.req)
			if !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
				t.Fatalf("expected unauthorized, got %v", err)
			}
		})
	}
	if len(setup.sessions.generated) != 0 {
		t.Fatalf("expected no sessions, got %d", len(setup.sessions.generated))
	}
}

func expiredToken(t *testing.T, identityID int64, jti string) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(testJWT, loginTime.Add(-2*time.Hour), pkgAuth.AccessTokenPayload{
		IdentityID: identityID,
		Username:   "maestro",
		Role:       enums.RoleTeacher,
		JTI:        jti,
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	return token
}

func TestRefreshRotatesSession(t *testing.T) {
	setup := newTestSetup(t)
	setup.addIdentity(t, 3, "maestro", "maestro123", rolePtr(enums.RoleTeacher))

	resp, err := setup.svc.Refresh(context.Background(), RefreshRequest{
		AccessToken:  expiredToken(t, 3, "old-access-id"),
		RefreshToken: "refresh-token",
	})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if setup.sessions.rotatedFrom != "old-access-id" {
		t.Fatalf("expected rotation from old id, got %q", setup.sessions.rotatedFrom)
	}
	if resp.RefreshToken != "rotated-refresh" {
		t.Fatalf("expected rotated refresh token, got %q", resp.RefreshToken)
	}
	claims, err := pkgAuth.ParseAccessToken(testJWT, resp.AccessToken)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.ID != "rotated-access-id" || claims.Role != enums.RoleTeacher {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestRefreshRejections(t *testing.T) {
	setup := newTestSetup(t)
	setup.addIdentity(t, 3, "maestro", "maestro123", rolePtr(enums.RoleTeacher))
	inactive := setup.addIdentity(t, 4, "luis.garcia", "alumno123", rolePtr(enums.RoleStudent))
	inactive.IsActive = false

	_, err := setup.svc.Refresh(context.Background(), RefreshRequest{AccessToken: expiredToken(t, 3, "a1"), RefreshToken: "stolen"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized for bad refresh token, got %v", err)
	}

	_, err = setup.svc.Refresh(context.Background(), RefreshRequest{AccessToken: "not-a-jwt", RefreshToken: "refresh-token"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized for bad access token, got %v", err)
	}

	_, err = setup.svc.Refresh(context.Background(), RefreshRequest{AccessToken: expiredToken(t, 4, "a2"), RefreshToken: "refresh-token"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized for inactive identity, got %v", err)
	}
	if len(setup.sessions.revoked) != 1 || setup.sessions.revoked[0] != "a2" {
		t.Fatalf("expected inactive session revoked, got %v", setup.sessions.revoked)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	setup := newTestSetup(t)
	if err := setup.svc.Logout(context.Background(), 3, "access-id"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if len(setup.sessions.revoked) != 1 || setup.sessions.revoked[0] != "access-id" {
		t.Fatalf("expected revoke, got %v", setup.sessions.revoked)
	}
	if err := setup.svc.Logout(context.Background(), 3, " "); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized for empty access id, got %v", err)
	}
}
