// Package session keeps refresh tokens in redis keyed by the access token id
// (jti), and an index of live sessions per identity.
package session

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/smartaccess-backend/pkg/config"
	redisclient "github.com/angelmondragon/smartaccess-backend/pkg/redis"
	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
)

const refreshTokenBytes = 32

// ErrInvalidRefreshToken is returned for unknown, expired or mismatched tokens.
var ErrInvalidRefreshToken = errors.New("invalid refresh token")

type sessionStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	AddMember(ctx context.Context, key, value string, ttl time.Duration) error
	Members(ctx context.Context, key string) ([]string, error)
	RemoveMember(ctx context.Context, key, value string) error
}

type sessionKeyer interface {
	AccessSessionKey(accessID string) string
	IdentitySessionsKey(identityID string) string
}

// Manager issues, rotates and revokes refresh sessions.
type Manager struct {
	store sessionStore
	keyer sessionKeyer
	ttl   time.Duration
}

// AccessSessionChecker is the read-only surface used by the auth middleware.
type AccessSessionChecker interface {
	HasSession(ctx context.Context, accessID string) (bool, error)
}

// NewManager constructs a session manager backed by redis.
func NewManager(client *redisclient.Client, cfg config.JWTConfig) (*Manager, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	ttl := cfg.RefreshTokenTTL()
	if ttl <= 0 {
		return nil, fmt.Errorf("refresh token ttl must be positive")
	}
	if accessTTL := time.Duration(cfg.ExpirationMinutes) * time.Minute; ttl <= accessTTL {
		return nil, fmt.Errorf("refresh token ttl (%s) must exceed access token ttl (%s)", ttl, accessTTL)
	}
	return &Manager{store: client, keyer: client, ttl: ttl}, nil
}

// Generate stores a fresh refresh token for accessID on behalf of identityID.
func (m *Manager) Generate(ctx context.Context, identityID int64, accessID string) (string, error) {
	if identityID <= 0 || strings.TrimSpace(accessID) == "" {
		return "", fmt.Errorf("identity id and access id are required")
	}
	token, err := generateRefreshToken()
	if err != nil {
		return "", err
	}
	if err := m.store.Set(ctx, m.keyer.AccessSessionKey(accessID), encodeSession(identityID, token), m.ttl); err != nil {
		return "", err
	}
	if err := m.store.AddMember(ctx, m.identityKey(identityID), accessID, m.ttl); err != nil {
		return "", err
	}
	return token, nil
}

// Rotate swaps a valid refresh token for a new access id and refresh token.
// The old session is removed so a token can be redeemed only once.
func (m *Manager) Rotate(ctx context.Context, identityID int64, oldAccessID, provided string) (string, string, error) {
	if strings.TrimSpace(oldAccessID) == "" || strings.TrimSpace(provided) == "" {
		return "", "", ErrInvalidRefreshToken
	}
	key := m.keyer.AccessSessionKey(oldAccessID)
	stored, err := m.store.Get(ctx, key)
	if err != nil {
		return "", "", wrapNotFound(err)
	}
	owner, token, ok := decodeSession(stored)
	if !ok || owner != identityID || subtle.ConstantTimeCompare([]byte(token), []byte(provided)) != 1 {
		return "", "", ErrInvalidRefreshToken
	}

	newAccessID := NewAccessID()
	newToken, err := m.Generate(ctx, identityID, newAccessID)
	if err != nil {
		return "", "", err
	}
	if err := m.Revoke(ctx, identityID, oldAccessID); err != nil {
		return "", "", err
	}
	return newAccessID, newToken, nil
}

// Revoke deletes one session.
func (m *Manager) Revoke(ctx context.Context, identityID int64, accessID string) error {
	if strings.TrimSpace(accessID) == "" {
		return fmt.Errorf("access id is required")
	}
	if err := m.store.Del(ctx, m.keyer.AccessSessionKey(accessID)); err != nil {
		return err
	}
	return m.store.RemoveMember(ctx, m.identityKey(identityID), accessID)
}

// RevokeAll ends every session of an identity, e.g. after it is deactivated
// or deleted. It returns how many sessions were indexed.
func (m *Manager) RevokeAll(ctx context.Context, identityID int64) (int, error) {
	indexKey := m.identityKey(identityID)
	accessIDs, err := m.store.Members(ctx, indexKey)
	if err != nil {
		return 0, err
	}
	keys := make([]string, 0, len(accessIDs)+1)
	for _, id := range accessIDs {
		keys = append(keys, m.keyer.AccessSessionKey(id))
	}
	keys = append(keys, indexKey)
	return len(accessIDs), m.store.Del(ctx, keys...)
}

// HasSession reports whether accessID still has a live refresh session.
func (m *Manager) HasSession(ctx context.Context, accessID string) (bool, error) {
	if strings.TrimSpace(accessID) == "" {
		return false, fmt.Errorf("access id is required")
	}
	if _, err := m.store.Get(ctx, m.keyer.AccessSessionKey(accessID)); err != nil {
		if errors.Is(err, redislib.Nil) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// RevokeMany ends the sessions of several identities and reports every
// failure rather than stopping at the first.
func (m *Manager) RevokeMany(ctx context.Context, identityIDs ...int64) error {
	var errs error
	for _, id := range identityIDs {
		if _, err := m.RevokeAll(ctx, id); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("identity %d: %w", id, err))
		}
	}
	return errs
}

// NewAccessID produces the identifier used as the JWT jti and redis key.
func NewAccessID() string {
	return uuid.NewString()
}

func (m *Manager) identityKey(identityID int64) string {
	return m.keyer.IdentitySessionsKey(strconv.FormatInt(identityID, 10))
}

func encodeSession(identityID int64, token string) string {
	return strconv.FormatInt(identityID, 10) + "." + token
}

func decodeSession(value string) (int64, string, bool) {
	idPart, token, ok := strings.Cut(value, ".")
	if !ok || token == "" {
		return 0, "", false
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return 0, "", false
	}
	return id, token, true
}

func generateRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func wrapNotFound(err error) error {
	if errors.Is(err, redislib.Nil) {
		return ErrInvalidRefreshToken
	}
	return err
}
