// Package testdb provides isolated in-memory sqlite databases carrying the
// application schema for package tests.
package testdb

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/angelmondragon/smartaccess-backend/pkg/db/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var seq atomic.Int64

var schema = []string{
	`CREATE TABLE identities (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  username TEXT NOT NULL,
  email TEXT NOT NULL DEFAULT '',
  first_name TEXT NOT NULL DEFAULT '',
  last_name TEXT NOT NULL DEFAULT '',
  password_hash TEXT NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1,
  is_staff INTEGER NOT NULL DEFAULT 0,
  is_superuser INTEGER NOT NULL DEFAULT 0,
  last_login_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE UNIQUE INDEX ux_identities_username ON identities (username);`,
	`CREATE TABLE identity_grants (
  identity_id INTEGER NOT NULL REFERENCES identities(id) ON DELETE CASCADE,
  grant_name TEXT NOT NULL,
  created_at DATETIME,
  PRIMARY KEY (identity_id, grant_name)
);`,
	`CREATE TABLE profiles (
  id TEXT PRIMARY KEY,
  identity_id INTEGER NOT NULL REFERENCES identities(id) ON DELETE CASCADE,
  role TEXT NOT NULL DEFAULT 'student',
  access_code TEXT NOT NULL,
  phone TEXT,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE UNIQUE INDEX ux_profiles_identity_id ON profiles (identity_id);`,
	`CREATE UNIQUE INDEX ux_profiles_access_code ON profiles (access_code);`,
	`CREATE TABLE doors (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  location TEXT NOT NULL DEFAULT '',
  description TEXT NOT NULL DEFAULT '',
  state TEXT NOT NULL DEFAULT 'closed',
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE UNIQUE INDEX ux_doors_name ON doors (name);`,
	`CREATE TABLE lock_overrides (
  id TEXT PRIMARY KEY,
  door_id TEXT NOT NULL REFERENCES doors(id) ON DELETE CASCADE,
  engaged INTEGER NOT NULL DEFAULT 0,
  changed_by_id INTEGER REFERENCES identities(id) ON DELETE SET NULL,
  changed_at DATETIME NOT NULL,
  notes TEXT
);`,
	`CREATE UNIQUE INDEX ux_lock_overrides_door_id ON lock_overrides (door_id);`,
	`CREATE TABLE outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  actor_id INTEGER,
  payload BLOB NOT NULL,
  created_at DATETIME
);`,
}

// Open returns a fresh database private to the calling test.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_foreign_keys=1", name, seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	for _, stmt := range schema {
		require.NoError(t, db.Exec(stmt).Error)
	}

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// Identity inserts an active identity with the given username.
func Identity(t testing.TB, db *gorm.DB, username string) models.Identity {
	t.Helper()
	identity := models.Identity{
		Username:     username,
		Email:        username + "@colegio.mx",
		PasswordHash: "x",
		IsActive:     true,
	}
	require.NoError(t, db.Create(&identity).Error)
	return identity
}
