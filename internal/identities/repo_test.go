package identities

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/smartaccess-backend/internal/repo"
	"github.com/angelmondragon/smartaccess-backend/internal/testdb"
	"github.com/angelmondragon/smartaccess-backend/pkg/db/models"
	"github.com/angelmondragon/smartaccess-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepositoryGrantsReplace(t *testing.T) {
	db := testdb.Open(t)
	ctx := context.Background()
	r := NewRepository(db)
	identity := testdb.Identity(t, db, "director")

	require.NoError(t, r.ReplaceGrants(ctx, identity.ID, []enums.Grant{
		enums.GrantSecurityStaff, enums.GrantOverrideAccessCode, enums.GrantSecurityStaff,
	}))
	grants, err := r.Grants(ctx, identity.ID)
	require.NoError(t, err)
	assert.Equal(t, []enums.Grant{enums.GrantSecurityStaff, enums.GrantOverrideAccessCode}, grants)

	require.NoError(t, r.ReplaceGrants(ctx, identity.ID, nil))
	grants, err = r.Grants(ctx, identity.ID)
	require.NoError(t, err)
	assert.Empty(t, grants)
}

func TestRepositoryReleaseLocks(t *testing.T) {
	db := testdb.Open(t)
	ctx := context.Background()
	r := NewRepository(db)
	identity := testdb.Identity(t, db, "maestro")

	door := models.Door{ID: uuid.New(), Name: "Sala de Servidores", State: enums.DoorStateClosed, IsActive: true}
	require.NoError(t, db.Create(&door).Error)
	lock := models.LockOverride{ID: uuid.New(), DoorID: door.ID, Engaged: true, ChangedByID: &identity.ID, ChangedAt: time.Now().UTC()}
	require.NoError(t, db.Create(&lock).Error)

	n, err := r.ReleaseLocks(ctx, identity.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var stored models.LockOverride
	require.NoError(t, db.First(&stored, "id = ?", lock.ID).Error)
	assert.Nil(t, stored.ChangedByID)
	assert.True(t, stored.Engaged)
}

func TestRepositoryUpdateAndDeleteMissing(t *testing.T) {
	db := testdb.Open(t)
	ctx := context.Background()
	r := NewRepository(db)

	assert.True(t, repo.IsNotFound(r.Update(ctx, 404, map[string]any{"first_name": "Nadie"})))
	assert.True(t, repo.IsNotFound(r.Delete(ctx, 404)))
	assert.NoError(t, r.Update(ctx, 404, map[string]any{}))
}

func TestRepositoryListSearch(t *testing.T) {
	db := testdb.Open(t)
	ctx := context.Background()
	r := NewRepository(db)
	for _, username := range []string{"juan.perez", "ana.martinez", "luis.garcia"} {
		testdb.Identity(t, db, username)
	}

	rows, err := r.List(ctx, listFilter{Search: "MARTINEZ", Limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ana.martinez", rows[0].Username)

	rows, err = r.List(ctx, listFilter{AfterID: rows[0].ID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "luis.garcia", rows[0].Username)

	taken, err := r.UsernameTaken(ctx, "juan.perez")
	require.NoError(t, err)
	assert.True(t, taken)
}

func TestRepositoryDuplicateUsername(t *testing.T) {
	db := testdb.Open(t)
	r := NewRepository(db)
	testdb.Identity(t, db, "sofia.lopez")

	err := r.Create(context.Background(), &models.Identity{Username: "sofia.lopez", PasswordHash: "x", IsActive: true})
	require.Error(t, err)
	assert.True(t, isDuplicateUsername(err))
}

func TestRepositoryMissingProfiles(t *testing.T) {
	db := testdb.Open(t)
	ctx := context.Background()
	r := NewRepository(db)
	bare := testdb.Identity(t, db, "sin.perfil")
	withProfile := testdb.Identity(t, db, "con.perfil")
	other := testdb.Identity(t, db, "otro.sin.perfil")
	require.NoError(t, db.Create(&models.Profile{
		ID:         uuid.New(),
		IdentityID: withProfile.ID,
		Role:       enums.RoleStudent,
		AccessCode: "3001",
		IsActive:   true,
	}).Error)

	rows, err := r.MissingProfiles(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, bare.ID, rows[0].ID)
	assert.Equal(t, other.ID, rows[1].ID)

	rows, err = r.MissingProfiles(ctx, bare.ID, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, other.ID, rows[0].ID)
}
