package profiles

import (
	"context"
	"testing"

	"github.com/angelmondragon/smartaccess-backend/internal/repo"
	"github.com/angelmondragon/smartaccess-backend/internal/testdb"
	"github.com/angelmondragon/smartaccess-backend/pkg/db/models"
	"github.com/angelmondragon/smartaccess-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepositoryCreateIfAbsentIsIdempotent(t *testing.T) {
	db := testdb.Open(t)
	ctx := context.Background()
	identity := testdb.Identity(t, db, "juan.perez")
	r := NewRepository(db)

	created, err := r.CreateIfAbsent(ctx, &models.Profile{
		IdentityID: identity.ID,
		Role:       enums.RoleStudent,
		AccessCode: "temp_1",
		IsActive:   true,
	})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = r.CreateIfAbsent(ctx, &models.Profile{
		IdentityID: identity.ID,
		Role:       enums.RoleAdmin,
		AccessCode: "temp_1b",
		IsActive:   true,
	})
	require.NoError(t, err)
	assert.False(t, created)

	stored, err := r.FindByIdentityID(ctx, identity.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.RoleStudent, stored.Role)
	assert.True(t, stored.IsPlaceholder())
}

func TestRepositoryDuplicateAccessCode(t *testing.T) {
	db := testdb.Open(t)
	ctx := context.Background()
	r := NewRepository(db)

	first := testdb.Identity(t, db, "ana.martinez")
	second := testdb.Identity(t, db, "luis.garcia")

	require.NoError(t, r.Create(ctx, &models.Profile{IdentityID: first.ID, Role: enums.RoleStudent, AccessCode: "3002", IsActive: true}))
	err := r.Create(ctx, &models.Profile{IdentityID: second.ID, Role: enums.RoleStudent, AccessCode: "3002", IsActive: true})
	require.Error(t, err)
	assert.True(t, IsDuplicateAccessCode(err))
	assert.False(t, isDuplicateIdentity(err))

	taken, err := r.AccessCodeTaken(ctx, "3002", uuid.Nil)
	require.NoError(t, err)
	assert.True(t, taken)

	profile, err := r.FindByAccessCode(ctx, "3002")
	require.NoError(t, err)
	taken, err = r.AccessCodeTaken(ctx, "3002", profile.ID)
	require.NoError(t, err)
	assert.False(t, taken)
}

func TestRepositorySaveMissingRow(t *testing.T) {
	db := testdb.Open(t)
	r := NewRepository(db)

	err := r.Save(context.Background(), &models.Profile{ID: uuid.New(), Role: enums.RoleStudent, AccessCode: "9999"})
	assert.True(t, repo.IsNotFound(err))

	var count int64
	require.NoError(t, db.Model(&models.Profile{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRepositoryListFiltersAndPages(t *testing.T) {
	db := testdb.Open(t)
	ctx := context.Background()
	r := NewRepository(db)

	seed := []struct {
		username string
		role     enums.Role
		code     string
		active   bool
	}{
		{"director", enums.RoleDirector, "1001", true},
		{"maestro", enums.RoleTeacher, "2001", true},
		{"juan.perez", enums.RoleStudent, "3001", true},
		{"ana.martinez", enums.RoleStudent, "3002", false},
	}
	for _, s := range seed {
		identity := testdb.Identity(t, db, s.username)
		require.NoError(t, r.Create(ctx, &models.Profile{
			IdentityID: identity.ID,
			Role:       s.role,
			AccessCode: s.code,
			IsActive:   s.active,
		}))
	}

	student := enums.RoleStudent
	rows, err := r.List(ctx, listFilter{Role: &student, Limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Less(t, rows[0].IdentityID, rows[1].IdentityID)

	active := true
	rows, err = r.List(ctx, listFilter{Active: &active, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	page, err := r.List(ctx, listFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	rest, err := r.List(ctx, listFilter{AfterIdentityID: page[1].IdentityID, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, rest, 2)
}

func TestRepositoryIdentityExists(t *testing.T) {
	db := testdb.Open(t)
	r := NewRepository(db)
	identity := testdb.Identity(t, db, "sofia.lopez")

	ok, err := r.IdentityExists(context.Background(), identity.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.IdentityExists(context.Background(), identity.ID+100)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepositoryIdentityPrivileged(t *testing.T) {
	db := testdb.Open(t)
	r := NewRepository(db)
	ctx := context.Background()
	student := testdb.Identity(t, db, "luis.garcia")
	root := testdb.Identity(t, db, "admin")
	staff := testdb.Identity(t, db, "recepcion")
	require.NoError(t, db.Model(&root).Update("is_superuser", true).Error)
	require.NoError(t, db.Model(&staff).Update("is_staff", true).Error)

	for id, want := range map[int64]bool{student.ID: false, root.ID: true, staff.ID: true, root.ID + 100: false} {
		got, err := r.IdentityPrivileged(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got, "identity %d", id)
	}
}
