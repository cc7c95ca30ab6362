package identities

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/smartaccess-backend/internal/authz"
	"github.com/angelmondragon/smartaccess-backend/internal/profiles"
	"github.com/angelmondragon/smartaccess-backend/internal/provisioning"
	"github.com/angelmondragon/smartaccess-backend/internal/testdb"
	"github.com/angelmondragon/smartaccess-backend/pkg/config"
	"github.com/angelmondragon/smartaccess-backend/pkg/db"
	"github.com/angelmondragon/smartaccess-backend/pkg/db/models"
	"github.com/angelmondragon/smartaccess-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/smartaccess-backend/pkg/errors"
	"github.com/angelmondragon/smartaccess-backend/pkg/outbox"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var fastPasswords = config.PasswordConfig{ArgonMemoryKB: 8 * 1024, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 16}

type revokeRecorder struct {
	revoked []int64
}

func (r *revokeRecorder) RevokeAll(ctx context.Context, identityID int64) (int, error) {
	r.revoked = append(r.revoked, identityID)
	return 1, nil
}

type fixture struct {
	db       *gorm.DB
	svc      Service
	sessions *revokeRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := testdb.Open(t)
	profileRepo := profiles.NewRepository(conn)
	emitter := outbox.NewService(outbox.NewRepository(conn), nil)
	rule, err := provisioning.New(provisioning.Params{Profiles: profileRepo, Outbox: emitter})
	require.NoError(t, err)

	sessions := &revokeRecorder{}
	svc, err := NewService(ServiceParams{
		Repo:        NewRepository(conn),
		Profiles:    profileRepo,
		Provisioner: rule,
		Tx:          db.NewFromGorm(conn),
		Authz:       authz.NewEngine(nil, nil),
		Outbox:      emitter,
		Sessions:    sessions,
		Password:    fastPasswords,
	})
	require.NoError(t, err)
	return &fixture{db: conn, svc: svc, sessions: sessions}
}

func (f *fixture) events(t *testing.T, eventType enums.OutboxEventType) []models.OutboxEvent {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, f.db.Where("event_type = ?", eventType).Find(&rows).Error)
	return rows
}

func roleActor(id int64, role enums.Role) authz.Actor {
	return authz.Actor{IdentityID: id, IdentityActive: true, Profile: &authz.ProfileSnapshot{Role: role, Active: true}}
}

func TestCreateWithProfileDetails(t *testing.T) {
	f := newFixture(t)
	phone := "+526141234567"

	view, err := f.svc.Create(context.Background(), authz.System(), CreateInput{
		Username:  "director",
		Email:     "Director@Universidad.edu",
		FirstName: "María",
		LastName:  "González Pérez",
		Password:  "director123",
		Profile:   &ProfileInput{Role: enums.RoleDirector, AccessCode: "1001", Phone: &phone},
	})
	require.NoError(t, err)
	assert.Equal(t, "director@universidad.edu", view.Email)
	require.NotNil(t, view.Profile)
	assert.Equal(t, enums.RoleDirector, view.Profile.Role)
	assert.Equal(t, "1001", view.Profile.AccessCode)
	assert.True(t, view.Profile.Provisioned)
	assert.Len(t, f.events(t, enums.EventIdentityCreated), 1)
	assert.Empty(t, f.events(t, enums.EventProfileRepaired))

	var stored models.Identity
	require.NoError(t, f.db.First(&stored, "id = ?", view.ID).Error)
	assert.NotEqual(t, "director123", stored.PasswordHash)
}

func TestCreateWithoutProfileGetsPlaceholder(t *testing.T) {
	f := newFixture(t)
	view, err := f.svc.Create(context.Background(), roleActor(99, enums.RoleDirector), CreateInput{
		Username: "juan.perez",
		Password: "alumno123",
	})
	require.NoError(t, err)
	require.NotNil(t, view.Profile)
	assert.Equal(t, provisioning.PlaceholderCode(view.ID), view.Profile.AccessCode)
	assert.Equal(t, enums.RoleStudent, view.Profile.Role)
	assert.False(t, view.Profile.Provisioned)
}

func TestCreateRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, authz.System(), CreateInput{Username: "maestro", Password: "maestro123"})
	require.NoError(t, err)

	cases := []struct {
		name  string
		actor authz.Actor
		input CreateInput
		code  pkgerrors.Code
	}{
		{"teacher cannot create", roleActor(1, enums.RoleTeacher), CreateInput{Username: "x", Password: "alumno123"}, pkgerrors.CodeForbidden},
		{"director cannot mint superusers", roleActor(1, enums.RoleDirector), CreateInput{Username: "x", Password: "alumno123", IsSuperuser: true}, pkgerrors.CodeForbidden},
		{"director cannot mint admins", roleActor(1, enums.RoleDirector), CreateInput{Username: "x", Password: "alumno123", Profile: &ProfileInput{Role: enums.RoleAdmin}}, pkgerrors.CodeForbidden},
		{"duplicate username", authz.System(), CreateInput{Username: "maestro", Password: "maestro123"}, pkgerrors.CodeConflict},
		{"numeric password", authz.System(), CreateInput{Username: "y", Password: "12345678"}, pkgerrors.CodeValidation},
		{"bad access code", authz.System(), CreateInput{Username: "y", Password: "alumno123", Profile: &ProfileInput{AccessCode: "12ab"}}, pkgerrors.CodeValidation},
		{"unknown grant", authz.System(), CreateInput{Username: "y", Password: "alumno123", Grants: []enums.Grant{"root"}}, pkgerrors.CodeValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tc.actor, tc.input)
			assert.True(t, pkgerrors.IsCode(err, tc.code), "got %v", err)
		})
	}
}

func TestCreateDuplicateAccessCodeRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, authz.System(), CreateInput{Username: "ana.martinez", Password: "alumno123", Profile: &ProfileInput{AccessCode: "3002"}})
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, authz.System(), CreateInput{Username: "luis.garcia", Password: "alumno123", Profile: &ProfileInput{AccessCode: "3002"}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDuplicateCode), "got %v", err)

	var count int64
	require.NoError(t, f.db.Model(&models.Identity{}).Where("username = ?", "luis.garcia").Count(&count).Error)
	assert.Zero(t, count)
}

func TestUpdateRepairsMissingProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	identity := testdb.Identity(t, f.db, "sofia.lopez")
	name := "Sofía"

	view, err := f.svc.Update(ctx, authz.System(), identity.ID, UpdateInput{FirstName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Sofía", view.FirstName)
	require.NotNil(t, view.Profile)
	assert.Equal(t, provisioning.PlaceholderCode(identity.ID), view.Profile.AccessCode)
	assert.Len(t, f.events(t, enums.EventProfileRepaired), 1)

	_, err = f.svc.Update(ctx, authz.System(), identity.ID, UpdateInput{FirstName: &name})
	require.NoError(t, err)
	assert.Len(t, f.events(t, enums.EventProfileRepaired), 1)
}

func TestUpdatePermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	student := testdb.Identity(t, f.db, "juan.perez")
	yes := true
	no := false
	name := "Juan"
	grants := []enums.Grant{enums.GrantFrontDesk}

	_, err := f.svc.Update(ctx, roleActor(50, enums.RoleTeacher), student.ID, UpdateInput{IsStaff: &yes})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	_, err = f.svc.Update(ctx, roleActor(50, enums.RoleTeacher), student.ID, UpdateInput{Grants: &grants})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = f.svc.Update(ctx, roleActor(50, enums.RoleTeacher), student.ID, UpdateInput{FirstName: &name})
	assert.NoError(t, err)

	self := roleActor(student.ID, enums.RoleStudent)
	_, err = f.svc.Update(ctx, self, student.ID, UpdateInput{FirstName: &name})
	assert.NoError(t, err)
	_, err = f.svc.Update(ctx, self, student.ID, UpdateInput{Active: &no})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	_, err = f.svc.Update(ctx, roleActor(student.ID+1, enums.RoleStudent), student.ID, UpdateInput{FirstName: &name})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	view, err := f.svc.Update(ctx, roleActor(1, enums.RoleAdmin), student.ID, UpdateInput{Grants: &grants, Active: &no})
	require.NoError(t, err)
	assert.Equal(t, grants, view.Grants)
	assert.False(t, view.IsActive)
	assert.Equal(t, []int64{student.ID}, f.sessions.revoked)

	_, err = f.svc.Update(ctx, authz.System(), 12345, UpdateInput{FirstName: &name})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestDeleteClearsLockAuthorship(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view, err := f.svc.Create(ctx, authz.System(), CreateInput{Username: "maestro", Password: "maestro123", Profile: &ProfileInput{Role: enums.RoleTeacher, AccessCode: "2001"}})
	require.NoError(t, err)

	door := models.Door{ID: uuid.New(), Name: "Laboratorio de Redes", State: enums.DoorStateClosed, IsActive: true}
	require.NoError(t, f.db.Create(&door).Error)
	lock := models.LockOverride{ID: uuid.New(), DoorID: door.ID, Engaged: true, ChangedByID: &view.ID, ChangedAt: time.Now().UTC()}
	require.NoError(t, f.db.Create(&lock).Error)

	err = f.svc.Delete(ctx, roleActor(view.ID, enums.RoleTeacher), view.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	require.NoError(t, f.svc.Delete(ctx, authz.System(), view.ID))

	var stored models.LockOverride
	require.NoError(t, f.db.First(&stored, "id = ?", lock.ID).Error)
	assert.Nil(t, stored.ChangedByID)
	assert.True(t, stored.Engaged)

	var profileCount int64
	require.NoError(t, f.db.Model(&models.Profile{}).Where("identity_id = ?", view.ID).Count(&profileCount).Error)
	assert.Zero(t, profileCount)
	assert.Len(t, f.events(t, enums.EventIdentityDeleted), 1)
	assert.Equal(t, []int64{view.ID}, f.sessions.revoked)

	err = f.svc.Delete(ctx, authz.System(), view.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestDeleteSelfRejected(t *testing.T) {
	f := newFixture(t)
	admin := testdb.Identity(t, f.db, "admin")
	err := f.svc.Delete(context.Background(), roleActor(admin.ID, enums.RoleAdmin), admin.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestGetAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, username := range []string{"juan.perez", "ana.martinez", "luis.garcia"} {
		_, err := f.svc.Create(ctx, authz.System(), CreateInput{Username: username, Password: "alumno123"})
		require.NoError(t, err)
	}

	page, err := f.svc.List(ctx, roleActor(1, enums.RoleTeacher), ListParams{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)
	rest, err := f.svc.List(ctx, roleActor(1, enums.RoleTeacher), ListParams{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, rest.Items, 1)
	assert.Equal(t, "luis.garcia", rest.Items[0].Username)

	_, err = f.svc.List(ctx, roleActor(1, enums.RoleStudent), ListParams{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	own := page.Items[0]
	got, err := f.svc.Get(ctx, roleActor(own.ID, enums.RoleStudent), own.ID)
	require.NoError(t, err)
	assert.Equal(t, own.Username, got.Username)
	_, err = f.svc.Get(ctx, roleActor(own.ID, enums.RoleStudent), page.Items[1].ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestLoadActor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view, err := f.svc.Create(ctx, authz.System(), CreateInput{
		Username: "director",
		Password: "director123",
		Grants:   []enums.Grant{enums.GrantOverrideAccessCode},
		Profile:  &ProfileInput{Role: enums.RoleDirector, AccessCode: "1001"},
	})
	require.NoError(t, err)

	actor, err := f.svc.LoadActor(ctx, view.ID)
	require.NoError(t, err)
	assert.True(t, actor.IdentityActive)
	assert.True(t, actor.HasGrant(enums.GrantOverrideAccessCode))
	require.NotNil(t, actor.Profile)
	assert.Equal(t, enums.RoleDirector, actor.Profile.Role)

	require.NoError(t, f.db.Where("identity_id = ?", view.ID).Delete(&models.Profile{}).Error)
	actor, err = f.svc.LoadActor(ctx, view.ID)
	require.NoError(t, err)
	assert.Nil(t, actor.Profile)
	assert.False(t, authz.Decide(actor, authz.ActionViewDoor, authz.Target{Kind: authz.TargetDoor}).Allowed)

	_, err = f.svc.LoadActor(ctx, 999)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestUpdateProtectsAccountsAboveTheActor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := testdb.Identity(t, f.db, "root")
	require.NoError(t, f.db.Model(&root).Update("is_superuser", true).Error)
	admin, err := f.svc.Create(ctx, authz.System(), CreateInput{Username: "admin", Password: "admin123", Profile: &ProfileInput{Role: enums.RoleAdmin, AccessCode: "0001"}})
	require.NoError(t, err)
	student, err := f.svc.Create(ctx, authz.System(), CreateInput{Username: "ana.martinez", Password: "alumno123"})
	require.NoError(t, err)

	teacher := roleActor(50, enums.RoleTeacher)
	password := "tomado123"
	off := false

	for _, id := range []int64{root.ID, admin.ID} {
		_, err = f.svc.Update(ctx, teacher, id, UpdateInput{Password: &password})
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden), "password reset on %d: %v", id, err)
		_, err = f.svc.Update(ctx, teacher, id, UpdateInput{Active: &off})
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden), "deactivation of %d: %v", id, err)
	}
	_, err = f.svc.Update(ctx, roleActor(60, enums.RoleDirector), admin.ID, UpdateInput{Password: &password})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	var stored models.Identity
	require.NoError(t, f.db.First(&stored, root.ID).Error)
	assert.True(t, stored.IsActive)
	assert.Equal(t, "x", stored.PasswordHash)
	assert.Empty(t, f.sessions.revoked)

	_, err = f.svc.Update(ctx, teacher, student.ID, UpdateInput{Password: &password})
	assert.NoError(t, err)
	_, err = f.svc.Update(ctx, roleActor(1, enums.RoleAdmin), root.ID, UpdateInput{Active: &off})
	assert.NoError(t, err)
	assert.Equal(t, []int64{student.ID, root.ID}, f.sessions.revoked)
}
