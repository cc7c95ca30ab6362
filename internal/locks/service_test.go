package locks

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/smartaccess-backend/internal/authz"
	"github.com/angelmondragon/smartaccess-backend/internal/testdb"
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

var fixedNow = time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)

type fixture struct {
	db  *gorm.DB
	svc Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := testdb.Open(t)
	svc, err := NewService(ServiceParams{
		Repo:   NewRepository(conn),
		Tx:     db.NewFromGorm(conn),
		Authz:  authz.NewEngine(nil, nil),
		Outbox: outbox.NewService(outbox.NewRepository(conn), nil),
		Now:    func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return &fixture{db: conn, svc: svc}
}

// door inserts a door with a disengaged lock and returns the door id.
func (f *fixture) door(t *testing.T, name string) uuid.UUID {
	t.Helper()
	door := models.Door{ID: uuid.New(), Name: name, State: enums.DoorStateClosed, IsActive: true}
	require.NoError(t, f.db.Create(&door).Error)
	lock := models.LockOverride{ID: uuid.New(), DoorID: door.ID, ChangedAt: fixedNow.Add(-time.Hour)}
	require.NoError(t, f.db.Create(&lock).Error)
	return door.ID
}

func (f *fixture) actor(t *testing.T, username string, role enums.Role) authz.Actor {
	t.Helper()
	identity := testdb.Identity(t, f.db, username)
	return authz.Actor{
		IdentityID:     identity.ID,
		IdentityActive: true,
		Profile:        &authz.ProfileSnapshot{Role: role, Active: true},
	}
}

func (f *fixture) eventCount(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&n).Error)
	return n
}

func TestTeacherEngagesButCannotDisengage(t *testing.T) {
	f := newFixture(t)
	doorID := f.door(t, "Laboratorio de Redes")
	teacher := f.actor(t, "maestro", enums.RoleTeacher)

	view, err := f.svc.Engage(context.Background(), teacher, doorID, "Mantenimiento de switches")
	require.NoError(t, err)
	assert.True(t, view.Engaged)
	require.NotNil(t, view.ChangedByID)
	assert.Equal(t, teacher.IdentityID, *view.ChangedByID)
	require.NotNil(t, view.ChangedBy)
	assert.Equal(t, "maestro", *view.ChangedBy)
	assert.True(t, view.ChangedAt.Equal(fixedNow))
	require.NotNil(t, view.Notes)
	assert.Equal(t, "Mantenimiento de switches", *view.Notes)
	assert.Equal(t, "Laboratorio de Redes", view.DoorName)

	_, err = f.svc.Disengage(context.Background(), teacher, doorID, "")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	got, err := f.svc.Get(context.Background(), teacher, doorID)
	require.NoError(t, err)
	assert.True(t, got.Engaged)
	assert.Equal(t, int64(1), f.eventCount(t, enums.EventLockEngaged))
	assert.Zero(t, f.eventCount(t, enums.EventLockDisengaged))
}

func TestDisengageKeepsNotesWhenNoneGiven(t *testing.T) {
	f := newFixture(t)
	doorID := f.door(t, "Sala de Servidores")
	director := f.actor(t, "director", enums.RoleDirector)

	_, err := f.svc.Engage(context.Background(), director, doorID, "Configuración inicial del sistema")
	require.NoError(t, err)

	view, err := f.svc.Disengage(context.Background(), director, doorID, "  ")
	require.NoError(t, err)
	assert.False(t, view.Engaged)
	require.NotNil(t, view.Notes)
	assert.Equal(t, "Configuración inicial del sistema", *view.Notes)
	assert.Equal(t, int64(1), f.eventCount(t, enums.EventLockDisengaged))
}

func TestRejectsWithoutCapability(t *testing.T) {
	f := newFixture(t)
	doorID := f.door(t, "Aula 101")
	student := f.actor(t, "juan.perez", enums.RoleStudent)

	_, err := f.svc.Engage(context.Background(), student, doorID, "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	inactive := f.actor(t, "admin.inactivo", enums.RoleAdmin)
	inactive.Profile.Active = false
	_, err = f.svc.Engage(context.Background(), inactive, doorID, "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestSystemChangeHasNoAuthor(t *testing.T) {
	f := newFixture(t)
	doorID := f.door(t, "Auditorio Principal")

	view, err := f.svc.Engage(context.Background(), authz.System(), doorID, "")
	require.NoError(t, err)
	assert.True(t, view.Engaged)
	assert.Nil(t, view.ChangedByID)
	assert.Nil(t, view.Notes)

	_, err = f.svc.Engage(context.Background(), authz.System(), uuid.New(), "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestDeletedAuthorIsNulled(t *testing.T) {
	f := newFixture(t)
	doorID := f.door(t, "Laboratorio de Computación A")
	director := f.actor(t, "director", enums.RoleDirector)

	_, err := f.svc.Engage(context.Background(), director, doorID, "")
	require.NoError(t, err)
	require.NoError(t, f.db.Delete(&models.Identity{}, director.IdentityID).Error)

	view, err := f.svc.Get(context.Background(), authz.System(), doorID)
	require.NoError(t, err)
	assert.True(t, view.Engaged)
	assert.Nil(t, view.ChangedByID)
	assert.Nil(t, view.ChangedBy)
}

func TestBulkEngageUsesDefaultNote(t *testing.T) {
	f := newFixture(t)
	a := f.door(t, "Aula 201")
	b := f.door(t, "Aula 202")
	teacher := f.actor(t, "maestro", enums.RoleTeacher)

	res, err := f.svc.BulkEngage(context.Background(), teacher, []uuid.UUID{a, uuid.New(), b}, "")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, pkgerrors.CodeNotFound, res.Failures[0].Code)

	view, err := f.svc.Get(context.Background(), teacher, b)
	require.NoError(t, err)
	require.NotNil(t, view.Notes)
	assert.Equal(t, BulkEngageNote, *view.Notes)

	_, err = f.svc.BulkDisengage(context.Background(), teacher, []uuid.UUID{a, b}, "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestListFiltersEngaged(t *testing.T) {
	f := newFixture(t)
	f.door(t, "Aula A")
	b := f.door(t, "Aula B")
	f.door(t, "Aula C")
	_, err := f.svc.Engage(context.Background(), authz.System(), b, "")
	require.NoError(t, err)
	student := f.actor(t, "ana.martinez", enums.RoleStudent)

	engaged := true
	page, err := f.svc.List(context.Background(), student, ListParams{Engaged: &engaged})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, b, page.Items[0].DoorID)

	page, err = f.svc.List(context.Background(), student, ListParams{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)

	page, err = f.svc.List(context.Background(), student, ListParams{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Aula C", page.Items[0].DoorName)
}
