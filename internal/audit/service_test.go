package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/angelmondragon/smartaccess-backend/internal/authz"
	"github.com/angelmondragon/smartaccess-backend/internal/testdb"
	"github.com/angelmondragon/smartaccess-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/smartaccess-backend/pkg/errors"
	"github.com/angelmondragon/smartaccess-backend/pkg/outbox"
	"github.com/angelmondragon/smartaccess-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func emit(t *testing.T, db *gorm.DB, emitter *outbox.Service, event outbox.DomainEvent) {
	t.Helper()
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return emitter.Emit(context.Background(), tx, event)
	}))
}

func TestListNewestFirstWithFilters(t *testing.T) {
	db := testdb.Open(t)
	emitter := outbox.NewService(outbox.NewRepository(db), nil)
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	doorID := uuid.New()
	note := "Mantenimiento"

	emit(t, db, emitter, outbox.DomainEvent{
		EventType: enums.EventLockEngaged, AggregateType: enums.AggregateLockOverride, AggregateID: "lock-1",
		Actor:      &outbox.ActorRef{IdentityID: 2, Role: "teacher"},
		Data:       payloads.LockChangedEvent{LockID: uuid.New(), DoorID: doorID, Engaged: true, Notes: &note},
		OccurredAt: base,
	})
	emit(t, db, emitter, outbox.DomainEvent{
		EventType: enums.EventDoorStateChanged, AggregateType: enums.AggregateDoor, AggregateID: doorID.String(),
		Data:       payloads.DoorStateChangedEvent{DoorID: doorID, From: enums.DoorStateClosed, To: enums.DoorStateOpen},
		OccurredAt: base.Add(time.Minute),
	})
	emit(t, db, emitter, outbox.DomainEvent{
		EventType: enums.EventLockDisengaged, AggregateType: enums.AggregateLockOverride, AggregateID: "lock-1",
		Actor:      &outbox.ActorRef{IdentityID: 1, Role: "director"},
		Data:       payloads.LockChangedEvent{LockID: uuid.New(), DoorID: doorID},
		OccurredAt: base.Add(2 * time.Minute),
	})

	svc, err := NewService(outbox.NewRepository(db), authz.NewEngine(nil, nil))
	require.NoError(t, err)
	ctx := context.Background()

	page, err := svc.List(ctx, authz.System(), ListParams{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, enums.EventLockDisengaged, page.Items[0].EventType)
	require.NotNil(t, page.Items[0].Actor)
	assert.Equal(t, int64(1), page.Items[0].Actor.IdentityID)
	require.NotEmpty(t, page.NextCursor)

	page, err = svc.List(ctx, authz.System(), ListParams{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, enums.EventLockEngaged, page.Items[0].EventType)
	assert.True(t, page.Items[0].OccurredAt.Equal(base))

	var data payloads.LockChangedEvent
	require.NoError(t, json.Unmarshal(page.Items[0].Data, &data))
	require.NotNil(t, data.Notes)
	assert.Equal(t, "Mantenimiento", *data.Notes)

	page, err = svc.List(ctx, authz.System(), ListParams{AggregateType: "door"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Nil(t, page.Items[0].Actor)

	teacherID := int64(2)
	page, err = svc.List(ctx, authz.System(), ListParams{ActorID: &teacherID})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
}

func TestListRejections(t *testing.T) {
	db := testdb.Open(t)
	svc, err := NewService(outbox.NewRepository(db), authz.NewEngine(nil, nil))
	require.NoError(t, err)
	ctx := context.Background()

	student := authz.Actor{IdentityID: 3, IdentityActive: true, Profile: &authz.ProfileSnapshot{Role: enums.RoleStudent, Active: true}}
	_, err = svc.List(ctx, student, ListParams{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = svc.List(ctx, authz.System(), ListParams{EventType: "door_exploded"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.List(ctx, authz.System(), ListParams{Cursor: "!!"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
