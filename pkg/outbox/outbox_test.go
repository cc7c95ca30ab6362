package outbox_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/smartaccess-backend/internal/testdb"
	"github.com/angelmondragon/smartaccess-backend/pkg/enums"
	"github.com/angelmondragon/smartaccess-backend/pkg/logger"
	"github.com/angelmondragon/smartaccess-backend/pkg/outbox"
)

func TestEmitWritesEnvelopeInsideTransaction(t *testing.T) {
	db := testdb.Open(t)
	svc := outbox.NewService(outbox.NewRepository(db), logger.Nop())
	ctx := context.Background()

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLockEngaged,
			AggregateType: enums.AggregateLockOverride,
			AggregateID:   "door-1",
			Actor:         &outbox.ActorRef{IdentityID: 7, Role: "admin"},
			Data:          map[string]any{"notes": "mantenimiento"},
		})
	})
	require.NoError(t, err)

	rows, next, err := outbox.NewRepository(db).List(ctx, outbox.ListFilter{}, nil, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Nil(t, next)
	require.NotNil(t, rows[0].ActorID)
	assert.Equal(t, int64(7), *rows[0].ActorID)

	env, err := outbox.DecodeEnvelope(rows[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, 1, env.Version)
	assert.NotEmpty(t, env.EventID)
	assert.JSONEq(t, `{"notes":"mantenimiento"}`, string(env.Data))
}

func TestEmitRejectsMissingTxAndUnknownTypes(t *testing.T) {
	db := testdb.Open(t)
	svc := outbox.NewService(outbox.NewRepository(db), nil)

	err := svc.Emit(context.Background(), nil, outbox.DomainEvent{
		EventType:     enums.EventDoorStateChanged,
		AggregateType: enums.AggregateDoor,
	})
	assert.Error(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, outbox.DomainEvent{
			EventType:     "door_exploded",
			AggregateType: enums.AggregateDoor,
		})
	})
	assert.Error(t, err)
}

func TestListFiltersAndPagesNewestFirst(t *testing.T) {
	db := testdb.Open(t)
	repo := outbox.NewRepository(db)
	svc := outbox.NewService(repo, nil)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
			return svc.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventDoorStateChanged,
				AggregateType: enums.AggregateDoor,
				AggregateID:   "door-a",
				OccurredAt:    base.Add(time.Duration(i) * time.Minute),
			})
		}))
	}
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLockDisengaged,
			AggregateType: enums.AggregateLockOverride,
			AggregateID:   "door-b",
			OccurredAt:    base.Add(time.Hour),
		})
	}))

	eventType := enums.EventDoorStateChanged
	first, cursor, err := repo.List(ctx, outbox.ListFilter{EventType: &eventType}, nil, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.NotNil(t, cursor)
	assert.True(t, first[0].CreatedAt.After(first[1].CreatedAt))

	second, cursor, err := repo.List(ctx, outbox.ListFilter{EventType: &eventType}, cursor, 2)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Nil(t, cursor)
	assert.True(t, second[0].CreatedAt.Equal(base))

	deleted, err := repo.DeleteBefore(ctx, nil, base.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
}
