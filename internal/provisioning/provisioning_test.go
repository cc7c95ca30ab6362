package provisioning

import (
	"context"
	"testing"

	"github.com/angelmondragon/smartaccess-backend/internal/profiles"
	"github.com/angelmondragon/smartaccess-backend/internal/testdb"
	"github.com/angelmondragon/smartaccess-backend/pkg/db/models"
	"github.com/angelmondragon/smartaccess-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/smartaccess-backend/pkg/errors"
	"github.com/angelmondragon/smartaccess-backend/pkg/outbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingEmitter struct {
	events []outbox.DomainEvent
}

func (r *recordingEmitter) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	r.events = append(r.events, event)
	return nil
}

type repairCounter int

func (c *repairCounter) IncProfileRepair() { *c++ }

func newRule(t *testing.T, db *gorm.DB) (*Rule, *recordingEmitter, *repairCounter) {
	t.Helper()
	emitter := &recordingEmitter{}
	counter := new(repairCounter)
	rule, err := New(Params{Profiles: profiles.NewRepository(db), Outbox: emitter, Metrics: counter})
	require.NoError(t, err)
	return rule, emitter, counter
}

func countProfiles(t *testing.T, db *gorm.DB, identityID int64) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.Profile{}).Where("identity_id = ?", identityID).Count(&n).Error)
	return n
}

func TestEnsureProfileCreatesPlaceholderOnce(t *testing.T) {
	db := testdb.Open(t)
	rule, emitter, counter := newRule(t, db)
	identity := testdb.Identity(t, db, "juan.perez")
	ctx := context.Background()

	res, err := rule.EnsureProfile(ctx, db, &identity, Options{NewIdentity: true})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.False(t, res.Repaired)
	assert.Equal(t, enums.RoleStudent, res.Profile.Role)
	assert.True(t, res.Profile.IsActive)
	assert.Equal(t, PlaceholderCode(identity.ID), res.Profile.AccessCode)

	for i := 0; i < 3; i++ {
		again, err := rule.EnsureProfile(ctx, db, &identity, Options{})
		require.NoError(t, err)
		assert.False(t, again.Created)
		assert.Equal(t, res.Profile.ID, again.Profile.ID)
	}
	assert.Equal(t, int64(1), countProfiles(t, db, identity.ID))
	assert.Empty(t, emitter.events)
	assert.Zero(t, int(*counter))
}

func TestEnsureProfileRepairsExistingIdentity(t *testing.T) {
	db := testdb.Open(t)
	rule, emitter, counter := newRule(t, db)
	identity := testdb.Identity(t, db, "ana.martinez")

	res, err := rule.EnsureProfile(context.Background(), db, &identity, Options{})
	require.NoError(t, err)
	assert.True(t, res.Repaired)
	assert.Equal(t, 1, int(*counter))
	require.Len(t, emitter.events, 1)
	assert.Equal(t, enums.EventProfileRepaired, emitter.events[0].EventType)
	assert.Equal(t, res.Profile.ID.String(), emitter.events[0].AggregateID)
}

func TestEnsureProfileAppliesDefaults(t *testing.T) {
	db := testdb.Open(t)
	rule, _, _ := newRule(t, db)
	identity := testdb.Identity(t, db, "director")
	phone := "+526141234567"

	res, err := rule.EnsureProfile(context.Background(), db, &identity, Options{
		NewIdentity: true,
		Defaults:    &Defaults{Role: enums.RoleDirector, AccessCode: "1001", Phone: &phone},
	})
	require.NoError(t, err)
	assert.Equal(t, enums.RoleDirector, res.Profile.Role)
	assert.Equal(t, "1001", res.Profile.AccessCode)
	assert.False(t, res.Profile.IsPlaceholder())
	require.NotNil(t, res.Profile.Phone)
	assert.Equal(t, phone, *res.Profile.Phone)
}

func TestEnsureProfileRejectsTakenCode(t *testing.T) {
	db := testdb.Open(t)
	rule, _, _ := newRule(t, db)
	first := testdb.Identity(t, db, "luis.garcia")
	second := testdb.Identity(t, db, "sofia.lopez")
	ctx := context.Background()

	_, err := rule.EnsureProfile(ctx, db, &first, Options{NewIdentity: true, Defaults: &Defaults{AccessCode: "3003"}})
	require.NoError(t, err)

	_, err = rule.EnsureProfile(ctx, db, &second, Options{NewIdentity: true, Defaults: &Defaults{AccessCode: "3003"}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDuplicateCode))
	assert.Zero(t, countProfiles(t, db, second.ID))

	_, err = rule.EnsureProfile(ctx, db, &second, Options{NewIdentity: true, Defaults: &Defaults{AccessCode: "30-03"}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestEnsureProfileInsideRolledBackTx(t *testing.T) {
	db := testdb.Open(t)
	rule, _, _ := newRule(t, db)
	identity := testdb.Identity(t, db, "maestro")

	err := db.Transaction(func(tx *gorm.DB) error {
		if _, err := rule.EnsureProfile(context.Background(), tx, &identity, Options{NewIdentity: true}); err != nil {
			return err
		}
		return pkgerrors.New(pkgerrors.CodeInternal, "abort")
	})
	require.Error(t, err)
	assert.Zero(t, countProfiles(t, db, identity.ID))
}
