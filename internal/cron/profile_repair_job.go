package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/smartaccess-backend/internal/provisioning"
	"github.com/angelmondragon/smartaccess-backend/pkg/db/models"
	"github.com/angelmondragon/smartaccess-backend/pkg/logger"
)

const defaultRepairBatch = 200

type profileGaps interface {
	MissingProfiles(ctx context.Context, afterID int64, limit int) ([]models.Identity, error)
}

type profileEnsurer interface {
	EnsureProfile(ctx context.Context, tx *gorm.DB, identity *models.Identity, opts provisioning.Options) (provisioning.Result, error)
}

type ProfileRepairJobParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Identities  profileGaps
	Provisioner profileEnsurer
	BatchSize   int
}

// NewProfileRepairJob sweeps identities left without a profile, for example
// rows written straight to the database, and provisions them.
func NewProfileRepairJob(params ProfileRepairJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("db runner required")
	case params.Identities == nil:
		return nil, fmt.Errorf("identities repository required")
	case params.Provisioner == nil:
		return nil, fmt.Errorf("provisioner required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultRepairBatch
	}
	return &profileRepairJob{
		logg:        params.Logger,
		db:          params.DB,
		identities:  params.Identities,
		provisioner: params.Provisioner,
		batch:       batch,
	}, nil
}

type profileRepairJob struct {
	logg        *logger.Logger
	db          txRunner
	identities  profileGaps
	provisioner profileEnsurer
	batch       int
}

func (j *profileRepairJob) Name() string { return "profile-repair" }

// Run repairs every gap it finds. One failing identity does not stop the
// sweep; the failures come back combined.
func (j *profileRepairJob) Run(ctx context.Context) error {
	var (
		afterID  int64
		repaired int
		errs     error
	)
	for {
		rows, err := j.identities.MissingProfiles(ctx, afterID, j.batch)
		if err != nil {
			return multierr.Append(errs, fmt.Errorf("list identities without profile: %w", err))
		}
		for i := range rows {
			identity := rows[i]
			afterID = identity.ID
			err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
				_, err := j.provisioner.EnsureProfile(ctx, tx, &identity, provisioning.Options{})
				return err
			})
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("identity %d: %w", identity.ID, err))
				continue
			}
			repaired++
		}
		if len(rows) < j.batch {
			break
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"repaired": repaired,
		"failed":   len(multierr.Errors(errs)),
	})
	j.logg.Info(logCtx, "profile repair sweep complete")
	return errs
}
