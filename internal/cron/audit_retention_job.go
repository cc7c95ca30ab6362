package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/smartaccess-backend/pkg/logger"
)

const defaultAuditRetentionDays = 365

type auditPruner interface {
	DeleteBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type AuditRetentionJobParams struct {
	Logger        *logger.Logger
	DB            txRunner
	Events        auditPruner
	RetentionDays int
}

// NewAuditRetentionJob drops audit events older than the retention window.
func NewAuditRetentionJob(params AuditRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	retention := params.RetentionDays
	if retention <= 0 {
		retention = defaultAuditRetentionDays
	}
	return &auditRetentionJob{
		logg:      params.Logger,
		db:        params.DB,
		events:    params.Events,
		retention: retention,
		now:       time.Now,
	}, nil
}

type auditRetentionJob struct {
	logg      *logger.Logger
	db        txRunner
	events    auditPruner
	retention int
	now       func() time.Time
}

func (j *auditRetentionJob) Name() string { return "audit-retention" }

func (j *auditRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.retention) * 24 * time.Hour)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.events.DeleteBefore(ctx, tx, cutoff)
		deleted = rows
		return err
	})
	if err != nil {
		return fmt.Errorf("audit retention: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"rows_deleted":   deleted,
	}), "audit retention cleanup complete")
	return nil
}
