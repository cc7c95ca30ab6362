package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/smartaccess-backend/pkg/config"
	"github.com/angelmondragon/smartaccess-backend/pkg/db"
	"github.com/angelmondragon/smartaccess-backend/pkg/db/models"
	"github.com/angelmondragon/smartaccess-backend/pkg/logger"
)

// MaybeRunDev applies the schema automatically in dev when the feature flag is
// enabled. Postgres goes through goose; the sqlite dev driver cannot run the
// postgres SQL files, so it falls back to gorm's AutoMigrate over the models.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "driver": cfg.DB.Driver})

	if cfg.DB.Driver == config.DBDriverSQLite {
		logg.Info(ctx, "auto-migrating sqlite schema")
		if err := client.DB().WithContext(ctx).AutoMigrate(SchemaModels()...); err != nil {
			return fmt.Errorf("sqlite automigrate: %w", err)
		}
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	logg.Info(ctx, "running embedded goose migrations (dev auto-run)")
	if err := Run(ctx, sqlDB, "", "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}

	logg.Info(ctx, "goose migrations completed")
	return nil
}

// SchemaModels lists every persisted model in dependency order.
func SchemaModels() []any {
	return []any{
		&models.Identity{},
		&models.IdentityGrant{},
		&models.Profile{},
		&models.Door{},
		&models.LockOverride{},
		&models.OutboxEvent{},
	}
}
