package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/kolo-backend/pkg/config"
	"github.com/angelmondragon/kolo-backend/pkg/db"
	"github.com/angelmondragon/kolo-backend/pkg/db/models"
	"github.com/angelmondragon/kolo-backend/pkg/logger"
)

// MaybeRunDev brings a dev database up to date at boot when KOLO_AUTO_MIGRATE
// is set. Other environments migrate through cmd/migrate only. SQLite has no
// enum types, so its schema comes from the gorm models instead of goose.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	if cfg.FeatureFlags.UseSQLite {
		all := models.All()
		logg.Info(logg.WithFields(ctx, map[string]any{"driver": "sqlite", "models": len(all)}), "auto-migrating sqlite schema")
		if err := client.DB().WithContext(ctx).AutoMigrate(all...); err != nil {
			return fmt.Errorf("sqlite auto-migrate: %w", err)
		}
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	m, err := New(sqlDB, DefaultDir, logg)
	if err != nil {
		return err
	}
	ctx = logg.WithField(ctx, "driver", "postgres")
	if err := m.Up(ctx); err != nil {
		return err
	}
	version, err := m.Version(ctx)
	if err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "schema_version", version), "dev migrations complete")
	return nil
}
