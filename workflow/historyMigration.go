package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/fincalc_backend/config"
	"bitbucket.org/mmdatafocus/fincalc_backend/models"
	"github.com/sirupsen/logrus"
)

// RunDataHistoryMigration archives superseded fact versions. Guarded by a
// leader lock so concurrent agents do not archive the same rows twice.
func RunDataHistoryMigration(ctx context.Context) error {
	return WithLeaderLock(ctx, "fincalc:data-history-migration", 5*time.Minute, func(ctx context.Context) error {
		archived, err := models.ArchiveSupersededData(ctx)
		if err != nil {
			config.LogError(config.GetLogger(), "workflow", "RunDataHistoryMigration", "", nil, err)
			return err
		}
		if archived > 0 && config.MonitoringModeEnabled() {
			config.GetLogger().WithFields(logrus.Fields{
				"module":   "workflow",
				"archived": archived,
			}).Info("data history migration finished")
		}
		return nil
	})
}
