package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/statements_backend/config"
	"bitbucket.org/mmdatafocus/statements_backend/models"
	"bitbucket.org/mmdatafocus/statements_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const sweepLockName = "statements:sweep"

// RunStaleSweeper periodically reaps Processing rows whose worker died without
// releasing the claim. A Redis singleton lock keeps multiple instances from
// sweeping at once; the sweep itself is idempotent, so a lost lock is harmless.
func RunStaleSweeper(ctx context.Context, db *gorm.DB, logger *logrus.Logger, interval, claimTimeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := utils.WithSingletonLock(ctx, sweepLockName, interval, func() error {
				swept, err := models.SweepStaleProcessing(ctx, db, claimTimeout)
				if err != nil {
					return err
				}
				if swept > 0 {
					logger.WithFields(logrus.Fields{
						"module": "workflow",
						"swept":  swept,
					}).Warn("reclaimed statements from dead workers")
					config.PublishStatementNudge(ctx, "sweep")
				}
				return nil
			})
			if err != nil {
				config.LogError(logger, "sweeper.go", "RunStaleSweeper", "Sweeping stale processing claims", nil, err)
			}
		}
	}
}
