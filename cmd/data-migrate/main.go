package main

import (
	"context"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/fincalc_backend/config"
	"bitbucket.org/mmdatafocus/fincalc_backend/models"
	"bitbucket.org/mmdatafocus/fincalc_backend/workflow"
	"github.com/sirupsen/logrus"
)

// One-shot tool: archive superseded report-fact versions into the
// history table. Meant to run as a scheduled job.
func main() {
	logger := config.GetLogger()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	if strings.EqualFold(strings.TrimSpace(os.Getenv("RUN_MIGRATIONS")), "true") {
		if err := models.MigrateModels(); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Panic(err.Error())
		}
	}

	if err := workflow.RunDataHistoryMigration(context.Background()); err != nil {
		config.LogError(logger, "data-migrate", "main", "RunDataHistoryMigration", nil, err)
		os.Exit(1)
	}
	logger.WithFields(logrus.Fields{"field": "migration"}).Info("data history migration finished")
}
