package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/fincalc_backend/config"
	"bitbucket.org/mmdatafocus/fincalc_backend/workflow"
	"github.com/sirupsen/logrus"
)

const (
	defaultCalculationInterval = 30 * time.Second
	defaultIterationInterval   = 10 * time.Minute
	defaultMigrationInterval   = 1 * time.Hour
)

func intervalFromEnv(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	seconds, err := strconv.Atoi(v)
	if err != nil || seconds <= 0 {
		return def
	}
	return time.Duration(seconds) * time.Second
}

// The agent drains the default change queue on a short interval and runs
// the full iterative recompute and the history migration on longer ones.
// Every run takes a redis leader lock, so running several replicas is safe.
func main() {
	logger := config.GetLogger()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	calculationTicker := time.NewTicker(intervalFromEnv("FINCALC_CALCULATION_INTERVAL_SECONDS", defaultCalculationInterval))
	defer calculationTicker.Stop()
	iterationTicker := time.NewTicker(intervalFromEnv("FINCALC_ITERATION_INTERVAL_SECONDS", defaultIterationInterval))
	defer iterationTicker.Stop()
	migrationTicker := time.NewTicker(intervalFromEnv("FINCALC_MIGRATION_INTERVAL_SECONDS", defaultMigrationInterval))
	defer migrationTicker.Stop()

	logger.WithFields(logrus.Fields{"field": "agent"}).Info("calculation agent started")

	for {
		select {
		case <-sigCtx.Done():
			logger.WithFields(logrus.Fields{"field": "agent"}).Info("calculation agent stopping")
			return
		case <-calculationTicker.C:
			runCalculation(sigCtx, logger)
		case <-iterationTicker.C:
			runIteration(sigCtx, logger)
		case <-migrationTicker.C:
			if err := workflow.RunDataHistoryMigration(sigCtx); err != nil {
				config.LogError(logger, "calculation-agent", "main", "RunDataHistoryMigration", nil, err)
			}
		}
	}
}

func runCalculation(ctx context.Context, logger *logrus.Logger) {
	boundary, err := workflow.NewCalculationBoundaryFromEnv(ctx, config.GetDB())
	if err != nil {
		config.LogError(logger, "calculation-agent", "runCalculation", "NewCalculationBoundaryFromEnv", nil, err)
		return
	}
	err = workflow.WithLeaderLock(ctx, "fincalc:calculation", 5*time.Minute, func(ctx context.Context) error {
		return boundary.Calculate(ctx, config.DefaultCalculatorId())
	})
	if err != nil {
		config.LogError(logger, "calculation-agent", "runCalculation", "Calculate", nil, err)
	}
}

func runIteration(ctx context.Context, logger *logrus.Logger) {
	boundary, err := workflow.NewCalculationBoundaryFromEnv(ctx, config.GetDB())
	if err != nil {
		config.LogError(logger, "calculation-agent", "runIteration", "NewCalculationBoundaryFromEnv", nil, err)
		return
	}
	err = workflow.WithLeaderLock(ctx, "fincalc:iteration", 5*time.Minute, func(ctx context.Context) error {
		return boundary.CalculateIteration(ctx)
	})
	if err != nil {
		config.LogError(logger, "calculation-agent", "runIteration", "CalculateIteration", nil, err)
	}
}
