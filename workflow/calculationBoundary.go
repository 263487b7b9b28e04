package workflow

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/fincalc_backend/calculator"
	"bitbucket.org/mmdatafocus/fincalc_backend/config"
	"bitbucket.org/mmdatafocus/fincalc_backend/formula"
	"bitbucket.org/mmdatafocus/fincalc_backend/models"
	"bitbucket.org/mmdatafocus/fincalc_backend/reports"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DataStore loads and persists report facts.
type DataStore interface {
	GetDataList(ctx context.Context, dataTypeId int, periodId int) ([]reports.Data, error)
	ChangeData(ctx context.Context, tx *gorm.DB, d reports.Data, opts models.ChangeDataOptions) (reports.Data, error)
}

// ChangeQueue feeds queued fact changes to calculator runs.
type ChangeQueue interface {
	CalculationReadyList(ctx context.Context, calculatorId string) ([]models.CalculationChange, error)
	UpdateChangeStatus(ctx context.Context, tx *gorm.DB, changeIds []int, status models.ChangeStatus, errorMessage string) error
}

// CalculationBoundary drives calculator runs: it pulls ready changes off
// the queue, replays the cascade over an in-memory container and persists
// the recalculated facts in one transaction per run. Containers are cached
// per data type and period between runs; a cache entry survives because
// every persisted change also went through the container.
type CalculationBoundary struct {
	db          *gorm.DB
	store       DataStore
	queue       ChangeQueue
	calculators []calculator.Calculator
	iterative   *calculator.IterativeCalculator
	containers  map[string]*reports.DataContainer
	logger      *logrus.Logger
}

func NewCalculationBoundary(
	db *gorm.DB,
	store DataStore,
	queue ChangeQueue,
	calculators []calculator.Calculator,
	iterative *calculator.IterativeCalculator,
) *CalculationBoundary {
	return &CalculationBoundary{
		db:          db,
		store:       store,
		queue:       queue,
		calculators: calculators,
		iterative:   iterative,
		containers:  make(map[string]*reports.DataContainer),
		logger:      config.GetLogger(),
	}
}

// DefaultCalculators builds the trigger calculators with their enable
// flags and catalog sections taken from the environment.
func DefaultCalculators(references calculator.References, formulas *formula.Service) []calculator.Calculator {
	return []calculator.Calculator{
		calculator.NewExpenseAndRevenueCalculator(references, formulas, calculator.ExpenseAndRevenueConfig{
			Enabled:                config.CalculationTriggerEnabled(),
			IndexExpensesSectionId: config.IndexExpensesSectionId(),
			ItemExpensesSectionId:  config.ItemExpensesSectionId(),
			IndexRevenueSectionId:  config.IndexRevenueSectionId(),
			ItemRevenueSectionId:   config.ItemRevenueSectionId(),
		}),
		calculator.NewAllocationCalculator(references, formulas, calculator.AllocationConfig{
			Enabled: config.AllocationTriggerEnabled(),
		}),
	}
}

// Calculate processes every ready change of one calculator run. Each
// change is claimed, calculated and persisted in its own transaction and
// moves to SUCCESS or FAILURE on its own; a failure stops the run, leaving
// the remaining changes for the next one.
func (b *CalculationBoundary) Calculate(ctx context.Context, calculatorId string) error {
	started := time.Now()

	changes, err := b.queue.CalculationReadyList(ctx, calculatorId)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		return nil
	}

	for _, change := range changes {
		changeIds := []int{change.Change.ID}
		if err := b.queue.UpdateChangeStatus(ctx, nil, changeIds, models.ChangeStatusPending, ""); err != nil {
			return err
		}

		err := b.transaction(ctx, func(tx *gorm.DB) error {
			return b.calculateChange(ctx, tx, change.Data)
		})
		if err != nil {
			config.LogError(b.logger, "workflow", "Calculate", calculatorId, nil, err)
			// The cached container may hold facts the rollback discarded.
			delete(b.containers, containerKey(change.Data))
			if statusErr := b.queue.UpdateChangeStatus(ctx, nil, changeIds, models.ChangeStatusFailure, err.Error()); statusErr != nil {
				config.LogError(b.logger, "workflow", "Calculate", calculatorId, nil, statusErr)
			}
			return err
		}

		if err := b.queue.UpdateChangeStatus(ctx, nil, changeIds, models.ChangeStatusSuccess, ""); err != nil {
			return err
		}
	}

	if config.MonitoringModeEnabled() {
		b.logger.WithFields(logrus.Fields{
			"module":       "workflow",
			"calculatorId": calculatorId,
			"changes":      len(changes),
			"elapsed":      time.Since(started).String(),
		}).Info("calculator run finished")
	}
	return nil
}

// calculateChange replays one changed fact through the trigger
// calculators. Later calculators also see the facts produced by earlier
// ones, so a cascade result can start the next cascade.
func (b *CalculationBoundary) calculateChange(ctx context.Context, tx *gorm.DB, data reports.Data) error {
	container, err := b.containerFor(ctx, data)
	if err != nil {
		return err
	}

	for _, calc := range b.calculators {
		worklist := append([]reports.Data{data}, container.ChangedDataMap()...)
		for _, d := range worklist {
			if err := calc.Calculate(ctx, container, d); err != nil {
				return err
			}
		}
	}

	for _, changed := range container.ChangedDataMap() {
		if _, err := b.store.ChangeData(ctx, tx, changed, models.ChangeDataOptions{Persist: true}); err != nil {
			return err
		}
	}
	container.Reset()
	return nil
}

// CalculateIteration sweeps the whole dataset with the iterative
// calculator. Its results are queued as ordinary changes so the trigger
// cascades pick them up on the next run.
func (b *CalculationBoundary) CalculateIteration(ctx context.Context) error {
	if b.iterative == nil {
		return nil
	}
	started := time.Now()

	dataList, err := b.store.GetDataList(ctx, 0, 0)
	if err != nil {
		return err
	}
	hierarchyConfig := reports.DefaultDataHierarchyConfig()
	root, err := reports.NewDataStructureBuilder(hierarchyConfig).SetDataList(dataList).Build()
	if err != nil {
		return err
	}
	container := reports.NewDataContainer(root, hierarchyConfig)

	err = b.transaction(ctx, func(tx *gorm.DB) error {
		if err := b.iterative.Calculate(ctx, container); err != nil {
			return err
		}
		for _, changed := range container.ChangedDataMap() {
			_, err := b.store.ChangeData(ctx, tx, changed, models.ChangeDataOptions{
				Persist:      true,
				QueueChange:  true,
				CalculatorId: config.DefaultCalculatorId(),
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		config.LogError(b.logger, "workflow", "CalculateIteration", "", nil, err)
		return err
	}

	if config.MonitoringModeEnabled() {
		b.logger.WithFields(logrus.Fields{
			"module":  "workflow",
			"elapsed": time.Since(started).String(),
		}).Info("iterative run finished")
	}
	return nil
}

func containerKey(data reports.Data) string {
	dataTypeId := 0
	if data.DataType() != nil {
		dataTypeId = data.DataType().Id
	}
	periodId := 0
	if data.Period() != nil {
		periodId = data.Period().Id
	}
	return fmt.Sprintf("%d/%d", dataTypeId, periodId)
}

// containerFor returns the cached container holding the changed fact's
// data type and period slice, building it from stored facts on first use.
func (b *CalculationBoundary) containerFor(ctx context.Context, data reports.Data) (*reports.DataContainer, error) {
	dataTypeId := 0
	if data.DataType() != nil {
		dataTypeId = data.DataType().Id
	}
	periodId := 0
	if data.Period() != nil {
		periodId = data.Period().Id
	}

	key := containerKey(data)
	if container, ok := b.containers[key]; ok {
		return container, nil
	}

	dataList, err := b.store.GetDataList(ctx, dataTypeId, periodId)
	if err != nil {
		return nil, err
	}
	hierarchyConfig := reports.DefaultDataHierarchyConfig()
	root, err := reports.NewDataStructureBuilder(hierarchyConfig).SetDataList(dataList).Build()
	if err != nil {
		return nil, err
	}
	container := reports.NewDataContainer(root, hierarchyConfig)
	b.containers[key] = container
	return container, nil
}

func (b *CalculationBoundary) transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if b.db == nil {
		return fn(nil)
	}
	return b.db.WithContext(ctx).Transaction(fn)
}
