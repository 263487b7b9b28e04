package workflow

import (
	"context"

	"bitbucket.org/mmdatafocus/fincalc_backend/calculator"
	"bitbucket.org/mmdatafocus/fincalc_backend/formula"
	"bitbucket.org/mmdatafocus/fincalc_backend/models"
	"bitbucket.org/mmdatafocus/fincalc_backend/reports"
	"gorm.io/gorm"
)

// NewFormulaService builds the formula parameter catalog from the
// reference tables.
func NewFormulaService(ctx context.Context, refs *models.ReferenceService) (*formula.Service, error) {
	indexMap, err := refs.IndexList(ctx)
	if err != nil {
		return nil, err
	}
	itemMap, err := refs.ItemList(ctx)
	if err != nil {
		return nil, err
	}

	indexes := make([]*reports.Index, 0, len(indexMap))
	for _, index := range indexMap {
		indexes = append(indexes, index)
	}
	items := make([]*reports.Item, 0, len(itemMap))
	for _, item := range itemMap {
		items = append(items, item)
	}
	return formula.NewService(indexes, items), nil
}

// NewCalculationBoundaryFromEnv wires a boundary over a fresh reference
// snapshot, with calculators configured from the environment.
func NewCalculationBoundaryFromEnv(ctx context.Context, db *gorm.DB) (*CalculationBoundary, error) {
	refs := models.NewReferenceService()
	formulas, err := NewFormulaService(ctx, refs)
	if err != nil {
		return nil, err
	}

	store := models.NewReportService(refs)
	queue := models.NewDataChangeService(store)
	calculators := DefaultCalculators(refs, formulas)
	iterative := calculator.NewIterativeCalculator(refs, formulas)
	return NewCalculationBoundary(db, store, queue, calculators, iterative), nil
}
