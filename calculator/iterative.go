package calculator

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/fincalc_backend/formula"
	"bitbucket.org/mmdatafocus/fincalc_backend/reports"
)

// IterativeCalculator recomputes the FX result and the profit/revenue
// totals over every open period in one sweep. It projects the working
// container onto a flat dataType/period/FRC structure first, so allocation
// and affiliation annotations stay out of the inputs.
type IterativeCalculator struct {
	references References
	formulas   *formula.Service
}

func NewIterativeCalculator(references References, formulas *formula.Service) *IterativeCalculator {
	return &IterativeCalculator{references: references, formulas: formulas}
}

func (c *IterativeCalculator) Calculate(ctx context.Context, container *reports.DataContainer) error {
	if err := c.calculateData(ctx, container); err != nil {
		return fmt.Errorf("iterative calculator failure: %w", err)
	}
	return nil
}

func (c *IterativeCalculator) calculateData(ctx context.Context, container *reports.DataContainer) error {
	iterative, err := c.iterativeContainer(container)
	if err != nil {
		return err
	}

	for _, dataTypeNode := range iterative.DataNode().Nodes() {
		dataType, _ := dataTypeNode.Value().(*reports.DataType)
		if dataType == nil {
			continue
		}
		for _, periodNode := range dataTypeNode.Nodes() {
			period, _ := periodNode.Value().(*reports.Period)
			if period == nil {
				continue
			}
			if err := c.calculatePeriod(ctx, container, iterative, dataType, period, periodNode); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *IterativeCalculator) calculatePeriod(ctx context.Context, container, iterative *reports.DataContainer, dataType *reports.DataType, period *reports.Period, periodNode *reports.HierarchicalDataNode) error {
	set, err := c.formulas.PrepareFrcDataSet(periodNode.Nodes())
	if err != nil {
		return err
	}

	requests, err := c.references.ExpenseRequestList(ctx, period)
	if err != nil {
		return err
	}

	frcs := make([]*reports.Frc, 0, len(periodNode.Nodes()))
	for _, frcNode := range periodNode.Nodes() {
		if frc, ok := frcNode.Value().(*reports.Frc); ok && frc != nil {
			frcs = append(frcs, frc)
		}
	}

	for _, frc := range frcs {
		f := formula.NewFxResultFormula(c.formulas, set, dataType, frc, requests)
		if err := c.calculateFormula(container, iterative, f, period); err != nil {
			return err
		}
	}

	builders := []func(*formula.Service, formula.FrcDataSet, *reports.DataType, *reports.Frc) *formula.Formula{
		formula.NewNetProfitBeforeBonusesFormula,
		formula.NewNetProfitAfterBonusesFormula,
		formula.NewGrossRevenueTotalFormula,
		formula.NewNetRevenueTotalFormula,
	}
	for _, build := range builders {
		// Each family consumes results of the earlier ones (FX feeds the
		// net profit before bonuses, which feeds the net profit after
		// bonuses), so the inputs are rebuilt from the live structure
		// between families.
		set, err = c.formulas.PrepareFrcDataSet(periodNode.Nodes())
		if err != nil {
			return err
		}
		for _, frc := range frcs {
			if err := c.calculateFormula(container, iterative, build(c.formulas, set, dataType, frc), period); err != nil {
				return err
			}
		}
	}
	return nil
}

// calculateFormula executes one iterative formula and records the result
// in both the working and the iterative container, unless a fresher value
// is already present or the FRC is not authorized for the parameter.
func (c *IterativeCalculator) calculateFormula(container, iterative *reports.DataContainer, f *formula.Formula, period *reports.Period) error {
	result, err := f.Execute()
	if err != nil {
		return err
	}
	result = result.
		WithName(f.Parameter().ParameterName()).
		WithPeriod(period)

	if !c.formulas.IsFrcAvailableForParameter(result.Frc(), f.Parameter()) {
		return nil
	}

	if current := iterative.GetByData(result); current != nil && current.Snapshot().After(result.Snapshot()) {
		return nil
	}

	container.Change(result)
	iterative.Change(result)
	return nil
}

// iterativeContainer projects the working container onto open-period facts
// without allocation or affiliation annotations, regrouped flat.
func (c *IterativeCalculator) iterativeContainer(container *reports.DataContainer) (*reports.DataContainer, error) {
	filtered := container.Filter(container.DataNode(), isIterativeData)
	iterative := reports.NewDataContainer(filtered, container.HierarchyConfig())
	if err := iterative.ChangeHierarchyConfig(reports.IterativeDataHierarchyConfig()); err != nil {
		return nil, err
	}
	return iterative, nil
}

func isIterativeData(d reports.Data) bool {
	return d.Period() != nil &&
		d.Period().IsOpen &&
		d.AffiliatedFrc() == nil &&
		d.AllocationLevel() == nil
}
