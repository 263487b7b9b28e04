package calculator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/fincalc_backend/formula"
	"bitbucket.org/mmdatafocus/fincalc_backend/reports"
	"bitbucket.org/mmdatafocus/fincalc_backend/utils"
)

// AllocationConfig carries the allocation calculator's enable flag.
type AllocationConfig struct {
	Enabled bool
}

var allocationPercentCodes = []int{
	formula.CodeTakePercent,
	formula.CodeTaxPercent,
}

var amountToAllocateCodes = []int{
	formula.CodeAmountToAllocateAffect,
	formula.CodeAmountToAllocateComplain,
	formula.CodeAmountToAllocateForget,
}

var allocatedExpensesItemCodes = []int{
	reports.ItemCodeAffect,
	reports.ItemCodeComplain,
	reports.ItemCodeForget,
}

// AllocationCalculator spreads red-branch expenses over green FRCs through
// the Affect, Complain and Forget cascade. Triggered by allocation percent
// changes, amount-to-allocate changes and allocated-expenses changes.
type AllocationCalculator struct {
	references References
	formulas   *formula.Service
	config     AllocationConfig
}

func NewAllocationCalculator(references References, formulas *formula.Service, config AllocationConfig) *AllocationCalculator {
	return &AllocationCalculator{references: references, formulas: formulas, config: config}
}

func (c *AllocationCalculator) Calculate(ctx context.Context, container *reports.DataContainer, data reports.Data) error {
	if !c.config.Enabled {
		return nil
	}
	if err := c.calculateData(ctx, container, data); err != nil {
		return fmt.Errorf("allocation calculator failure: %w", err)
	}
	return nil
}

func (c *AllocationCalculator) calculateData(ctx context.Context, container *reports.DataContainer, data reports.Data) error {
	parameter := data.Parameter()
	if parameter == nil {
		return errors.New("there is no parameter in data")
	}
	parameterCode := parameter.ParameterCode()

	if containsInt(allocationPercentCodes, parameterCode) {
		parentFrc, err := c.references.ParentFrc(ctx, data.Frc())
		if err != nil && !errors.Is(err, utils.ErrorRecordNotFound) {
			return err
		}
		// Root FRCs have nobody to allocate to.
		if err == nil {
			if err := c.calculateByAllocationParameterChange(ctx, container, data, parentFrc); err != nil {
				return err
			}
		}
	}

	if containsInt(amountToAllocateCodes, parameterCode) {
		if err := c.calculateAllocatedExpensesByLevel(ctx, container, data); err != nil {
			return err
		}
		if err := c.calculateByAllocatedExpensesChange(ctx, container, data); err != nil {
			return err
		}
	}

	if containsInt(allocatedExpensesItemCodes, parameterCode) {
		if err := c.calculateByAllocatedExpensesChange(ctx, container, data); err != nil {
			return err
		}
	}

	return nil
}

// calculateByAllocationParameterChange recomputes Total percent at the
// changed FRC and pushes the level cascade towards the parent.
func (c *AllocationCalculator) calculateByAllocationParameterChange(ctx context.Context, container *reports.DataContainer, data reports.Data, parentFrc *reports.Frc) error {
	set, err := c.filteredFrcDataSet(ctx, container, data, false)
	if err != nil {
		return err
	}

	f := formula.NewTotalPercentFormula(c.formulas, set, data.DataType(), data.Frc())
	totalPercent, err := f.Execute()
	if err != nil {
		return err
	}
	totalPercent = totalPercent.
		WithName(f.Parameter().ParameterName()).
		WithPeriod(data.Period()).
		WithSnapshot(time.Now()).
		WithAllocationLevel(data.AllocationLevel())

	changed := container.Change(totalPercent)
	return c.calculateByLevel(ctx, container, changed, parentFrc)
}

// calculateByAllocatedExpensesChange advances the cascade to the next
// allocation level on every green child of the changed fact's FRC. Forget
// is terminal and re-runs itself.
func (c *AllocationCalculator) calculateByAllocatedExpensesChange(ctx context.Context, container *reports.DataContainer, data reports.Data) error {
	level := data.AllocationLevel()
	if level == nil {
		return errors.New("there is no allocation level in data")
	}

	nextIndex := level.AllocationIndex() + 1
	if level.AllocationIndex() >= reports.AllocationLevelForget {
		nextIndex = reports.AllocationLevelForget
	}
	nextLevel, err := c.allocationLevel(ctx, nextIndex)
	if err != nil {
		return err
	}

	frc := data.Frc()
	for _, childFrc := range frc.ChildGreenFrc {
		next := data.WithFrc(childFrc).WithAllocationLevel(nextLevel)
		if err := c.calculateByLevel(ctx, container, next, frc); err != nil {
			return err
		}
	}
	return nil
}

// calculateByLevel runs one allocation step for the fact's level: the
// amount to allocate from the parent's red branch, the allocated expenses
// at the FRC, then the cascade to the next level.
func (c *AllocationCalculator) calculateByLevel(ctx context.Context, container *reports.DataContainer, data reports.Data, parentFrc *reports.Frc) error {
	if data.Frc().Level == reports.FrcLevelNotCalculated {
		return errors.New("wrong FRC level: N")
	}

	level := data.AllocationLevel()
	if level == nil {
		return errors.New("there is no allocation level in data")
	}
	switch level.AllocationIndex() {
	case reports.AllocationLevelAffect, reports.AllocationLevelComplain, reports.AllocationLevelForget:
	default:
		return nil
	}

	if err := c.calculateAmountToAllocateByLevel(ctx, container, data, parentFrc); err != nil {
		return err
	}
	if err := c.calculateAllocatedExpensesByLevel(ctx, container, data); err != nil {
		return err
	}
	return c.calculateByAllocatedExpensesChange(ctx, container, data)
}

// calculateAmountToAllocateByLevel collects the parent's and its red
// children's facts at the level's source marker and computes the amount to
// allocate for the fact's FRC.
func (c *AllocationCalculator) calculateAmountToAllocateByLevel(ctx context.Context, container *reports.DataContainer, data reports.Data, parentFrc *reports.Frc) error {
	level := data.AllocationLevel()
	filterIndex := reports.AllocationLevelAmountUsd
	if level.AllocationIndex() == reports.AllocationLevelAffect {
		filterIndex = reports.AllocationLevelOwnExpenses
	}
	filterLevel, err := c.allocationLevel(ctx, filterIndex)
	if err != nil {
		return err
	}

	filterData := data.WithFrc(parentFrc).WithAllocationLevel(filterLevel)
	nodes, err := c.filteredFrcNodes(container, filterData)
	if err != nil {
		return err
	}

	sourceFrcs := append([]*reports.Frc{parentFrc}, parentFrc.ChildRedFrc...)
	var sourceNodes []*reports.HierarchicalDataNode
	for _, node := range nodes {
		if nodeFrc, ok := node.Value().(*reports.Frc); ok && containsFrc(sourceFrcs, nodeFrc) {
			sourceNodes = append(sourceNodes, node)
		}
	}

	set, err := c.formulas.PrepareFrcDataSet(sourceNodes)
	if err != nil {
		return err
	}

	f, err := formula.NewAmountToAllocateFormula(level.AllocationIndex(), c.formulas, set, data.DataType(), data.Frc(), parentFrc)
	if err != nil {
		return err
	}
	amountToAllocate, err := f.Execute()
	if err != nil {
		return err
	}
	amountToAllocate = amountToAllocate.
		WithName(f.Parameter().ParameterName()).
		WithPeriod(data.Period()).
		WithAllocationLevel(level)

	container.Change(amountToAllocate)
	return nil
}

// calculateAllocatedExpensesByLevel computes the allocated expenses of the
// fact's FRC at its level and stores the result under the AmountUSD
// marker.
func (c *AllocationCalculator) calculateAllocatedExpensesByLevel(ctx context.Context, container *reports.DataContainer, data reports.Data) error {
	level := data.AllocationLevel()
	if level == nil {
		return errors.New("there is no allocation level in data")
	}

	set, err := c.filteredFrcDataSet(ctx, container, data, true)
	if err != nil {
		return err
	}

	amountUsdLevel, err := c.allocationLevel(ctx, reports.AllocationLevelAmountUsd)
	if err != nil {
		return err
	}

	f, err := formula.NewAllocatedExpensesFormula(level.AllocationIndex(), c.formulas, set, data.DataType(), data.Frc())
	if err != nil {
		return err
	}
	allocatedExpenses, err := f.Execute()
	if err != nil {
		return err
	}
	allocatedExpenses = allocatedExpenses.
		WithName(amountUsdLevel.ParameterName()).
		WithPeriod(data.Period()).
		WithAllocationLevel(amountUsdLevel)

	container.Change(allocatedExpenses)
	return nil
}

// filteredFrcNodes projects the container onto facts sharing the filter
// fact's data type, period, allocation level and affiliated FRC, grouped
// by FRC.
func (c *AllocationCalculator) filteredFrcNodes(container *reports.DataContainer, filterData reports.Data) ([]*reports.HierarchicalDataNode, error) {
	filtered := container.Filter(container.DataNode(), func(d reports.Data) bool {
		return c.isValidNodeDataByData(d, filterData)
	})
	if filtered == nil {
		return nil, nil
	}
	return frcNodes(filtered, container.HierarchyConfig()), nil
}

// filteredFrcDataSet is filteredFrcNodes folded into a formula input,
// optionally passed through FRC authorization filtering.
func (c *AllocationCalculator) filteredFrcDataSet(ctx context.Context, container *reports.DataContainer, filterData reports.Data, prepared bool) (formula.FrcDataSet, error) {
	nodes, err := c.filteredFrcNodes(container, filterData)
	if err != nil {
		return nil, err
	}
	if prepared {
		return c.formulas.PrepareFrcDataSet(nodes)
	}
	return formula.NewFrcDataSet(nodes), nil
}

func (c *AllocationCalculator) isValidNodeDataByData(nodeData, data reports.Data) bool {
	if !sameDataType(nodeData.DataType(), data.DataType()) {
		return false
	}
	if !samePeriod(nodeData.Period(), data.Period()) {
		return false
	}
	if !sameItem(nodeData.AllocationLevel(), data.AllocationLevel()) {
		return false
	}
	return sameFrc(nodeData.AffiliatedFrc(), data.AffiliatedFrc())
}

func (c *AllocationCalculator) allocationLevel(ctx context.Context, index reports.AllocationLevel) (*reports.Item, error) {
	levels, err := c.references.AllocationLevelList(ctx)
	if err != nil {
		return nil, err
	}
	level, ok := levels[index]
	if !ok {
		return nil, fmt.Errorf("allocation level %d is not defined", index)
	}
	return level, nil
}
