package calculator

import (
	"context"
	"errors"
	"fmt"

	"bitbucket.org/mmdatafocus/fincalc_backend/formula"
	"bitbucket.org/mmdatafocus/fincalc_backend/reports"
	"bitbucket.org/mmdatafocus/fincalc_backend/utils"
)

// ExpenseAndRevenueConfig carries the section ids classifying parameters
// as expenses or revenue, and the calculator's enable flag.
type ExpenseAndRevenueConfig struct {
	Enabled                bool
	IndexExpensesSectionId int
	ItemExpensesSectionId  int
	IndexRevenueSectionId  int
	ItemRevenueSectionId   int
}

var expensesCalculationCodes = []int{
	formula.CodeTotalExpenses,
	formula.CodeTotalExpensesTo,
	formula.CodeExpensesFrom,
}

var revenueCalculationCodes = []int{
	formula.CodeTotalMargin,
	formula.CodeTotalContributionTo,
	formula.CodeContributionFrom,
}

// ExpenseAndRevenueCalculator cascades Total expenses / Total margin
// recalculation from a changed fact up the FRC tree. Green FRCs roll up
// contributions, red FRCs roll up expenses; root FRCs terminate the green
// cascade with the combined contribution result.
type ExpenseAndRevenueCalculator struct {
	references References
	formulas   *formula.Service
	config     ExpenseAndRevenueConfig
}

func NewExpenseAndRevenueCalculator(references References, formulas *formula.Service, config ExpenseAndRevenueConfig) *ExpenseAndRevenueCalculator {
	return &ExpenseAndRevenueCalculator{references: references, formulas: formulas, config: config}
}

func (c *ExpenseAndRevenueCalculator) Calculate(ctx context.Context, container *reports.DataContainer, data reports.Data) error {
	if !c.config.Enabled {
		return nil
	}
	if !c.isCalculableData(data) {
		return nil
	}
	if err := c.recalculate(ctx, container, data); err != nil {
		return fmt.Errorf("expense and revenue calculator failure: %w", err)
	}
	return nil
}

// recalculate runs the rollup cascade as a worklist: every parent-level
// result re-enters with its affiliated FRC cleared until a root FRC is
// reached.
func (c *ExpenseAndRevenueCalculator) recalculate(ctx context.Context, container *reports.DataContainer, data reports.Data) error {
	queue := []reports.Data{data}
	for len(queue) > 0 {
		d := queue[0]
		queue = queue[1:]

		frc := d.Frc()
		if frc == nil {
			continue
		}

		var next *reports.Data
		var err error
		switch frc.Color {
		case reports.FrcColorGreen:
			next, err = c.calculateGreenFrcData(ctx, container, d)
		case reports.FrcColorRed:
			next, err = c.calculateRedFrcData(ctx, container, d)
		}
		if err != nil {
			return err
		}
		if next != nil {
			queue = append(queue, *next)
		}
	}
	return nil
}

func (c *ExpenseAndRevenueCalculator) calculateGreenFrcData(ctx context.Context, container *reports.DataContainer, data reports.Data) (*reports.Data, error) {
	totalExpenses, err := c.calculateTotalExpenses(ctx, container, data)
	if err != nil {
		return nil, err
	}
	totalExpenses = container.Change(totalExpenses)

	totalMargin, err := c.calculateTotalMargin(ctx, container, data)
	if err != nil {
		return nil, err
	}
	totalMargin = container.Change(totalMargin)

	if data.Frc().IsRoot() {
		combined, err := c.calculateRollupFormula(
			formula.NewTotalContributionsAndExpensesFormula(c.formulas, ownBucket(totalExpenses, totalMargin), totalExpenses.DataType(), totalExpenses.Frc()),
			totalExpenses.Period(),
		)
		if err != nil {
			return nil, err
		}
		container.Change(combined)
		return nil, nil
	}

	contributionTo, err := c.calculateRollupFormula(
		formula.NewTotalContributionToFormula(c.formulas, ownBucket(totalExpenses, totalMargin), totalExpenses.DataType(), totalExpenses.Frc()),
		totalExpenses.Period(),
	)
	if err != nil {
		return nil, err
	}
	contributionTo = container.Change(contributionTo)

	contributionFrom, err := c.calculateParentsData(ctx, contributionTo)
	if err != nil {
		return nil, err
	}
	contributionFrom = container.Change(contributionFrom)

	next := contributionFrom.WithAffiliatedFrc(nil)
	return &next, nil
}

func (c *ExpenseAndRevenueCalculator) calculateRedFrcData(ctx context.Context, container *reports.DataContainer, data reports.Data) (*reports.Data, error) {
	totalExpenses, err := c.calculateTotalExpenses(ctx, container, data)
	if err != nil {
		return nil, err
	}
	totalExpenses = container.Change(totalExpenses)

	totalMargin, err := c.calculateTotalMargin(ctx, container, data)
	if err != nil {
		return nil, err
	}
	container.Change(totalMargin)

	if data.Frc().IsRoot() {
		return nil, nil
	}

	expensesTo, err := c.calculateRollupFormula(
		formula.NewTotalExpensesToFormula(c.formulas, ownBucket(totalExpenses), totalExpenses.DataType(), totalExpenses.Frc()),
		totalExpenses.Period(),
	)
	if err != nil {
		return nil, err
	}
	expensesTo = container.Change(expensesTo)

	expensesFrom, err := c.calculateParentsData(ctx, expensesTo)
	if err != nil {
		return nil, err
	}
	expensesFrom = container.Change(expensesFrom)

	next := expensesFrom.WithAffiliatedFrc(nil)
	return &next, nil
}

// ownBucket wraps freshly calculated facts of one FRC into a formula input.
func ownBucket(facts ...reports.Data) formula.FrcDataSet {
	if len(facts) == 0 || facts[0].Frc() == nil {
		return formula.FrcDataSet{}
	}
	return formula.FrcDataSet{facts[0].Frc().Id: facts}
}

// calculateRollupFormula executes a rollup formula over facts of one FRC
// and stamps the common result fields.
func (c *ExpenseAndRevenueCalculator) calculateRollupFormula(f *formula.Formula, period *reports.Period) (reports.Data, error) {
	result, err := f.Execute()
	if err != nil {
		return reports.Data{}, err
	}
	return result.
		WithName(f.Parameter().ParameterName()).
		WithPeriod(period), nil
}

func (c *ExpenseAndRevenueCalculator) calculateTotalExpenses(ctx context.Context, container *reports.DataContainer, data reports.Data) (reports.Data, error) {
	set := c.filteredFrcDataSet(container, data, c.isTotalExpensesData)

	requests, err := c.expenseRequests(ctx, data, c.config.ItemExpensesSectionId)
	if err != nil {
		return reports.Data{}, err
	}
	requests = dropRepresentedRequests(requests, set)

	f := formula.NewTotalExpensesFormula(c.formulas, set, data.DataType(), data.Frc(), requests)
	result, err := f.Execute()
	if err != nil {
		return reports.Data{}, err
	}

	levels, err := c.references.AllocationLevelList(ctx)
	if err != nil {
		return reports.Data{}, err
	}
	return result.
		WithAllocationLevel(levels[reports.AllocationLevelOwnExpenses]).
		WithName(f.Parameter().ParameterName()).
		WithPeriod(data.Period()), nil
}

func (c *ExpenseAndRevenueCalculator) calculateTotalMargin(ctx context.Context, container *reports.DataContainer, data reports.Data) (reports.Data, error) {
	set := c.filteredFrcDataSet(container, data, c.isTotalMarginData)

	requests, err := c.expenseRequests(ctx, data, c.config.ItemRevenueSectionId)
	if err != nil {
		return reports.Data{}, err
	}
	requests = dropRepresentedRequests(requests, set)

	f := formula.NewTotalMarginFormula(c.formulas, set, data.DataType(), data.Frc(), requests)
	result, err := f.Execute()
	if err != nil {
		return reports.Data{}, err
	}
	return result.
		WithName(f.Parameter().ParameterName()).
		WithPeriod(data.Period()), nil
}

// calculateParentsData attributes a rollup fact to the parent FRC as
// "Expenses from <frc>" or "Contribution from <frc>".
func (c *ExpenseAndRevenueCalculator) calculateParentsData(ctx context.Context, data reports.Data) (reports.Data, error) {
	index := data.Index()
	if index == nil {
		return reports.Data{}, errors.New("index not set")
	}

	frc := data.Frc()
	parentFrc, err := c.references.ParentFrc(ctx, frc)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return reports.Data{}, errors.New("parent frc not set")
		}
		return reports.Data{}, err
	}

	set := formula.FrcDataSet{frc.Id: {data}}
	var f *formula.Formula
	switch index.Code {
	case formula.CodeTotalExpensesTo:
		f = formula.NewExpensesFromFormula(c.formulas, set, data.DataType(), parentFrc, frc)
	case formula.CodeTotalContributionTo:
		f = formula.NewContributionFromFormula(c.formulas, set, data.DataType(), parentFrc, frc)
	default:
		return reports.Data{}, fmt.Errorf("wrong index value: %d", index.Code)
	}

	result, err := f.Execute()
	if err != nil {
		return reports.Data{}, err
	}
	return result.
		WithPeriod(data.Period()).
		WithName(f.Parameter().ParameterName() + " " + frc.Name).
		WithAffiliatedFrc(frc), nil
}

// filteredFrcDataSet projects the container onto the facts the given
// classifier accepts for the changed fact's period and data type, grouped
// by FRC.
func (c *ExpenseAndRevenueCalculator) filteredFrcDataSet(container *reports.DataContainer, filterData reports.Data, accepts func(reports.Data, reports.Data) bool) formula.FrcDataSet {
	filtered := container.Filter(container.DataNode(), func(d reports.Data) bool {
		return c.isSamePeriodAndDataType(d, filterData) && accepts(d, filterData)
	})
	if filtered == nil {
		return formula.FrcDataSet{}
	}
	return formula.NewFrcDataSet(frcNodes(filtered, container.HierarchyConfig()))
}

func (c *ExpenseAndRevenueCalculator) isSamePeriodAndDataType(d, filterData reports.Data) bool {
	return sameDataType(d.DataType(), filterData.DataType()) && samePeriod(d.Period(), filterData.Period())
}

func (c *ExpenseAndRevenueCalculator) isTotalExpensesData(d, filterData reports.Data) bool {
	frc, filterFrc := d.Frc(), filterData.Frc()
	if frc == nil || filterFrc == nil {
		return false
	}

	if frc.Id == filterFrc.Id {
		if item := d.Item(); item != nil &&
			containsInt(item.Sections, c.config.ItemExpensesSectionId) &&
			c.formulas.IsFrcAvailableForParameter(filterFrc, item) {
			return true
		}

		index := d.Index()
		if index == nil ||
			!containsInt(index.Sections, c.config.IndexExpensesSectionId) ||
			!c.formulas.IsFrcAvailableForParameter(filterFrc, index) {
			return false
		}
		return !containsInt(expensesCalculationCodes, index.Code)
	}

	if containsFrc(filterFrc.ChildGreenFrc, frc) || containsFrc(filterFrc.ChildRedFrc, frc) {
		index := d.Index()
		return index != nil && index.Code == formula.CodeTotalExpensesTo
	}
	return false
}

func (c *ExpenseAndRevenueCalculator) isTotalMarginData(d, filterData reports.Data) bool {
	frc, filterFrc := d.Frc(), filterData.Frc()
	if frc == nil || filterFrc == nil {
		return false
	}

	if frc.Id == filterFrc.Id {
		if item := d.Item(); item != nil &&
			containsInt(item.Sections, c.config.ItemRevenueSectionId) &&
			c.formulas.IsFrcAvailableForParameter(filterFrc, item) {
			return true
		}

		index := d.Index()
		if index == nil ||
			!containsInt(index.Sections, c.config.IndexRevenueSectionId) ||
			!c.formulas.IsFrcAvailableForParameter(filterFrc, index) {
			return false
		}
		return !containsInt(revenueCalculationCodes, index.Code)
	}

	if containsFrc(filterFrc.ChildGreenFrc, frc) || containsFrc(filterFrc.ChildRedFrc, frc) {
		index := d.Index()
		return index != nil && index.Code == formula.CodeTotalContributionTo
	}
	return false
}

// expenseRequests loads the period's approved expense requests of the
// fact's FRC in the given section. Only the "fact" data type folds them in.
func (c *ExpenseAndRevenueCalculator) expenseRequests(ctx context.Context, data reports.Data, sectionId int) ([]*reports.ExpenseRequest, error) {
	if data.DataType() == nil || data.DataType().Name != reports.DataTypeFact {
		return nil, nil
	}

	requests, err := c.references.ExpenseRequestList(ctx, data.Period())
	if err != nil {
		return nil, err
	}

	var filtered []*reports.ExpenseRequest
	for _, request := range requests {
		if !sameFrc(request.Frc, data.Frc()) {
			continue
		}
		if request.Item == nil || !containsInt(request.Item.Sections, sectionId) {
			continue
		}
		if !c.formulas.IsFrcAvailableForParameter(request.Frc, request.Item) {
			continue
		}
		filtered = append(filtered, request)
	}
	return filtered, nil
}

// dropRepresentedRequests removes requests whose item code is already
// represented by a fact in the input set, so the amount is not counted
// twice.
func dropRepresentedRequests(requests []*reports.ExpenseRequest, set formula.FrcDataSet) []*reports.ExpenseRequest {
	if len(requests) == 0 {
		return nil
	}

	represented := make(map[int]bool)
	for _, dataList := range set {
		for _, d := range dataList {
			if code := d.ParameterCode(); code != 0 {
				represented[code] = true
			}
		}
	}

	var kept []*reports.ExpenseRequest
	for _, request := range requests {
		if request.Item == nil || represented[request.Item.Code] {
			continue
		}
		kept = append(kept, request)
	}
	return kept
}

// isCalculableData accepts facts whose parameter belongs to an expense or
// revenue section and which carry a period or a USD sum (zero counts).
func (c *ExpenseAndRevenueCalculator) isCalculableData(data reports.Data) bool {
	index, item := data.Index(), data.Item()
	validParameter := false
	if index != nil &&
		(containsInt(index.Sections, c.config.IndexExpensesSectionId) || containsInt(index.Sections, c.config.IndexRevenueSectionId)) {
		validParameter = true
	}
	if item != nil &&
		(containsInt(item.Sections, c.config.ItemExpensesSectionId) || containsInt(item.Sections, c.config.ItemRevenueSectionId)) {
		validParameter = true
	}

	return validParameter && (data.Period() != nil || data.SumInUsd() != nil)
}
