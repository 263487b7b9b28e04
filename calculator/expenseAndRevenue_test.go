package calculator

import (
	"context"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/fincalc_backend/formula"
	"bitbucket.org/mmdatafocus/fincalc_backend/reports"
	"bitbucket.org/mmdatafocus/fincalc_backend/utils"
)

const (
	indexExpensesSection = 11
	itemExpensesSection  = 12
	indexRevenueSection  = 13
	itemRevenueSection   = 14
)

type fakeReferences struct {
	parents  map[int]*reports.Frc
	levels   map[reports.AllocationLevel]*reports.Item
	requests map[int][]*reports.ExpenseRequest
}

func (f *fakeReferences) ParentFrc(_ context.Context, frc *reports.Frc) (*reports.Frc, error) {
	parent, ok := f.parents[frc.Id]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	return parent, nil
}

func (f *fakeReferences) AllocationLevelList(context.Context) (map[reports.AllocationLevel]*reports.Item, error) {
	return f.levels, nil
}

func (f *fakeReferences) ExpenseRequestList(_ context.Context, period *reports.Period) ([]*reports.ExpenseRequest, error) {
	if period == nil {
		return nil, nil
	}
	return f.requests[period.Id], nil
}

type fixture struct {
	rootFrc  *reports.Frc
	childFrc *reports.Frc
	period   *reports.Period
	factType *reports.DataType

	salaryIndex  *reports.Index
	salesIndex   *reports.Index
	indexes      map[int]*reports.Index
	ownExpenses  *reports.Item
	amountUsd    *reports.Item
	affectLevel  *reports.Item
	forgetLevel  *reports.Item
	complainItem *reports.Item

	references *fakeReferences
	formulas   *formula.Service
}

func newFixture() *fixture {
	f := &fixture{
		rootFrc:  &reports.Frc{Id: 1, Name: "Company", Color: reports.FrcColorGreen},
		childFrc: &reports.Frc{Id: 2, Name: "Department", Color: reports.FrcColorGreen, ParentId: 1},
		period:   &reports.Period{Id: 7, Name: "2026-01", IsOpen: true},
		factType: &reports.DataType{Id: 1, Name: "fact"},
	}
	f.rootFrc.ChildGreenFrc = []*reports.Frc{f.childFrc}

	frcIds := []int{f.rootFrc.Id, f.childFrc.Id}
	newIndex := func(code int, name string, sections ...int) *reports.Index {
		return &reports.Index{Id: code, Name: name, Code: code, IsActive: true, FrcIds: frcIds, Sections: sections}
	}

	f.salaryIndex = newIndex(50001, "Salaries", indexExpensesSection)
	f.salesIndex = newIndex(60001, "Sales revenue", indexRevenueSection)

	indexes := []*reports.Index{
		f.salaryIndex,
		f.salesIndex,
		newIndex(formula.CodeTotalExpenses, "Total expenses", indexExpensesSection),
		newIndex(formula.CodeTotalExpensesTo, "Total expenses to", indexExpensesSection),
		newIndex(formula.CodeExpensesFrom, "Expenses from", indexExpensesSection),
		newIndex(formula.CodeTotalMargin, "Total margin", indexRevenueSection),
		newIndex(formula.CodeTotalContributionTo, "Total contribution to", indexRevenueSection),
		newIndex(formula.CodeTotalContributionsAndExpenses, "Total contributions and expenses", indexRevenueSection),
		newIndex(formula.CodeContributionFrom, "Contribution from", indexRevenueSection),
		newIndex(formula.CodeTakePercent, "Take (%)"),
		newIndex(formula.CodeTaxPercent, "Tax (%)"),
		newIndex(formula.CodeTotalPercent, "Total (%)"),
		newIndex(formula.CodeAmountToAllocateAffect, "Amount to allocate (affect)"),
		newIndex(formula.CodeAmountToAllocateComplain, "Amount to allocate (complain)"),
		newIndex(formula.CodeAmountToAllocateForget, "Amount to allocate (forget)"),
		newIndex(formula.CodeFxResult, "FX result"),
		newIndex(formula.CodeGrossRevenueTotal, "Gross revenue total"),
		newIndex(formula.CodeNetRevenueTotal, "Net revenue total"),
		newIndex(formula.CodeNetProfitBeforeBonuses, "Net profit before bonuses"),
		newIndex(formula.CodeNetProfitAfterBonuses, "Net profit after bonuses"),
	}
	f.indexes = make(map[int]*reports.Index, len(indexes))
	for _, index := range indexes {
		f.indexes[index.Code] = index
	}

	newItem := func(code int, name string) *reports.Item {
		return &reports.Item{Id: code, Name: name, Code: code, IsActive: true, FrcIds: frcIds}
	}
	f.affectLevel = newItem(reports.ItemCodeAffect, "Allocated expenses (affect)")
	f.complainItem = newItem(reports.ItemCodeComplain, "Allocated expenses (complain)")
	f.forgetLevel = newItem(reports.ItemCodeForget, "Allocated expenses (forget)")
	f.ownExpenses = newItem(reports.ItemCodeOwnExpenses, "Own expenses")
	f.amountUsd = newItem(reports.ItemCodeAmountUsd, "Amount USD")

	items := []*reports.Item{f.affectLevel, f.complainItem, f.forgetLevel, f.ownExpenses, f.amountUsd}

	f.references = &fakeReferences{
		parents: map[int]*reports.Frc{f.childFrc.Id: f.rootFrc},
		levels: map[reports.AllocationLevel]*reports.Item{
			reports.AllocationLevelAffect:      f.affectLevel,
			reports.AllocationLevelComplain:    f.complainItem,
			reports.AllocationLevelForget:      f.forgetLevel,
			reports.AllocationLevelOwnExpenses: f.ownExpenses,
			reports.AllocationLevelAmountUsd:   f.amountUsd,
		},
		requests: map[int][]*reports.ExpenseRequest{},
	}
	f.formulas = formula.NewService(indexes, items)
	return f
}

func (f *fixture) expenseAndRevenueConfig() ExpenseAndRevenueConfig {
	return ExpenseAndRevenueConfig{
		Enabled:                true,
		IndexExpensesSectionId: indexExpensesSection,
		ItemExpensesSectionId:  itemExpensesSection,
		IndexRevenueSectionId:  indexRevenueSection,
		ItemRevenueSectionId:   itemRevenueSection,
	}
}

func (f *fixture) fact(frc *reports.Frc, index *reports.Index, sum float64) reports.Data {
	return reports.NewData(reports.DataFields{
		Name:     index.Name,
		DataType: f.factType,
		Period:   f.period,
		Frc:      frc,
		Index:    index,
		SumInUsd: &sum,
		Snapshot: time.Now(),
	})
}

func (f *fixture) container(t *testing.T, dataList []reports.Data) *reports.DataContainer {
	t.Helper()
	config := reports.DefaultDataHierarchyConfig()
	root, err := reports.NewDataStructureBuilder(config).SetDataList(dataList).Build()
	if err != nil {
		t.Fatalf("build structure: %v", err)
	}
	return reports.NewDataContainer(root, config)
}

func (f *fixture) probe(frc *reports.Frc, index *reports.Index) reports.Data {
	return reports.NewData(reports.DataFields{
		DataType: f.factType,
		Period:   f.period,
		Frc:      frc,
		Index:    index,
	})
}

func TestGreenCascadeRollsContributionUpToRoot(t *testing.T) {
	f := newFixture()
	calc := NewExpenseAndRevenueCalculator(f.references, f.formulas, f.expenseAndRevenueConfig())

	expense := f.fact(f.childFrc, f.salaryIndex, 100)
	revenue := f.fact(f.childFrc, f.salesIndex, 150)
	container := f.container(t, []reports.Data{expense, revenue})

	if err := calc.Calculate(context.Background(), container, expense); err != nil {
		t.Fatalf("calculate: %v", err)
	}

	contributionTo := container.GetByData(f.probe(f.childFrc, f.indexes[formula.CodeTotalContributionTo]))
	if contributionTo == nil {
		t.Fatal("expected Total contribution to at the child FRC")
	}
	if *contributionTo.SumInUsd() != 50 {
		t.Fatalf("expected contribution 150-100=50, got %v", *contributionTo.SumInUsd())
	}

	contributionFrom := container.GetByData(
		f.probe(f.rootFrc, f.indexes[formula.CodeContributionFrom]).WithAffiliatedFrc(f.childFrc),
	)
	if contributionFrom == nil {
		t.Fatal("expected Contribution from at the root FRC, affiliated with the child")
	}
	if *contributionFrom.SumInUsd() != 50 {
		t.Fatalf("expected rolled-up contribution 50, got %v", *contributionFrom.SumInUsd())
	}
	if contributionFrom.Name() != "Contribution from Department" {
		t.Fatalf("unexpected rollup name %q", contributionFrom.Name())
	}

	combined := container.GetByData(f.probe(f.rootFrc, f.indexes[formula.CodeTotalContributionsAndExpenses]))
	if combined == nil {
		t.Fatal("expected combined contribution result at the root FRC")
	}
	if *combined.SumInUsd() != 50 {
		t.Fatalf("expected combined result 50, got %v", *combined.SumInUsd())
	}
}

func TestCascadeSkipsFactsOutsideExpenseAndRevenueSections(t *testing.T) {
	f := newFixture()
	calc := NewExpenseAndRevenueCalculator(f.references, f.formulas, f.expenseAndRevenueConfig())

	unclassified := f.fact(f.childFrc, f.indexes[formula.CodeTakePercent], 10)
	container := f.container(t, []reports.Data{unclassified})

	if err := calc.Calculate(context.Background(), container, unclassified); err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if changed := container.ChangedDataMap(); len(changed) != 0 {
		t.Fatalf("expected no recalculation for an unclassified parameter, got %d changes", len(changed))
	}
}

func TestCalculatorDisabledByConfig(t *testing.T) {
	f := newFixture()
	config := f.expenseAndRevenueConfig()
	config.Enabled = false
	calc := NewExpenseAndRevenueCalculator(f.references, f.formulas, config)

	expense := f.fact(f.childFrc, f.salaryIndex, 100)
	container := f.container(t, []reports.Data{expense})

	if err := calc.Calculate(context.Background(), container, expense); err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if changed := container.ChangedDataMap(); len(changed) != 0 {
		t.Fatalf("disabled calculator must not change anything, got %d changes", len(changed))
	}
}

func TestRedCascadeRollsExpensesUpToParent(t *testing.T) {
	f := newFixture()
	redRoot := &reports.Frc{Id: 10, Name: "Shared services", Color: reports.FrcColorRed}
	redChild := &reports.Frc{Id: 11, Name: "IT", Color: reports.FrcColorRed, ParentId: 10}
	redRoot.ChildRedFrc = []*reports.Frc{redChild}
	f.references.parents[redChild.Id] = redRoot
	for _, index := range f.indexes {
		index.FrcIds = append(index.FrcIds, redRoot.Id, redChild.Id)
	}

	calc := NewExpenseAndRevenueCalculator(f.references, f.formulas, f.expenseAndRevenueConfig())
	expense := f.fact(redChild, f.salaryIndex, 80)
	container := f.container(t, []reports.Data{expense})

	if err := calc.Calculate(context.Background(), container, expense); err != nil {
		t.Fatalf("calculate: %v", err)
	}

	expensesTo := container.GetByData(f.probe(redChild, f.indexes[formula.CodeTotalExpensesTo]))
	if expensesTo == nil || *expensesTo.SumInUsd() != 80 {
		t.Fatalf("expected Total expenses to = 80 at the red child, got %v", expensesTo)
	}

	expensesFrom := container.GetByData(
		f.probe(redRoot, f.indexes[formula.CodeExpensesFrom]).WithAffiliatedFrc(redChild),
	)
	if expensesFrom == nil || *expensesFrom.SumInUsd() != 80 {
		t.Fatalf("expected Expenses from = 80 at the red parent, got %v", expensesFrom)
	}
}

func TestTotalExpensesCarriesOwnExpensesMarker(t *testing.T) {
	f := newFixture()
	calc := NewExpenseAndRevenueCalculator(f.references, f.formulas, f.expenseAndRevenueConfig())

	expense := f.fact(f.rootFrc, f.salaryIndex, 10)
	container := f.container(t, []reports.Data{expense})

	if err := calc.Calculate(context.Background(), container, expense); err != nil {
		t.Fatalf("calculate: %v", err)
	}

	totalExpenses := container.GetByData(
		f.probe(f.rootFrc, f.indexes[formula.CodeTotalExpenses]).WithAllocationLevel(f.ownExpenses),
	)
	if totalExpenses == nil {
		t.Fatal("expected Total expenses under the OwnExpenses marker")
	}
	if *totalExpenses.SumInUsd() != 10 {
		t.Fatalf("expected Total expenses 10, got %v", *totalExpenses.SumInUsd())
	}
}
