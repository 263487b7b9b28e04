package formula

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/fincalc_backend/reports"
)

var (
	factType   = &reports.DataType{Id: 1, Name: "fact"}
	rootFrc    = &reports.Frc{Id: 100, Name: "Company", Color: reports.FrcColorGreen}
	childFrc   = &reports.Frc{Id: 101, Name: "Department", Color: reports.FrcColorGreen, ParentId: 100}
	allFrcIds  = []int{100, 101}
	catalogNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
)

func catalogIndex(code int, name string) *reports.Index {
	return &reports.Index{Id: code, Name: name, Code: code, IsActive: true, FrcIds: allFrcIds}
}

func testService() *Service {
	return NewService([]*reports.Index{
		catalogIndex(CodeTotalExpenses, "Total expenses"),
		catalogIndex(CodeTotalExpensesTo, "Total expenses to"),
		catalogIndex(CodeExpensesFrom, "Expenses from"),
		catalogIndex(CodeTakePercent, "Take (%)"),
		catalogIndex(CodeTaxPercent, "Tax (%)"),
		catalogIndex(CodeTotalPercent, "Total (%)"),
		catalogIndex(CodeTotalMargin, "Total margin"),
		catalogIndex(CodeTotalContributionTo, "Total contribution to"),
		catalogIndex(CodeContributionFrom, "Contribution from"),
		catalogIndex(CodeAmountToAllocateAffect, "Amount to allocate (affect)"),
		catalogIndex(CodeNetProfitBeforeBonuses, "Net profit before bonuses"),
		catalogIndex(CodeFxResult, "FX result"),
	}, []*reports.Item{
		{Id: reports.ItemCodeAffect, Name: "Allocated expenses (affect)", Code: reports.ItemCodeAffect, IsActive: true, FrcIds: allFrcIds},
	})
}

func fact(frc *reports.Frc, index *reports.Index, sum float64, snapshot time.Time) reports.Data {
	return reports.NewData(reports.DataFields{
		DataType: factType,
		Frc:      frc,
		Index:    index,
		SumInUsd: &sum,
		Snapshot: snapshot,
	})
}

func TestAbsentRequiredValuesResolveToZero(t *testing.T) {
	svc := testService()
	set := FrcDataSet{rootFrc.Id: nil}

	f := NewTotalContributionToFormula(svc, set, factType, rootFrc)
	result, err := f.Execute()
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if *result.SumInUsd() != 0 {
		t.Fatalf("expected 0 for empty inputs, got %v", *result.SumInUsd())
	}
}

func TestTotalContributionToSubtractsExpensesFromMargin(t *testing.T) {
	svc := testService()
	set := FrcDataSet{childFrc.Id: []reports.Data{
		fact(childFrc, catalogIndex(CodeTotalMargin, "Total margin"), 150, catalogNow),
		fact(childFrc, catalogIndex(CodeTotalExpenses, "Total expenses"), 100, catalogNow),
	}}

	result, err := NewTotalContributionToFormula(svc, set, factType, childFrc).Execute()
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if *result.SumInUsd() != 50 {
		t.Fatalf("expected contribution 50, got %v", *result.SumInUsd())
	}
	if result.IndexItemCode() != CodeTotalContributionTo {
		t.Fatalf("expected code %d, got %d", CodeTotalContributionTo, result.IndexItemCode())
	}
	if result.Index() == nil || result.Index().Code != CodeTotalContributionTo {
		t.Fatal("result must carry the calculated parameter")
	}
}

func TestOneFrcFormulaIgnoresOtherBuckets(t *testing.T) {
	svc := testService()
	set := FrcDataSet{
		rootFrc.Id:  {fact(rootFrc, catalogIndex(CodeTotalMargin, "Total margin"), 999, catalogNow)},
		childFrc.Id: {fact(childFrc, catalogIndex(CodeTotalMargin, "Total margin"), 150, catalogNow)},
	}

	result, err := NewTotalContributionToFormula(svc, set, factType, childFrc).Execute()
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if *result.SumInUsd() != 150 {
		t.Fatalf("expected 150 from the own bucket only, got %v", *result.SumInUsd())
	}
}

func TestTotalExpensesFoldsExpenseRequests(t *testing.T) {
	svc := testService()
	set := FrcDataSet{childFrc.Id: []reports.Data{
		fact(childFrc, catalogIndex(CodeTotalExpensesTo, "Total expenses to"), 40, catalogNow),
	}}
	amount := 60.0
	requests := []*reports.ExpenseRequest{{Id: 1, Frc: childFrc, AmountWithoutTaxesUsd: &amount}}

	result, err := NewTotalExpensesFormula(svc, set, factType, childFrc, requests).Execute()
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if *result.SumInUsd() != 100 {
		t.Fatalf("expected 40+60=100, got %v", *result.SumInUsd())
	}
}

func TestExecuteStampsMaxConsumedSnapshot(t *testing.T) {
	svc := testService()
	older := catalogNow.Add(-time.Hour)
	set := FrcDataSet{childFrc.Id: []reports.Data{
		fact(childFrc, catalogIndex(CodeTotalMargin, "Total margin"), 150, catalogNow),
		fact(childFrc, catalogIndex(CodeTotalExpenses, "Total expenses"), 100, older),
	}}

	result, err := NewTotalContributionToFormula(svc, set, factType, childFrc).Execute()
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.Snapshot().Equal(catalogNow) {
		t.Fatalf("expected max consumed snapshot %v, got %v", catalogNow, result.Snapshot())
	}
}

func TestExecuteFailsForUnknownParameter(t *testing.T) {
	svc := NewService(nil, nil)
	f := NewTotalPercentFormula(svc, FrcDataSet{}, factType, rootFrc)
	if _, err := f.Execute(); err == nil {
		t.Fatal("expected error for unresolved parameter")
	}
}

func TestAllocatedExpensesClampsNegativeTotalPercent(t *testing.T) {
	svc := testService()
	set := FrcDataSet{childFrc.Id: []reports.Data{
		fact(childFrc, catalogIndex(CodeTotalPercent, "Total (%)"), -25, catalogNow),
		fact(childFrc, catalogIndex(CodeAmountToAllocateAffect, "Amount to allocate (affect)"), 400, catalogNow),
	}}

	f, err := NewAllocatedExpensesFormula(reports.AllocationLevelAffect, svc, set, factType, childFrc)
	if err != nil {
		t.Fatalf("build formula: %v", err)
	}
	result, err := f.Execute()
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if *result.SumInUsd() != 0 {
		t.Fatalf("negative total percent must clamp to zero, got %v", *result.SumInUsd())
	}
}

func TestAllocatedExpensesWeightsByTotalPercent(t *testing.T) {
	svc := testService()
	set := FrcDataSet{childFrc.Id: []reports.Data{
		fact(childFrc, catalogIndex(CodeTotalPercent, "Total (%)"), 25, catalogNow),
		fact(childFrc, catalogIndex(CodeAmountToAllocateAffect, "Amount to allocate (affect)"), 400, catalogNow),
	}}

	f, err := NewAllocatedExpensesFormula(reports.AllocationLevelAffect, svc, set, factType, childFrc)
	if err != nil {
		t.Fatalf("build formula: %v", err)
	}
	result, err := f.Execute()
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if *result.SumInUsd() != 100 {
		t.Fatalf("expected 400*25/100=100, got %v", *result.SumInUsd())
	}
	if result.Item() == nil || result.Item().Code != reports.ItemCodeAffect {
		t.Fatal("allocated expenses must carry the level item as parameter")
	}
}

func TestAmountToAllocateRejectsWrongLevel(t *testing.T) {
	svc := testService()
	if _, err := NewAmountToAllocateFormula(reports.AllocationLevelOwnExpenses, svc, FrcDataSet{}, factType, childFrc, rootFrc); err == nil {
		t.Fatal("expected error for a non-cascading allocation level")
	}
}

func TestFxResultUsesBudgetAndMonthlyRates(t *testing.T) {
	svc := testService()
	amount := 200.0
	currency := &reports.Currency{Id: 1, Name: "EUR", BudgetRate: 2, MonthlyRate: 4}
	requests := []*reports.ExpenseRequest{{
		Id:                       1,
		Frc:                      childFrc,
		AmountInOriginalCurrency: &amount,
		Currency:                 currency,
	}}

	result, err := NewFxResultFormula(svc, FrcDataSet{}, factType, childFrc, requests).Execute()
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	// 200/2 - 200/4 = 50
	if *result.SumInUsd() != 50 {
		t.Fatalf("expected fx delta 50, got %v", *result.SumInUsd())
	}
}

func TestNetProfitBeforeBonusesSwitchesOnRootFrc(t *testing.T) {
	svc := testService()
	root := NewNetProfitBeforeBonusesFormula(svc, FrcDataSet{}, factType, rootFrc)
	if !containsInt(root.requiredCodes, CodeTotalContributionsAndExpenses) {
		t.Fatal("root FRC must consume the combined contribution result")
	}
	child := NewNetProfitBeforeBonusesFormula(svc, FrcDataSet{}, factType, childFrc)
	if !containsInt(child.requiredCodes, CodeTotalContributionTo) {
		t.Fatal("non-root FRC must consume its contribution rollup")
	}
}

func TestPrepareFrcDataSetDropsUnauthorizedParameters(t *testing.T) {
	svc := testService()
	restricted := &reports.Index{Id: 9000, Name: "Restricted", Code: 9000, FrcIds: []int{rootFrc.Id}}

	container := reports.NewDataContainer(nil, reports.DefaultDataHierarchyConfig())
	container.Change(fact(childFrc, restricted, 1, catalogNow))
	container.Change(fact(childFrc, catalogIndex(CodeTotalMargin, "Total margin"), 2, catalogNow))

	frcNode := container.DataNode()
	for frcNode.FirstNode() != nil {
		frcNode = frcNode.FirstNode()
	}

	set, err := svc.PrepareFrcDataSet([]*reports.HierarchicalDataNode{frcNode})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	dataList := set[childFrc.Id]
	if len(dataList) != 1 || dataList[0].ParameterCode() != CodeTotalMargin {
		t.Fatalf("expected only the authorized fact to survive, got %v", dataList)
	}
}
