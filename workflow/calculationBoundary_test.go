package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/fincalc_backend/calculator"
	"bitbucket.org/mmdatafocus/fincalc_backend/formula"
	"bitbucket.org/mmdatafocus/fincalc_backend/models"
	"bitbucket.org/mmdatafocus/fincalc_backend/reports"
	"bitbucket.org/mmdatafocus/fincalc_backend/utils"
	"gorm.io/gorm"
)

type fakeStore struct {
	data   []reports.Data
	saved  []reports.Data
	queued []bool
}

func (f *fakeStore) GetDataList(context.Context, int, int) ([]reports.Data, error) {
	return f.data, nil
}

func (f *fakeStore) ChangeData(_ context.Context, _ *gorm.DB, d reports.Data, opts models.ChangeDataOptions) (reports.Data, error) {
	d = d.WithSnapshot(time.Now())
	if opts.Persist {
		f.saved = append(f.saved, d)
		f.queued = append(f.queued, opts.QueueChange)
	}
	return d, nil
}

type statusUpdate struct {
	changeIds    []int
	status       models.ChangeStatus
	errorMessage string
}

type fakeQueue struct {
	changes []models.CalculationChange
	updates []statusUpdate
}

func (f *fakeQueue) CalculationReadyList(context.Context, string) ([]models.CalculationChange, error) {
	return f.changes, nil
}

func (f *fakeQueue) UpdateChangeStatus(_ context.Context, _ *gorm.DB, changeIds []int, status models.ChangeStatus, errorMessage string) error {
	f.updates = append(f.updates, statusUpdate{changeIds: changeIds, status: status, errorMessage: errorMessage})
	return nil
}

// failingCalculator fails for facts of one parameter code and accepts the
// rest.
type failingCalculator struct {
	failCode int
}

func (c failingCalculator) Calculate(_ context.Context, _ *reports.DataContainer, d reports.Data) error {
	if c.failCode == 0 || d.ParameterCode() == c.failCode {
		return errors.New("boom")
	}
	return nil
}

type boundaryFixture struct {
	rootFrc    *reports.Frc
	childFrc   *reports.Frc
	period     *reports.Period
	factType   *reports.DataType
	salaries   *reports.Index
	sales      *reports.Index
	references *boundaryReferences
	formulas   *formula.Service
}

type boundaryReferences struct {
	parents map[int]*reports.Frc
}

func (r *boundaryReferences) ParentFrc(_ context.Context, frc *reports.Frc) (*reports.Frc, error) {
	parent, ok := r.parents[frc.Id]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	return parent, nil
}

func (r *boundaryReferences) AllocationLevelList(context.Context) (map[reports.AllocationLevel]*reports.Item, error) {
	return map[reports.AllocationLevel]*reports.Item{
		reports.AllocationLevelOwnExpenses: {Id: reports.ItemCodeOwnExpenses, Name: "Own expenses", Code: reports.ItemCodeOwnExpenses},
		reports.AllocationLevelAmountUsd:   {Id: reports.ItemCodeAmountUsd, Name: "Amount USD", Code: reports.ItemCodeAmountUsd},
	}, nil
}

func (r *boundaryReferences) ExpenseRequestList(context.Context, *reports.Period) ([]*reports.ExpenseRequest, error) {
	return nil, nil
}

const (
	testIndexExpensesSection = 21
	testItemExpensesSection  = 22
	testIndexRevenueSection  = 23
	testItemRevenueSection   = 24
)

func newBoundaryFixture() *boundaryFixture {
	f := &boundaryFixture{
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
	f.salaries = newIndex(50001, "Salaries", testIndexExpensesSection)
	f.sales = newIndex(60001, "Sales revenue", testIndexRevenueSection)
	indexes := []*reports.Index{
		f.salaries,
		f.sales,
		newIndex(formula.CodeTotalExpenses, "Total expenses", testIndexExpensesSection),
		newIndex(formula.CodeTotalExpensesTo, "Total expenses to", testIndexExpensesSection),
		newIndex(formula.CodeExpensesFrom, "Expenses from", testIndexExpensesSection),
		newIndex(formula.CodeTotalMargin, "Total margin", testIndexRevenueSection),
		newIndex(formula.CodeTotalContributionTo, "Total contribution to", testIndexRevenueSection),
		newIndex(formula.CodeTotalContributionsAndExpenses, "Total contributions and expenses", testIndexRevenueSection),
		newIndex(formula.CodeContributionFrom, "Contribution from", testIndexRevenueSection),
		newIndex(formula.CodeFxResult, "FX result"),
		newIndex(formula.CodeGrossRevenueTotal, "Gross revenue total"),
		newIndex(formula.CodeNetRevenueTotal, "Net revenue total"),
		newIndex(formula.CodeNetProfitBeforeBonuses, "Net profit before bonuses"),
		newIndex(formula.CodeNetProfitAfterBonuses, "Net profit after bonuses"),
	}
	items := []*reports.Item{
		{Id: reports.ItemCodeOwnExpenses, Name: "Own expenses", Code: reports.ItemCodeOwnExpenses, IsActive: true, FrcIds: frcIds},
		{Id: reports.ItemCodeAmountUsd, Name: "Amount USD", Code: reports.ItemCodeAmountUsd, IsActive: true, FrcIds: frcIds},
	}

	f.references = &boundaryReferences{parents: map[int]*reports.Frc{f.childFrc.Id: f.rootFrc}}
	f.formulas = formula.NewService(indexes, items)
	return f
}

func (f *boundaryFixture) calculators() []calculator.Calculator {
	return []calculator.Calculator{
		calculator.NewExpenseAndRevenueCalculator(f.references, f.formulas, calculator.ExpenseAndRevenueConfig{
			Enabled:                true,
			IndexExpensesSectionId: testIndexExpensesSection,
			ItemExpensesSectionId:  testItemExpensesSection,
			IndexRevenueSectionId:  testIndexRevenueSection,
			ItemRevenueSectionId:   testItemRevenueSection,
		}),
		calculator.NewAllocationCalculator(f.references, f.formulas, calculator.AllocationConfig{Enabled: true}),
	}
}

func (f *boundaryFixture) fact(frc *reports.Frc, index *reports.Index, sum float64) reports.Data {
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

func TestCalculateRunPersistsCascadeResults(t *testing.T) {
	f := newBoundaryFixture()
	expense := f.fact(f.childFrc, f.salaries, 100)
	revenue := f.fact(f.childFrc, f.sales, 150)

	store := &fakeStore{data: []reports.Data{expense, revenue}}
	queue := &fakeQueue{changes: []models.CalculationChange{
		{Change: models.DataChange{ID: 1, Status: models.ChangeStatusNew}, Data: expense},
	}}

	boundary := NewCalculationBoundary(nil, store, queue, f.calculators(), nil)
	if err := boundary.Calculate(context.Background(), "run-1"); err != nil {
		t.Fatalf("calculate: %v", err)
	}

	if len(queue.updates) != 2 || queue.updates[0].status != models.ChangeStatusPending || queue.updates[1].status != models.ChangeStatusSuccess {
		t.Fatalf("expected PENDING then SUCCESS, got %v", queue.updates)
	}

	var contribution *reports.Data
	for i := range store.saved {
		d := store.saved[i]
		if d.ParameterCode() == formula.CodeTotalContributionTo && d.Frc() != nil && d.Frc().Id == f.childFrc.Id {
			contribution = &d
			break
		}
	}
	if contribution == nil {
		t.Fatal("expected the persisted results to include the child's contribution")
	}
	if *contribution.SumInUsd() != 50 {
		t.Fatalf("expected persisted contribution 150-100=50, got %v", *contribution.SumInUsd())
	}
	for _, queued := range store.queued {
		if queued {
			t.Fatal("trigger cascade results must not be re-queued")
		}
	}
}

func TestCalculateRunFailsOnlyTheFailingChange(t *testing.T) {
	f := newBoundaryFixture()
	expense := f.fact(f.childFrc, f.salaries, 100)
	revenue := f.fact(f.childFrc, f.sales, 150)
	another := f.fact(f.rootFrc, f.salaries, 10)

	store := &fakeStore{data: []reports.Data{expense, revenue}}
	queue := &fakeQueue{changes: []models.CalculationChange{
		{Change: models.DataChange{ID: 1, Status: models.ChangeStatusNew}, Data: expense},
		{Change: models.DataChange{ID: 2, Status: models.ChangeStatusNew}, Data: revenue},
		{Change: models.DataChange{ID: 3, Status: models.ChangeStatusNew}, Data: another},
	}}

	boundary := NewCalculationBoundary(nil, store, queue, []calculator.Calculator{failingCalculator{failCode: f.sales.Code}}, nil)
	if err := boundary.Calculate(context.Background(), "run-1"); err == nil {
		t.Fatal("expected the failing change to fail the run")
	}

	if len(queue.updates) != 4 {
		t.Fatalf("expected 4 status transitions, got %v", queue.updates)
	}
	first := []models.ChangeStatus{queue.updates[0].status, queue.updates[1].status}
	if queue.updates[0].changeIds[0] != 1 || first[0] != models.ChangeStatusPending || first[1] != models.ChangeStatusSuccess {
		t.Fatalf("the clean change must end SUCCESS on its own, got %v", queue.updates[:2])
	}
	second := []models.ChangeStatus{queue.updates[2].status, queue.updates[3].status}
	if queue.updates[3].changeIds[0] != 2 || second[0] != models.ChangeStatusPending || second[1] != models.ChangeStatusFailure {
		t.Fatalf("the failing change must end FAILURE on its own, got %v", queue.updates[2:])
	}
	if queue.updates[3].errorMessage == "" {
		t.Fatal("expected the failure message on the failed change")
	}
	for _, update := range queue.updates {
		for _, id := range update.changeIds {
			if id == 3 {
				t.Fatal("changes after the failure must stay NEW for the next run")
			}
		}
	}
}

func TestCalculateIterationQueuesResults(t *testing.T) {
	f := newBoundaryFixture()
	frcIds := []int{f.rootFrc.Id, f.childFrc.Id}
	afa := &reports.Index{Id: 110010, Name: "Gross revenue AFA", Code: 110010, IsActive: true, FrcIds: frcIds}

	store := &fakeStore{data: []reports.Data{f.fact(f.childFrc, afa, 10)}}
	queue := &fakeQueue{}

	iterative := calculator.NewIterativeCalculator(f.references, f.formulas)
	boundary := NewCalculationBoundary(nil, store, queue, nil, iterative)
	if err := boundary.CalculateIteration(context.Background()); err != nil {
		t.Fatalf("calculate iteration: %v", err)
	}

	if len(store.saved) == 0 {
		t.Fatal("expected iterative results to be persisted")
	}
	var grossTotal *reports.Data
	for i := range store.saved {
		d := store.saved[i]
		if d.ParameterCode() == formula.CodeGrossRevenueTotal {
			grossTotal = &d
			break
		}
	}
	if grossTotal == nil {
		t.Fatal("expected a gross revenue total among the persisted results")
	}
	if *grossTotal.SumInUsd() != 10 {
		t.Fatalf("expected gross revenue total 10, got %v", *grossTotal.SumInUsd())
	}
	for _, queued := range store.queued {
		if !queued {
			t.Fatal("iterative results must be queued for the trigger cascades")
		}
	}
}
