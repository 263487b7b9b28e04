package calculator

import (
	"context"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/fincalc_backend/formula"
	"bitbucket.org/mmdatafocus/fincalc_backend/reports"
)

func TestIterativeCalculatorSumsRevenueTotalsOverOpenPeriods(t *testing.T) {
	f := newFixture()
	calc := NewIterativeCalculator(f.references, f.formulas)

	frcIds := []int{f.rootFrc.Id, f.childFrc.Id}
	leafIndex := func(code int, name string) *reports.Index {
		return &reports.Index{Id: code, Name: name, Code: code, IsActive: true, FrcIds: frcIds}
	}
	afa := leafIndex(110010, "Gross revenue AFA")
	afp := leafIndex(110020, "Gross revenue AFP")
	nonCommission := leafIndex(110030, "Non-commission revenue")
	getUniq := leafIndex(110040, "GetUniq revenue")

	closedPeriod := &reports.Period{Id: 8, Name: "2025-12", IsOpen: false}
	closedFact := reports.NewData(reports.DataFields{
		Name:     afa.Name,
		DataType: f.factType,
		Period:   closedPeriod,
		Frc:      f.childFrc,
		Index:    afa,
		SumInUsd: floatPtr(999),
		Snapshot: time.Now(),
	})

	container := f.container(t, []reports.Data{
		f.fact(f.childFrc, afa, 10),
		f.fact(f.childFrc, afp, 20),
		f.fact(f.childFrc, nonCommission, 5),
		f.fact(f.childFrc, getUniq, 15),
		closedFact,
	})

	if err := calc.Calculate(context.Background(), container); err != nil {
		t.Fatalf("calculate: %v", err)
	}

	grossTotal := container.GetByData(f.probe(f.childFrc, f.indexes[formula.CodeGrossRevenueTotal]))
	if grossTotal == nil {
		t.Fatal("expected a gross revenue total for the open period")
	}
	if *grossTotal.SumInUsd() != 50 {
		t.Fatalf("expected 10+20+5+15 = 50, got %v", *grossTotal.SumInUsd())
	}

	closedProbe := reports.NewData(reports.DataFields{
		DataType: f.factType,
		Period:   closedPeriod,
		Frc:      f.childFrc,
		Index:    f.indexes[formula.CodeGrossRevenueTotal],
	})
	if container.GetByData(closedProbe) != nil {
		t.Fatal("closed periods must not be recalculated")
	}
}

func TestIterativeCalculatorChainsNetProfitWithinOneSweep(t *testing.T) {
	f := newFixture()
	calc := NewIterativeCalculator(f.references, f.formulas)

	contribution := f.fact(f.childFrc, f.indexes[formula.CodeTotalContributionTo], 100)
	container := f.container(t, []reports.Data{contribution})

	if err := calc.Calculate(context.Background(), container); err != nil {
		t.Fatalf("calculate: %v", err)
	}

	before := container.GetByData(f.probe(f.childFrc, f.indexes[formula.CodeNetProfitBeforeBonuses]))
	if before == nil {
		t.Fatal("expected a net profit before bonuses result")
	}
	if *before.SumInUsd() != 100 {
		t.Fatalf("expected net profit before bonuses 100, got %v", *before.SumInUsd())
	}

	after := container.GetByData(f.probe(f.childFrc, f.indexes[formula.CodeNetProfitAfterBonuses]))
	if after == nil {
		t.Fatal("expected a net profit after bonuses result")
	}
	if *after.SumInUsd() != 100 {
		t.Fatalf("net profit after bonuses must consume the net profit before bonuses of the same sweep, got %v", *after.SumInUsd())
	}
}

func TestIterativeCalculatorKeepsFresherExistingResults(t *testing.T) {
	f := newFixture()
	calc := NewIterativeCalculator(f.references, f.formulas)

	frcIds := []int{f.rootFrc.Id, f.childFrc.Id}
	afa := &reports.Index{Id: 110010, Name: "Gross revenue AFA", Code: 110010, IsActive: true, FrcIds: frcIds}

	fresher := reports.NewData(reports.DataFields{
		Name:     f.indexes[formula.CodeGrossRevenueTotal].Name,
		DataType: f.factType,
		Period:   f.period,
		Frc:      f.childFrc,
		Index:    f.indexes[formula.CodeGrossRevenueTotal],
		SumInUsd: floatPtr(123),
		Snapshot: time.Now().Add(time.Hour),
	})
	container := f.container(t, []reports.Data{f.fact(f.childFrc, afa, 10), fresher})

	if err := calc.Calculate(context.Background(), container); err != nil {
		t.Fatalf("calculate: %v", err)
	}

	grossTotal := container.GetByData(f.probe(f.childFrc, f.indexes[formula.CodeGrossRevenueTotal]))
	if grossTotal == nil {
		t.Fatal("expected the pre-existing gross revenue total to survive")
	}
	if *grossTotal.SumInUsd() != 123 {
		t.Fatalf("a fresher stored result must not be overwritten, got %v", *grossTotal.SumInUsd())
	}
}

func TestIterativeCalculatorSkipsUnauthorizedFrcs(t *testing.T) {
	f := newFixture()
	calc := NewIterativeCalculator(f.references, f.formulas)

	otherFrc := &reports.Frc{Id: 3, Name: "Outside", Color: reports.FrcColorGreen}
	afa := &reports.Index{Id: 110010, Name: "Gross revenue AFA", Code: 110010, IsActive: true, FrcIds: []int{otherFrc.Id}}

	container := f.container(t, []reports.Data{f.fact(otherFrc, afa, 10)})

	if err := calc.Calculate(context.Background(), container); err != nil {
		t.Fatalf("calculate: %v", err)
	}

	if result := container.GetByData(f.probe(otherFrc, f.indexes[formula.CodeGrossRevenueTotal])); result != nil {
		t.Fatal("results must not be written for FRCs outside the parameter's authorization list")
	}
}

func floatPtr(v float64) *float64 { return &v }
