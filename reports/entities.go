package reports

import "time"

// HierarchyValue is implemented by every reference entity that can key a
// level of the hierarchical report data structure.
type HierarchyValue interface {
	ValueId() int
}

// DataType is the scenario axis of a report fact (e.g. "fact", "budget").
type DataType struct {
	Id   int
	Name string
}

func (t *DataType) ValueId() int { return t.Id }

// DataTypeFact is the data type name whose facts fold expense requests
// into total calculations.
const DataTypeFact = "fact"

// Period is a reporting period. Closed periods are excluded from the
// iterative recalculation.
type Period struct {
	Id     int
	Name   string
	Type   int
	IsOpen bool
	Start  time.Time
	End    time.Time
	AliSys float64
	AliWeb float64
}

func (p *Period) ValueId() int { return p.Id }

type FrcColor int

const (
	FrcColorUndefined FrcColor = iota
	FrcColorGreen
	FrcColorRed
)

// FrcLevelNotCalculated marks financial responsibility centers that must
// never take part in expense allocation.
const FrcLevelNotCalculated = "N"

// Frc is a financial responsibility center. Centers form two parallel
// rollup trees: green children carry revenue/contribution rollups, red
// children carry expense rollups.
type Frc struct {
	Id            int
	Name          string
	Color         FrcColor
	Level         string
	ParentId      int // 0 for root centers
	ChildGreenFrc []*Frc
	ChildRedFrc   []*Frc
}

func (f *Frc) ValueId() int { return f.Id }

func (f *Frc) IsRoot() bool { return f.ParentId == 0 }

// OriginalCurrency is a currency catalog entry facts may be denominated in
// before conversion to USD.
type OriginalCurrency struct {
	Id   int
	Name string
}

func (c *OriginalCurrency) ValueId() int { return c.Id }

// Currency binds an original currency to its budget and monthly USD rates
// for a period.
type Currency struct {
	Id               int
	Name             string
	OriginalCurrency *OriginalCurrency
	BudgetRate       float64
	MonthlyRate      float64
	Period           *Period
}

func (c *Currency) ValueId() int { return c.Id }

// ExpenseRequest is an approved expense not yet represented by a report
// fact. Totals for the "fact" data type fold these in.
type ExpenseRequest struct {
	Id                       int
	Name                     string
	Frc                      *Frc
	Item                     *Item
	Period                   *Period
	AmountWithoutTaxesUsd    *float64
	AmountInOriginalCurrency *float64
	Currency                 *Currency
}
