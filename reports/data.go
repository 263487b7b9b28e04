package reports

import "time"

// DataFields is the full field set of a report fact. Facts are immutable
// once constructed; derive modified copies through the With* methods.
type DataFields struct {
	Id                    int
	Name                  string
	DataType              *DataType
	Period                *Period
	Index                 *Index
	Item                  *Item
	Frc                   *Frc
	OriginalCurrency      *Currency
	SumInOriginalCurrency *float64
	SumInUsd              *float64
	AllocationLevel       *Item
	Comments              string
	Snapshot              time.Time
	AffiliatedFrc         *Frc
	IndexItemCode         int
	ChangeOrderNumber     *int
}

// Data is an immutable report fact.
type Data struct {
	f DataFields
}

func NewData(f DataFields) Data { return Data{f: f} }

func (d Data) Id() int                         { return d.f.Id }
func (d Data) Name() string                    { return d.f.Name }
func (d Data) DataType() *DataType             { return d.f.DataType }
func (d Data) Period() *Period                 { return d.f.Period }
func (d Data) Index() *Index                   { return d.f.Index }
func (d Data) Item() *Item                     { return d.f.Item }
func (d Data) Frc() *Frc                       { return d.f.Frc }
func (d Data) OriginalCurrency() *Currency     { return d.f.OriginalCurrency }
func (d Data) SumInOriginalCurrency() *float64 { return d.f.SumInOriginalCurrency }
func (d Data) SumInUsd() *float64              { return d.f.SumInUsd }
func (d Data) AllocationLevel() *Item          { return d.f.AllocationLevel }
func (d Data) Comments() string                { return d.f.Comments }
func (d Data) Snapshot() time.Time             { return d.f.Snapshot }
func (d Data) AffiliatedFrc() *Frc             { return d.f.AffiliatedFrc }
func (d Data) IndexItemCode() int              { return d.f.IndexItemCode }
func (d Data) ChangeOrderNumber() *int         { return d.f.ChangeOrderNumber }

// Parameter returns the fact's index or item, or nil for parameterless
// facts (raw imports that never survive structure building).
func (d Data) Parameter() Parameter {
	if d.f.Index != nil {
		return d.f.Index
	}
	if d.f.Item != nil {
		return d.f.Item
	}
	return nil
}

func (d Data) ParameterCode() int {
	p := d.Parameter()
	if p == nil {
		return 0
	}
	return p.ParameterCode()
}

func (d Data) WithId(id int) Data {
	d.f.Id = id
	return d
}

func (d Data) WithName(name string) Data {
	d.f.Name = name
	return d
}

func (d Data) WithDataType(dataType *DataType) Data {
	d.f.DataType = dataType
	return d
}

func (d Data) WithPeriod(period *Period) Data {
	d.f.Period = period
	return d
}

func (d Data) WithFrc(frc *Frc) Data {
	d.f.Frc = frc
	return d
}

// WithParameter sets the fact's index or item, clearing the other side.
func (d Data) WithParameter(p Parameter) Data {
	d.f.Index = nil
	d.f.Item = nil
	switch v := p.(type) {
	case *Index:
		d.f.Index = v
	case *Item:
		d.f.Item = v
	}
	return d
}

func (d Data) WithOriginalCurrency(currency *Currency) Data {
	d.f.OriginalCurrency = currency
	return d
}

func (d Data) WithSumInOriginalCurrency(sum *float64) Data {
	d.f.SumInOriginalCurrency = sum
	return d
}

func (d Data) WithSumInUsd(sum *float64) Data {
	d.f.SumInUsd = sum
	return d
}

func (d Data) WithAllocationLevel(level *Item) Data {
	d.f.AllocationLevel = level
	return d
}

func (d Data) WithComments(comments string) Data {
	d.f.Comments = comments
	return d
}

func (d Data) WithSnapshot(snapshot time.Time) Data {
	d.f.Snapshot = snapshot
	return d
}

func (d Data) WithAffiliatedFrc(frc *Frc) Data {
	d.f.AffiliatedFrc = frc
	return d
}

func (d Data) WithIndexItemCode(code int) Data {
	d.f.IndexItemCode = code
	return d
}

func (d Data) WithChangeOrderNumber(number *int) Data {
	d.f.ChangeOrderNumber = number
	return d
}

// DimensionValue returns the fact's value on a hierarchy dimension. A nil
// interface is returned for unset dimensions so callers can key them as 0.
func (d Data) DimensionValue(dim Dimension) HierarchyValue {
	switch dim {
	case DimensionDataType:
		if d.f.DataType == nil {
			return nil
		}
		return d.f.DataType
	case DimensionPeriod:
		if d.f.Period == nil {
			return nil
		}
		return d.f.Period
	case DimensionAllocationLevel:
		if d.f.AllocationLevel == nil {
			return nil
		}
		return d.f.AllocationLevel
	case DimensionAffiliatedFrc:
		if d.f.AffiliatedFrc == nil {
			return nil
		}
		return d.f.AffiliatedFrc
	case DimensionFrc:
		if d.f.Frc == nil {
			return nil
		}
		return d.f.Frc
	}
	return nil
}

func (d Data) DimensionKey(dim Dimension) int {
	v := d.DimensionValue(dim)
	if v == nil {
		return 0
	}
	return v.ValueId()
}
