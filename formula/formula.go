package formula

import (
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/fincalc_backend/reports"
)

// FrcDataSet groups input facts by financial responsibility center id.
type FrcDataSet map[int][]reports.Data

// NewFrcDataSet builds a set from FRC-level nodes of a hierarchical data
// structure.
func NewFrcDataSet(frcNodes []*reports.HierarchicalDataNode) FrcDataSet {
	set := make(FrcDataSet)
	for _, node := range frcNodes {
		frc, ok := node.Value().(*reports.Frc)
		if !ok || frc == nil {
			continue
		}
		set[frc.Id] = node.DataList()
	}
	return set
}

// Formula recalculates one parameter from a prepared FRC data set. Missing
// required values contribute zero. The result fact's snapshot is the
// latest snapshot among consumed inputs, or the execution time when
// nothing was consumed.
type Formula struct {
	parameterCode int
	requiredCodes []int
	set           FrcDataSet
	dataType      *reports.DataType
	frc           *reports.Frc
	parameter     reports.Parameter
	calculate     func(frcValues map[int]map[int]float64) float64
	maxSnapshot   *time.Time
}

func (f *Formula) ParameterCode() int { return f.parameterCode }

func (f *Formula) Parameter() reports.Parameter { return f.parameter }

// Execute produces the recalculated fact. The fact carries only its type,
// FRC, parameter, value and snapshot; callers stamp name, period and
// allocation level.
func (f *Formula) Execute() (reports.Data, error) {
	if f.parameter == nil {
		return reports.Data{}, fmt.Errorf("parameter with code %d is not defined", f.parameterCode)
	}

	value := f.calculate(f.frcValues())
	snapshot := time.Now()
	if f.maxSnapshot != nil {
		snapshot = *f.maxSnapshot
	}

	result := reports.NewData(reports.DataFields{
		DataType:      f.dataType,
		Frc:           f.frc,
		SumInUsd:      &value,
		IndexItemCode: f.parameterCode,
		Snapshot:      snapshot,
	})
	return result.WithParameter(f.parameter), nil
}

// frcValues resolves every required parameter code per FRC bucket. Absent
// facts resolve to zero; consumed facts advance the max snapshot.
func (f *Formula) frcValues() map[int]map[int]float64 {
	values := make(map[int]map[int]float64, len(f.set))
	for frcId, dataList := range f.set {
		byCode := make(map[int]float64, len(f.requiredCodes))
		for _, code := range f.requiredCodes {
			byCode[code] = 0
			for _, d := range dataList {
				if d.ParameterCode() != code {
					continue
				}
				if sum := d.SumInUsd(); sum != nil {
					byCode[code] = *sum
				}
				f.noteSnapshot(d.Snapshot())
				break
			}
		}
		values[frcId] = byCode
	}
	return values
}

func (f *Formula) noteSnapshot(snapshot time.Time) {
	if f.maxSnapshot == nil || snapshot.After(*f.maxSnapshot) {
		f.maxSnapshot = &snapshot
	}
}

// restrictToFrc keeps only the given FRC's bucket of the set.
func restrictToFrc(set FrcDataSet, frc *reports.Frc) FrcDataSet {
	restricted := make(FrcDataSet)
	if frc == nil {
		return restricted
	}
	if dataList, ok := set[frc.Id]; ok {
		restricted[frc.Id] = dataList
	}
	return restricted
}

func sumCodes(frcValues map[int]map[int]float64, codes ...int) float64 {
	var sum float64
	for _, values := range frcValues {
		for _, code := range codes {
			sum += values[code]
		}
	}
	return sum
}

func sumAll(frcValues map[int]map[int]float64) float64 {
	var sum float64
	for _, values := range frcValues {
		for _, value := range values {
			sum += value
		}
	}
	return sum
}

func containsInt(list []int, value int) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
