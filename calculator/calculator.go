package calculator

import (
	"context"

	"bitbucket.org/mmdatafocus/fincalc_backend/reports"
)

// References is the read-mostly reference catalog the calculators consume:
// the FRC tree, the allocation level items and the approved expense
// requests. Lookups of absent records return utils.ErrorRecordNotFound.
type References interface {
	ParentFrc(ctx context.Context, frc *reports.Frc) (*reports.Frc, error)
	AllocationLevelList(ctx context.Context) (map[reports.AllocationLevel]*reports.Item, error)
	ExpenseRequestList(ctx context.Context, period *reports.Period) ([]*reports.ExpenseRequest, error)
}

// Calculator recalculates derived report facts affected by one changed
// fact, recording every result through the container.
type Calculator interface {
	Calculate(ctx context.Context, container *reports.DataContainer, data reports.Data) error
}

// frcNodes descends a filtered data structure to the level above the FRC
// grouping, following the front branch, and returns the FRC nodes.
func frcNodes(node *reports.HierarchicalDataNode, config reports.DataHierarchyConfig) []*reports.HierarchicalDataNode {
	target := config.Depth() - 1
	for node != nil {
		if node.Level() != target {
			node = node.FirstNode()
			continue
		}
		return node.Nodes()
	}
	return nil
}

func sameDataType(a, b *reports.DataType) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Id == b.Id
}

func samePeriod(a, b *reports.Period) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Id == b.Id
}

func sameItem(a, b *reports.Item) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Id == b.Id
}

func sameFrc(a, b *reports.Frc) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Id == b.Id
}

func containsFrc(list []*reports.Frc, frc *reports.Frc) bool {
	if frc == nil {
		return false
	}
	for _, f := range list {
		if f.Id == frc.Id {
			return true
		}
	}
	return false
}

func containsInt(list []int, value int) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
