package reports

// Dimension is one grouping axis of the hierarchical data structure.
type Dimension int

const (
	DimensionDataType Dimension = iota
	DimensionPeriod
	DimensionAllocationLevel
	DimensionAffiliatedFrc
	DimensionFrc
)

// DataHierarchyConfig is the ordered list of dimensions a data container
// groups facts by. The final level below the last dimension always holds
// the facts themselves, keyed by parameter code.
type DataHierarchyConfig struct {
	dimensions []Dimension
}

func NewDataHierarchyConfig(dimensions []Dimension) DataHierarchyConfig {
	return DataHierarchyConfig{dimensions: dimensions}
}

// DefaultDataHierarchyConfig is the grouping used by the change-driven
// calculators.
func DefaultDataHierarchyConfig() DataHierarchyConfig {
	return NewDataHierarchyConfig([]Dimension{
		DimensionDataType,
		DimensionPeriod,
		DimensionAllocationLevel,
		DimensionAffiliatedFrc,
		DimensionFrc,
	})
}

// IterativeDataHierarchyConfig is the flat grouping used by the iterative
// recalculation, where allocation annotations are already filtered out.
func IterativeDataHierarchyConfig() DataHierarchyConfig {
	return NewDataHierarchyConfig([]Dimension{
		DimensionDataType,
		DimensionPeriod,
		DimensionFrc,
	})
}

func (c DataHierarchyConfig) Dimensions() []Dimension { return c.dimensions }

func (c DataHierarchyConfig) Depth() int { return len(c.dimensions) }

func (c DataHierarchyConfig) Dimension(level int) Dimension { return c.dimensions[level] }
