package reports

import (
	"errors"
	"sort"
)

var ErrorDataListNotSet = errors.New("data list is not set")

// DataStructureBuilder groups a flat fact list into a hierarchical data
// structure following a hierarchy config. At the deepest level, facts with
// the same parameter are collapsed to the one with the latest snapshot, so
// rebuilding over snapshot-versioned storage is idempotent. Facts without
// a parameter are dropped.
type DataStructureBuilder struct {
	config   DataHierarchyConfig
	dataList []Data
	hasData  bool
}

func NewDataStructureBuilder(config DataHierarchyConfig) *DataStructureBuilder {
	return &DataStructureBuilder{config: config}
}

func (b *DataStructureBuilder) SetDataList(dataList []Data) *DataStructureBuilder {
	b.dataList = dataList
	b.hasData = true
	return b
}

func (b *DataStructureBuilder) Build() (*HierarchicalDataNode, error) {
	if !b.hasData {
		return nil, ErrorDataListNotSet
	}
	root := NewHierarchicalDataNode(nil, 0)
	b.buildLevel(root, b.dataList)
	return root, nil
}

func (b *DataStructureBuilder) buildLevel(node *HierarchicalDataNode, dataList []Data) {
	level := node.Level()
	if level == b.config.Depth() {
		for _, d := range actualDataList(dataList) {
			node.appendData(d.ParameterCode(), d)
		}
		return
	}

	dim := b.config.Dimension(level)
	groups := make(map[int][]Data)
	var order []int
	for _, d := range dataList {
		key := d.DimensionKey(dim)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], d)
	}

	for _, key := range order {
		group := groups[key]
		child := NewHierarchicalDataNode(group[0].DimensionValue(dim), level+1)
		node.appendNode(key, child)
		b.buildLevel(child, group)
	}
}

// actualDataList keeps the latest-snapshot fact per parameter code and
// drops parameterless facts.
func actualDataList(dataList []Data) []Data {
	sorted := make([]Data, len(dataList))
	copy(sorted, dataList)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Snapshot().After(sorted[j].Snapshot())
	})

	seen := make(map[int]bool)
	var actual []Data
	for _, d := range sorted {
		if d.Parameter() == nil {
			continue
		}
		code := d.ParameterCode()
		if seen[code] {
			continue
		}
		seen[code] = true
		actual = append(actual, d)
	}
	return actual
}
