package reports

import "sort"

// DataContainer owns a hierarchical data structure and tracks every fact
// changed through it since the last reset, in change order.
type DataContainer struct {
	root        *HierarchicalDataNode
	config      DataHierarchyConfig
	changeCount int
}

func NewDataContainer(root *HierarchicalDataNode, config DataHierarchyConfig) *DataContainer {
	if root == nil {
		root = NewHierarchicalDataNode(nil, 0)
	}
	return &DataContainer{root: root, config: config, changeCount: 1}
}

func (c *DataContainer) DataNode() *HierarchicalDataNode { return c.root }

func (c *DataContainer) HierarchyConfig() DataHierarchyConfig { return c.config }

// GetByData returns the stored fact at the given fact's hierarchy position,
// or nil when no branch or leaf exists for it.
func (c *DataContainer) GetByData(d Data) *Data {
	node := c.root
	for _, dim := range c.config.Dimensions() {
		node = node.Node(d.DimensionKey(dim))
		if node == nil {
			return nil
		}
	}
	found, ok := node.DataByKey(d.ParameterCode())
	if !ok {
		return nil
	}
	return &found
}

// Change stamps the fact with the next change order number and stores it,
// creating missing branches. The touched branch moves to the front at
// every level. The stamped fact is returned.
func (c *DataContainer) Change(d Data) Data {
	order := c.changeCount
	d = d.WithChangeOrderNumber(&order)

	node := c.root
	for level, dim := range c.config.Dimensions() {
		key := d.DimensionKey(dim)
		child := node.Node(key)
		if child == nil {
			child = NewHierarchicalDataNode(d.DimensionValue(dim), level+1)
		}
		node.SetNode(key, child)
		node = child
	}
	node.SetData(d.ParameterCode(), d)

	c.changeCount++
	return d
}

// ChangedDataMap returns every stored fact carrying a change order number,
// ascending by that number.
func (c *DataContainer) ChangedDataMap() []Data {
	var changed []Data
	walkData(c.root, func(d Data) {
		if d.ChangeOrderNumber() != nil {
			changed = append(changed, d)
		}
	})
	sort.Slice(changed, func(i, j int) bool {
		return *changed[i].ChangeOrderNumber() < *changed[j].ChangeOrderNumber()
	})
	return changed
}

// Reset clears all change order numbers and restarts the change counter.
func (c *DataContainer) Reset() {
	resetNode(c.root)
	c.changeCount = 1
}

func resetNode(n *HierarchicalDataNode) {
	for _, key := range n.Keys() {
		if child := n.Node(key); child != nil {
			resetNode(child)
		} else if d, ok := n.DataByKey(key); ok && d.ChangeOrderNumber() != nil {
			n.data[key] = d.WithChangeOrderNumber(nil)
		}
	}
}

// Filter copies the subtree under node keeping only facts the predicate
// accepts, pruning branches left empty. Surviving nodes are re-keyed by
// their own value id. Returns nil when nothing survives.
func (c *DataContainer) Filter(node *HierarchicalDataNode, keep func(Data) bool) *HierarchicalDataNode {
	result := NewHierarchicalDataNode(node.Value(), node.Level())
	for _, key := range node.Keys() {
		if child := node.Node(key); child != nil {
			filtered := c.Filter(child, keep)
			if filtered == nil {
				continue
			}
			result.appendNode(nodeKey(filtered.Value()), filtered)
		} else if d, ok := node.DataByKey(key); ok && keep(d) {
			result.appendData(d.ParameterCode(), d)
		}
	}
	if result.Empty() {
		return nil
	}
	return result
}

// ChangeHierarchyConfig regroups all stored facts under a new hierarchy
// config.
func (c *DataContainer) ChangeHierarchyConfig(config DataHierarchyConfig) error {
	var flat []Data
	walkData(c.root, func(d Data) { flat = append(flat, d) })

	root, err := NewDataStructureBuilder(config).SetDataList(flat).Build()
	if err != nil {
		return err
	}
	c.root = root
	c.config = config
	return nil
}

func walkData(n *HierarchicalDataNode, visit func(Data)) {
	for _, key := range n.Keys() {
		if child := n.Node(key); child != nil {
			walkData(child, visit)
		} else if d, ok := n.DataByKey(key); ok {
			visit(d)
		}
	}
}

func nodeKey(v HierarchyValue) int {
	if v == nil {
		return 0
	}
	return v.ValueId()
}
