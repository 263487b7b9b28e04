package reports

// HierarchicalDataNode is one level of the grouped report data structure.
// Interior nodes hold child nodes keyed by the id of the child's dimension
// value (0 for an unset dimension); the deepest nodes hold facts keyed by
// parameter code. Child order is significant: a freshly changed branch is
// moved to the front so traversals see the most recent branch first.
type HierarchicalDataNode struct {
	value HierarchyValue
	level int
	keys  []int
	nodes map[int]*HierarchicalDataNode
	data  map[int]Data
}

func NewHierarchicalDataNode(value HierarchyValue, level int) *HierarchicalDataNode {
	return &HierarchicalDataNode{value: value, level: level}
}

func (n *HierarchicalDataNode) Value() HierarchyValue { return n.value }

func (n *HierarchicalDataNode) Level() int { return n.level }

func (n *HierarchicalDataNode) Empty() bool { return len(n.keys) == 0 }

// Keys returns the child keys in iteration order. Callers must not mutate
// the returned slice.
func (n *HierarchicalDataNode) Keys() []int { return n.keys }

func (n *HierarchicalDataNode) Node(key int) *HierarchicalDataNode {
	if n.nodes == nil {
		return nil
	}
	return n.nodes[key]
}

// Nodes returns the child nodes in iteration order.
func (n *HierarchicalDataNode) Nodes() []*HierarchicalDataNode {
	if n.nodes == nil {
		return nil
	}
	nodes := make([]*HierarchicalDataNode, 0, len(n.keys))
	for _, key := range n.keys {
		if child, ok := n.nodes[key]; ok {
			nodes = append(nodes, child)
		}
	}
	return nodes
}

// FirstNode returns the front child node, or nil for empty or leaf nodes.
func (n *HierarchicalDataNode) FirstNode() *HierarchicalDataNode {
	if n.nodes == nil || len(n.keys) == 0 {
		return nil
	}
	return n.nodes[n.keys[0]]
}

// SetNode inserts or replaces a child node and moves its key to the front.
func (n *HierarchicalDataNode) SetNode(key int, child *HierarchicalDataNode) {
	if n.nodes == nil {
		n.nodes = make(map[int]*HierarchicalDataNode)
	}
	if _, ok := n.nodes[key]; ok {
		n.removeKey(key)
	}
	n.keys = append([]int{key}, n.keys...)
	n.nodes[key] = child
}

// appendNode inserts a child node at the back, preserving build order.
func (n *HierarchicalDataNode) appendNode(key int, child *HierarchicalDataNode) {
	if n.nodes == nil {
		n.nodes = make(map[int]*HierarchicalDataNode)
	}
	if _, ok := n.nodes[key]; !ok {
		n.keys = append(n.keys, key)
	}
	n.nodes[key] = child
}

func (n *HierarchicalDataNode) DataByKey(key int) (Data, bool) {
	if n.data == nil {
		return Data{}, false
	}
	d, ok := n.data[key]
	return d, ok
}

// DataList returns the node's facts in iteration order.
func (n *HierarchicalDataNode) DataList() []Data {
	if n.data == nil {
		return nil
	}
	list := make([]Data, 0, len(n.keys))
	for _, key := range n.keys {
		if d, ok := n.data[key]; ok {
			list = append(list, d)
		}
	}
	return list
}

// SetData inserts or replaces a fact and moves its key to the front.
func (n *HierarchicalDataNode) SetData(key int, d Data) {
	if n.data == nil {
		n.data = make(map[int]Data)
	}
	if _, ok := n.data[key]; ok {
		n.removeKey(key)
	}
	n.keys = append([]int{key}, n.keys...)
	n.data[key] = d
}

// appendData inserts a fact at the back, preserving build order.
func (n *HierarchicalDataNode) appendData(key int, d Data) {
	if n.data == nil {
		n.data = make(map[int]Data)
	}
	if _, ok := n.data[key]; !ok {
		n.keys = append(n.keys, key)
	}
	n.data[key] = d
}

func (n *HierarchicalDataNode) removeKey(key int) {
	for i, k := range n.keys {
		if k == key {
			n.keys = append(n.keys[:i], n.keys[i+1:]...)
			return
		}
	}
}
