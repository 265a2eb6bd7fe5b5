package util

type (
	// PathTree indexes values by hierarchical string paths. Exact paths
	// hold at most one value; prefix operations cover whole subtrees
	PathTree[T any] struct {
		root *ptNode[T]
	}

	ptNode[T any] struct {
		value    T
		children map[string]*ptNode[T]
		hasValue bool
	}
)

// NewPathTree creates a new hierarchical path index
func NewPathTree[T any]() *PathTree[T] {
	return &PathTree[T]{root: newPTNode[T]()}
}

func newPTNode[T any]() *ptNode[T] {
	return &ptNode[T]{children: map[string]*ptNode[T]{}}
}

// Insert stores a value at the exact path, replacing any previous value
func (t *PathTree[T]) Insert(path []string, v T) {
	n := t.root
	for _, p := range path {
		child, ok := n.children[p]
		if !ok {
			child = newPTNode[T]()
			n.children[p] = child
		}
		n = child
	}
	n.value = v
	n.hasValue = true
}

// Remove clears the value at the exact path, pruning emptied branches
func (t *PathTree[T]) Remove(path []string) {
	nodes := make([]*ptNode[T], 0, len(path)+1)
	n := t.root
	nodes = append(nodes, n)
	for _, p := range path {
		child, ok := n.children[p]
		if !ok {
			return
		}
		n = child
		nodes = append(nodes, n)
	}

	var zero T
	n.value = zero
	n.hasValue = false

	for i := len(path) - 1; i >= 0; i-- {
		child := nodes[i+1]
		if child.hasValue || len(child.children) > 0 {
			break
		}
		delete(nodes[i].children, path[i])
	}
}

// Detach removes a prefix subtree and returns its values
func (t *PathTree[T]) Detach(prefix []string) []T {
	if len(prefix) == 0 {
		vals := t.root.collect(nil)
		t.root = newPTNode[T]()
		return vals
	}

	n := t.root
	for _, p := range prefix[:len(prefix)-1] {
		child, ok := n.children[p]
		if !ok {
			return nil
		}
		n = child
	}
	leaf := prefix[len(prefix)-1]
	sub, ok := n.children[leaf]
	if !ok {
		return nil
	}
	delete(n.children, leaf)
	return sub.collect(nil)
}

// DetachWith removes a prefix subtree, calling fn with each detached value
func (t *PathTree[T]) DetachWith(prefix []string, fn func(T)) {
	for _, v := range t.Detach(prefix) {
		fn(v)
	}
}

func (n *ptNode[T]) collect(into []T) []T {
	if n.hasValue {
		into = append(into, n.value)
	}
	for _, child := range n.children {
		into = child.collect(into)
	}
	return into
}
