package treesync

import (
	"github.com/EclipseFox25/ANDnXOR-DC33-Badge-Tool/lfs"
)

// Node is one filesystem entry. Size is set for files only; Children holds
// the child paths of a directory in name order.
type Node struct {
	Path     string
	Kind     lfs.Kind
	Size     int64
	Children []string
}

// IsDir reports whether the node is a directory.
func (n *Node) IsDir() bool { return n.Kind == lfs.KindDir }

// Tree is an immutable snapshot of the filesystem taken by Rebuild.
type Tree struct {
	nodes map[string]*Node
}

func newTree() *Tree {
	return &Tree{
		nodes: map[string]*Node{"/": {Path: "/", Kind: lfs.KindDir}},
	}
}

// Root returns the "/" node.
func (t *Tree) Root() *Node { return t.nodes["/"] }

// Node returns the node at p, or nil.
func (t *Tree) Node(p string) *Node { return t.nodes[lfs.Clean(p)] }

// Len returns the number of entries below the root.
func (t *Tree) Len() int { return len(t.nodes) - 1 }

// TotalSize sums the sizes of all files.
func (t *Tree) TotalSize() int64 {
	var total int64
	for _, n := range t.nodes {
		total += n.Size
	}
	return total
}

// Walk visits every entry below the root depth first, in display order.
// Top-level entries have depth 0. A non-nil error from fn stops the walk.
func (t *Tree) Walk(fn func(n *Node, depth int) error) error {
	return t.walk(t.Root(), 0, fn)
}

func (t *Tree) walk(dir *Node, depth int, fn func(*Node, int) error) error {
	for _, child := range dir.Children {
		n := t.nodes[child]
		if err := fn(n, depth); err != nil {
			return err
		}
		if n.IsDir() {
			if err := t.walk(n, depth+1, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// Paths returns every entry path in walk order.
func (t *Tree) Paths() []string {
	paths := make([]string, 0, t.Len())
	_ = t.Walk(func(n *Node, _ int) error {
		paths = append(paths, n.Path)
		return nil
	})
	return paths
}
