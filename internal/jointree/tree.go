// Package jointree represents the join tree the engine evaluates: a rooted,
// acyclic arena of nodes, each owning a table and a join constraint to its
// parent (spec §3, §9's "cyclic references" design note). Nodes are
// addressed by stable integer id rather than pointer, mirroring the
// teacher's arena-of-nodes pattern for its own DAG-shaped structures.
package jointree

import (
	"github.com/rawblock/oblivious-band-join/internal/joinerr"
	"github.com/rawblock/oblivious-band-join/pkg/tuple"
)

// NodeID addresses a node within a Tree. The root is always 0.
type NodeID int

const noParent NodeID = -1

// Constraint is the join predicate between a non-root node and its parent:
// for parent value v, the child's matching interval is
// [v+DeltaStart, v+DeltaEnd], each endpoint closed iff its EqualityType is
// EqEQ (spec §3).
type Constraint struct {
	DeltaStart int64
	EqStart    tuple.EqualityType
	DeltaEnd   int64
	EqEnd      tuple.EqualityType
}

type node struct {
	table      *tuple.Table
	parent     NodeID
	children   []NodeID
	constraint Constraint // to parent; zero value for the root
}

// Tree is an arena of nodes. The zero value is not usable; use New.
type Tree struct {
	nodes []node
}

// New returns an empty tree with no root yet.
func New() *Tree {
	return &Tree{}
}

// AddRoot installs table as the tree's root and returns its id (always 0).
// AddRoot must be called exactly once, before any AddChild call.
func (t *Tree) AddRoot(table *tuple.Table) (NodeID, error) {
	if len(t.nodes) != 0 {
		return 0, joinerr.New(joinerr.InvalidArgument, "jointree.AddRoot", "root already set")
	}
	t.nodes = append(t.nodes, node{table: table, parent: noParent})
	return 0, nil
}

// AddChild attaches table as a new child of parent under constraint and
// returns the new node's id.
func (t *Tree) AddChild(parent NodeID, table *tuple.Table, constraint Constraint) (NodeID, error) {
	if !t.valid(parent) {
		return 0, joinerr.New(joinerr.InvalidArgument, "jointree.AddChild", "parent id %d out of range", parent)
	}
	id := NodeID(len(t.nodes))
	t.nodes = append(t.nodes, node{table: table, parent: parent, constraint: constraint})
	t.nodes[parent].children = append(t.nodes[parent].children, id)
	return id, nil
}

func (t *Tree) valid(id NodeID) bool {
	return id >= 0 && int(id) < len(t.nodes)
}

// Root returns the root node's id, which is always 0. It does not check that
// the tree has a root; callers within this module check Len() > 0 first.
func (t *Tree) Root() NodeID { return 0 }

// Len returns the number of nodes in the tree.
func (t *Tree) Len() int { return len(t.nodes) }

// Table returns the table owned by id.
func (t *Tree) Table(id NodeID) *tuple.Table { return t.nodes[id].table }

// SetTable replaces the table owned by id — used by Phase 3, whose output
// replaces a node's table in place (spec §3's ownership/lifecycle note).
func (t *Tree) SetTable(id NodeID, table *tuple.Table) { t.nodes[id].table = table }

// Parent returns id's parent, or noParent (-1) for the root.
func (t *Tree) Parent(id NodeID) NodeID { return t.nodes[id].parent }

// Children returns id's children in insertion order.
func (t *Tree) Children(id NodeID) []NodeID { return t.nodes[id].children }

// Constraint returns id's join constraint to its parent. Meaningless for
// the root.
func (t *Tree) Constraint(id NodeID) Constraint { return t.nodes[id].constraint }

// IsLeaf reports whether id has no children.
func (t *Tree) IsLeaf(id NodeID) bool { return len(t.nodes[id].children) == 0 }

// PostOrder returns every node id in post-order (children before parent),
// the traversal Phase 1 uses (spec §4.4).
func (t *Tree) PostOrder() []NodeID {
	if len(t.nodes) == 0 {
		return nil
	}
	order := make([]NodeID, 0, len(t.nodes))
	var visit func(NodeID)
	visit = func(id NodeID) {
		for _, c := range t.nodes[id].children {
			visit(c)
		}
		order = append(order, id)
	}
	visit(t.Root())
	return order
}

// PreOrderEdges returns every (parent, child) edge in pre-order (parent
// before its children, edges of a node emitted before descending), the
// traversal Phase 2 and Phase 4 use (spec §4.5, §4.7).
func (t *Tree) PreOrderEdges() []Edge {
	if len(t.nodes) == 0 {
		return nil
	}
	var edges []Edge
	var visit func(NodeID)
	visit = func(id NodeID) {
		for _, c := range t.nodes[id].children {
			edges = append(edges, Edge{Parent: id, Child: c})
			visit(c)
		}
	}
	visit(t.Root())
	return edges
}

// Edge is a (parent, child) pair in the join tree.
type Edge struct {
	Parent NodeID
	Child  NodeID
}
