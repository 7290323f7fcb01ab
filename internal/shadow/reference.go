// Package shadow runs a plain, non-oblivious reference join beside the
// oblivious engine and reports divergences — an always-on production
// version of testable property P6, grounded on the teacher's
// shadow_runner.go (run production and experimental side by side, log and
// persist whatever differs).
package shadow

import (
	"github.com/rawblock/oblivious-band-join/internal/jointree"
	"github.com/rawblock/oblivious-band-join/pkg/tuple"
)

func matches(parentAttr int64, c jointree.Constraint, childAttr int64) bool {
	lo := parentAttr + c.DeltaStart
	if c.EqStart == tuple.EqNEQ {
		if childAttr <= lo {
			return false
		}
	} else if childAttr < lo {
		return false
	}
	hi := parentAttr + c.DeltaEnd
	if c.EqEnd == tuple.EqNEQ {
		if childAttr >= hi {
			return false
		}
	} else if childAttr > hi {
		return false
	}
	return true
}

const unassigned = -1

// assignment[id] is the chosen row index in tree.Table(id) for one matching
// path through the tree, or unassigned for a node outside this path (never
// true once a full assignment reaches ReferenceJoin's caller).
type assignment []int

func newAssignment(n int) assignment {
	a := make(assignment, n)
	for i := range a {
		a[i] = unassigned
	}
	return a
}

// extend grows partial with node id's matching rows, recursing into
// children and taking the cartesian product across independent child
// branches the way a plain nested-loop join would (spec §8 P6's reference
// semantics: "rows in the result satisfy the join predicate between every
// ancestor/descendant pair").
func extend(tree *jointree.Tree, id jointree.NodeID, parentAttr int64, hasParent bool, partial assignment) []assignment {
	table := tree.Table(id)
	var out []assignment
	for idx := 0; idx < table.Len(); idx++ {
		row := table.At(idx)
		if hasParent && !matches(parentAttr, tree.Constraint(id), row.JoinAttr) {
			continue
		}
		next := append(assignment(nil), partial...)
		next[id] = idx

		children := tree.Children(id)
		if len(children) == 0 {
			out = append(out, next)
			continue
		}
		combined := []assignment{next}
		for _, c := range children {
			combined = mergeBranch(combined, extend(tree, c, row.JoinAttr, true, next))
		}
		out = append(out, combined...)
	}
	return out
}

// mergeBranch combines every assignment already accumulated for this row
// with every assignment one child subtree produced, overlaying whichever
// positions that child's branch newly assigned. Sibling subtrees never
// assign the same node id, so the overlay never conflicts.
func mergeBranch(combined, branch []assignment) []assignment {
	if len(branch) == 0 {
		return nil
	}
	var out []assignment
	for _, base := range combined {
		for _, choice := range branch {
			merged := append(assignment(nil), base...)
			for id, idx := range choice {
				if idx != unassigned {
					merged[id] = idx
				}
			}
			out = append(out, merged)
		}
	}
	return out
}

// materialize concatenates every node's payload along one matching
// assignment, root first in pre-order, the same attribute-overlay rule
// tuple.ConcatHorizontal uses for the oblivious engine's own Phase 4.
func materialize(tree *jointree.Tree, a assignment) (tuple.Tuple, []string, error) {
	root := tree.Root()
	rootTable := tree.Table(root)
	row := rootTable.At(a[root])
	schema := append([]string(nil), rootTable.Schema()...)

	for _, e := range tree.PreOrderEdges() {
		childTable := tree.Table(e.Child)
		left := tuple.NewTableFromRows("acc", schema, []tuple.Tuple{row})
		right := tuple.NewTableFromRows("child", childTable.Schema(), []tuple.Tuple{childTable.At(a[e.Child])})
		merged, err := tuple.ConcatHorizontal("acc", left, right)
		if err != nil {
			return tuple.Tuple{}, nil, err
		}
		row = merged.At(0)
		schema = merged.Schema()
	}
	return row, schema, nil
}

// ReferenceJoin computes tree's join result by plain nested-loop backtracking
// instead of the oblivious phase pipeline: O(product of table sizes) in the
// worst case, and every intermediate access pattern depends on the data. It
// exists purely to check the oblivious engine against, never to run over
// data that must stay confidential.
func ReferenceJoin(tree *jointree.Tree) (*tuple.Table, error) {
	if tree.Len() == 0 {
		return tuple.NewTable("reference", nil), nil
	}
	assignments := extend(tree, tree.Root(), 0, false, newAssignment(tree.Len()))

	result := tuple.NewTable("reference", nil)
	for _, a := range assignments {
		row, schema, err := materialize(tree, a)
		if err != nil {
			return nil, err
		}
		if result.Schema() == nil {
			result.RenameSchema(schema)
		}
		result.Append(row)
	}
	return result, nil
}
