package shadow

import "github.com/rawblock/oblivious-band-join/pkg/tuple"

// Evaluator compares the oblivious engine's output against the reference
// join's output as multisets of rows — P6 is a set-membership property, not
// an ordering one, since neither join guarantees the same row order.
type Evaluator struct{}

func NewEvaluator() *Evaluator { return &Evaluator{} }

// Divergence is the diff between an oblivious run and its reference run.
type Divergence struct {
	Matched         int
	OnlyInOblivious []tuple.Tuple
	OnlyInReference []tuple.Tuple
}

// Diverged reports whether the two runs disagreed at all.
func (d Divergence) Diverged() bool {
	return len(d.OnlyInOblivious) > 0 || len(d.OnlyInReference) > 0
}

type rowKey struct {
	joinAttr   int64
	attributes [tuple.MaxAttributes]int64
}

func keyOf(t tuple.Tuple) rowKey { return rowKey{joinAttr: t.JoinAttr, attributes: t.Attributes} }

func multiset(rows []tuple.Tuple) map[rowKey][]tuple.Tuple {
	m := make(map[rowKey][]tuple.Tuple, len(rows))
	for _, r := range rows {
		k := keyOf(r)
		m[k] = append(m[k], r)
	}
	return m
}

// Compare diffs oblivious and reference as multisets of (join_attr,
// attributes) rows, the portion of a joined row both engines compute
// identically (neither assigns copy_index/alignment_key the same way, so
// those fields are excluded from the comparison key).
func (e *Evaluator) Compare(oblivious, reference *tuple.Table) Divergence {
	left := multiset(oblivious.Rows())
	right := multiset(reference.Rows())

	var d Divergence
	for k, lrows := range left {
		rrows := right[k]
		common := len(lrows)
		if len(rrows) < common {
			common = len(rrows)
		}
		d.Matched += common
		if len(lrows) > common {
			d.OnlyInOblivious = append(d.OnlyInOblivious, lrows[common:]...)
		}
	}
	for k, rrows := range right {
		lrows := left[k]
		if len(rrows) > len(lrows) {
			d.OnlyInReference = append(d.OnlyInReference, rrows[len(lrows):]...)
		}
	}
	return d
}

// JaccardSimilarity returns matched / (matched + only-oblivious +
// only-reference), 1.0 when both sides are empty (trivially identical).
func (e *Evaluator) JaccardSimilarity(d Divergence) float64 {
	total := d.Matched + len(d.OnlyInOblivious) + len(d.OnlyInReference)
	if total == 0 {
		return 1.0
	}
	return float64(d.Matched) / float64(total)
}
