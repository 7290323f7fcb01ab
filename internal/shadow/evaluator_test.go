package shadow

import (
	"testing"

	"github.com/rawblock/oblivious-band-join/pkg/tuple"
)

func TestCompareIdenticalMultisetsHaveNoDivergence(t *testing.T) {
	a := tuple.NewTableFromRows("a", nil, []tuple.Tuple{row(1, 0), row(2, 1), row(2, 2)})
	b := tuple.NewTableFromRows("b", nil, []tuple.Tuple{row(2, 9), row(1, 8), row(2, 7)})

	eval := NewEvaluator()
	div := eval.Compare(a, b)
	if div.Diverged() {
		t.Fatalf("expected no divergence, got %+v", div)
	}
	if div.Matched != 3 {
		t.Fatalf("expected 3 matched rows, got %d", div.Matched)
	}
	if sim := eval.JaccardSimilarity(div); sim != 1.0 {
		t.Fatalf("expected similarity 1.0, got %f", sim)
	}
}

func TestCompareReportsAsymmetricDivergence(t *testing.T) {
	oblivious := tuple.NewTableFromRows("o", nil, []tuple.Tuple{row(1, 0), row(2, 1), row(2, 2)})
	reference := tuple.NewTableFromRows("r", nil, []tuple.Tuple{row(1, 0), row(2, 1), row(3, 9)})

	eval := NewEvaluator()
	div := eval.Compare(oblivious, reference)
	if !div.Diverged() {
		t.Fatalf("expected divergence")
	}
	if div.Matched != 2 {
		t.Fatalf("expected 2 matched rows, got %d", div.Matched)
	}
	if len(div.OnlyInOblivious) != 1 || div.OnlyInOblivious[0].JoinAttr != 2 {
		t.Fatalf("expected the extra jk=2 row only in oblivious, got %+v", div.OnlyInOblivious)
	}
	if len(div.OnlyInReference) != 1 || div.OnlyInReference[0].JoinAttr != 3 {
		t.Fatalf("expected the extra jk=3 row only in reference, got %+v", div.OnlyInReference)
	}
	if sim := eval.JaccardSimilarity(div); sim <= 0 || sim >= 1 {
		t.Fatalf("expected similarity strictly between 0 and 1, got %f", sim)
	}
}

func TestCompareEmptyTablesAreFullySimilar(t *testing.T) {
	empty := tuple.NewTable("empty", nil)
	eval := NewEvaluator()
	div := eval.Compare(empty, empty)
	if div.Diverged() {
		t.Fatalf("expected no divergence for two empty tables")
	}
	if sim := eval.JaccardSimilarity(div); sim != 1.0 {
		t.Fatalf("expected similarity 1.0 for two empty tables, got %f", sim)
	}
}
