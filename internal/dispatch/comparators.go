package dispatch

import (
	"github.com/rawblock/oblivious-band-join/internal/oblivious"
	"github.com/rawblock/oblivious-band-join/pkg/tuple"
)

// Every compare* function returns a three-way sign: negative if a should
// precede b, positive if b should precede a, zero on a full tie. Callers
// wrap the result with compareAndSwap, which applies adjust_for_padding and
// then the actual conditional swap (spec §4.2/§4.3a).

func compareAndSwap(a, b *tuple.Tuple, normalSign int) {
	adjusted := oblivious.AdjustForPadding(a, b, normalSign)
	oblivious.Exchange(a, b, adjusted > 0)
}

func sign64(d int64) int { return oblivious.Sign(d) }

func compareJoinAttr(a, b *tuple.Tuple) int {
	if s := sign64(a.JoinAttr - b.JoinAttr); s != 0 {
		return s
	}
	pa := oblivious.Precedence(a.FieldType, a.EqualityType)
	pb := oblivious.Precedence(b.FieldType, b.EqualityType)
	return sign64(int64(pa - pb))
}

func boundaryRank(ft tuple.FieldType) int {
	if ft == tuple.Start || ft == tuple.End {
		return 0
	}
	return 1
}

func startEndRank(ft tuple.FieldType) int {
	if ft == tuple.Start {
		return 0
	}
	return 1
}

func comparePairwise(a, b *tuple.Tuple) int {
	if s := sign64(int64(boundaryRank(a.FieldType) - boundaryRank(b.FieldType))); s != 0 {
		return s
	}
	if s := sign64(a.OriginalIndex - b.OriginalIndex); s != 0 {
		return s
	}
	return sign64(int64(startEndRank(a.FieldType) - startEndRank(b.FieldType)))
}

func endRank(ft tuple.FieldType) int {
	if ft == tuple.End {
		return 0
	}
	return 1
}

func compareEndFirst(a, b *tuple.Tuple) int {
	if s := sign64(int64(endRank(a.FieldType) - endRank(b.FieldType))); s != 0 {
		return s
	}
	return sign64(a.OriginalIndex - b.OriginalIndex)
}

func compareJoinThenOther(a, b *tuple.Tuple) int {
	if s := sign64(a.JoinAttr - b.JoinAttr); s != 0 {
		return s
	}
	for i := 0; i < tuple.MaxAttributes; i++ {
		if s := sign64(a.Attributes[i] - b.Attributes[i]); s != 0 {
			return s
		}
	}
	return 0
}

func compareOriginalIndex(a, b *tuple.Tuple) int {
	return sign64(a.OriginalIndex - b.OriginalIndex)
}

func compareAlignmentKey(a, b *tuple.Tuple) int {
	if s := sign64(a.AlignmentKey - b.AlignmentKey); s != 0 {
		return s
	}
	if s := sign64(a.JoinAttr - b.JoinAttr); s != 0 {
		return s
	}
	return sign64(a.CopyIndex - b.CopyIndex)
}

func distPaddingRank(ft tuple.FieldType) int {
	if ft == tuple.DistPadding {
		return 1
	}
	return 0
}

func comparePaddingLast(a, b *tuple.Tuple) int {
	if s := sign64(int64(distPaddingRank(a.FieldType) - distPaddingRank(b.FieldType))); s != 0 {
		return s
	}
	return sign64(a.OriginalIndex - b.OriginalIndex)
}

// applyDistribute implements the DISTRIBUTE comparator (spec §4.3a, §4.6
// step 6, Open Question O1): swap everything except index when
// a.dst_idx >= b.index and a is not DIST_PADDING, then restore both index
// fields on both operands regardless of which way the swap went.
func applyDistribute(a, b *tuple.Tuple) {
	should := a.DstIdx >= b.Index && a.FieldType != tuple.DistPadding
	aIndex, bIndex := a.Index, b.Index
	oblivious.Exchange(a, b, should)
	a.Index, b.Index = aIndex, bIndex
}

// Compare exposes the three-way result of a comparator kind directly,
// without the padding-adjustment/conditional-swap wrapping compareAndSwap
// applies — for callers outside the batched dispatcher (the external
// sorter's merge heap, spec §4.8) that need ordering over real rows with
// no SORT_PADDING mixed in.
func Compare(kind tuple.OpKind, a, b *tuple.Tuple) int {
	switch kind {
	case tuple.KindJoinAttr:
		return compareJoinAttr(a, b)
	case tuple.KindPairwise:
		return comparePairwise(a, b)
	case tuple.KindEndFirst:
		return compareEndFirst(a, b)
	case tuple.KindJoinThenOther:
		return compareJoinThenOther(a, b)
	case tuple.KindOriginalIndex:
		return compareOriginalIndex(a, b)
	case tuple.KindAlignmentKey:
		return compareAlignmentKey(a, b)
	case tuple.KindPaddingLast:
		return comparePaddingLast(a, b)
	default:
		return 0
	}
}

func applyComparator(kind tuple.OpKind, a, b *tuple.Tuple) {
	switch kind {
	case tuple.KindJoinAttr:
		compareAndSwap(a, b, compareJoinAttr(a, b))
	case tuple.KindPairwise:
		compareAndSwap(a, b, comparePairwise(a, b))
	case tuple.KindEndFirst:
		compareAndSwap(a, b, compareEndFirst(a, b))
	case tuple.KindJoinThenOther:
		compareAndSwap(a, b, compareJoinThenOther(a, b))
	case tuple.KindOriginalIndex:
		compareAndSwap(a, b, compareOriginalIndex(a, b))
	case tuple.KindAlignmentKey:
		compareAndSwap(a, b, compareAlignmentKey(a, b))
	case tuple.KindPaddingLast:
		compareAndSwap(a, b, comparePaddingLast(a, b))
	case tuple.KindDistribute:
		applyDistribute(a, b)
	}
}

func isComparatorKind(kind tuple.OpKind) bool {
	switch kind {
	case tuple.KindJoinAttr, tuple.KindPairwise, tuple.KindEndFirst, tuple.KindJoinThenOther,
		tuple.KindOriginalIndex, tuple.KindAlignmentKey, tuple.KindPaddingLast, tuple.KindDistribute:
		return true
	}
	return false
}
