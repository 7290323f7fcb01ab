package dispatch

import (
	"github.com/rawblock/oblivious-band-join/internal/oblivious"
	"github.com/rawblock/oblivious-band-join/pkg/tuple"
)

// Window operators are binary and write only into the right-hand operand
// (spec §4.3b). e1 precedes e2 in the batched_linear_pass ordering.

func computeLocalSum(e1, e2 *tuple.Tuple) {
	contribution := oblivious.SelectInt64(e2.FieldType == tuple.Source, 0, e2.LocalMult)
	e2.LocalCumsum = e1.LocalCumsum + contribution
}

func computeLocalInterval(e1, e2 *tuple.Tuple) {
	cond := e1.FieldType == tuple.Start && e2.FieldType == tuple.End
	candidate := e2.LocalCumsum - e1.LocalCumsum
	e2.LocalInterval = oblivious.SelectInt64(cond, e2.LocalInterval, candidate)
}

// computeForeignSum carries local_weight forward as a running accumulator
// (START adds e2.local_mult, END subtracts it, SOURCE leaves it unchanged)
// and, at SOURCE rows, divides e2.final_mult by the weight in effect and
// accumulates into foreign_sum. The divisor is replaced by 1 whenever it
// would be zero, matching spec §4.5's "mask-replace rather than
// conditional skip" requirement; the numerator mask already zeroes the
// contribution on non-SOURCE rows, so the substitute divisor never changes
// the result, only avoids the division itself faulting.
func computeForeignSum(e1, e2 *tuple.Tuple) {
	startDelta := oblivious.SelectInt64(e2.FieldType == tuple.Start, 0, e2.LocalMult)
	endDelta := oblivious.SelectInt64(e2.FieldType == tuple.End, 0, e2.LocalMult)
	e2.LocalWeight = e1.LocalWeight + startDelta - endDelta

	safeDivisor := oblivious.SelectInt64(e2.LocalWeight == 0, e2.LocalWeight, 1)
	contribution := oblivious.SelectInt64(e2.FieldType == tuple.Source, 0, e2.FinalMult/safeDivisor)
	e2.ForeignSum = e1.ForeignSum + contribution
}

// computeForeignInterval mirrors computeLocalInterval but over foreign_sum,
// and additionally overwrites the END's own foreign_sum with the opening
// START's foreign_sum — the child's alignment offset consumed later by
// update_target_final_multiplicity.
func computeForeignInterval(e1, e2 *tuple.Tuple) {
	cond := e1.FieldType == tuple.Start && e2.FieldType == tuple.End
	candidate := e2.ForeignSum - e1.ForeignSum
	e2.ForeignInterval = oblivious.SelectInt64(cond, e2.ForeignInterval, candidate)
	e2.ForeignSum = oblivious.SelectInt64(cond, e2.ForeignSum, e1.ForeignSum)
}

func computeDstIdx(e1, e2 *tuple.Tuple) {
	e2.DstIdx = e1.DstIdx + e1.FinalMult
}

func incrementIndex(e1, e2 *tuple.Tuple) {
	e2.Index = e1.Index + 1
}

// expandCopy fills a DIST_PADDING slot with a copy of its left neighbor's
// content (index excluded — it is the slot's immutable position), bumping
// copy_index so successive copies of the same original tuple are
// distinguishable (spec §4.3b, §4.6 step 7).
func expandCopy(e1, e2 *tuple.Tuple) {
	isPad := e2.FieldType == tuple.DistPadding
	candidate := *e1
	candidate.CopyIndex = e1.CopyIndex + 1
	candidate.Index = e2.Index
	*e2 = oblivious.SelectTuple(isPad, *e2, candidate)
}

func applyWindow(kind tuple.OpKind, e1, e2 *tuple.Tuple) {
	switch kind {
	case tuple.KindComputeLocalSum:
		computeLocalSum(e1, e2)
	case tuple.KindComputeLocalInterval:
		computeLocalInterval(e1, e2)
	case tuple.KindComputeForeignSum:
		computeForeignSum(e1, e2)
	case tuple.KindComputeForeignInterval:
		computeForeignInterval(e1, e2)
	case tuple.KindComputeDstIdx:
		computeDstIdx(e1, e2)
	case tuple.KindIncrementIndex:
		incrementIndex(e1, e2)
	case tuple.KindExpandCopy:
		expandCopy(e1, e2)
	}
}

func isWindowKind(kind tuple.OpKind) bool {
	switch kind {
	case tuple.KindComputeLocalSum, tuple.KindComputeLocalInterval, tuple.KindComputeForeignSum,
		tuple.KindComputeForeignInterval, tuple.KindComputeDstIdx, tuple.KindIncrementIndex, tuple.KindExpandCopy:
		return true
	}
	return false
}
