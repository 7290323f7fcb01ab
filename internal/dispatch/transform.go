package dispatch

import (
	"github.com/rawblock/oblivious-band-join/internal/joinerr"
	"github.com/rawblock/oblivious-band-join/internal/oblivious"
	"github.com/rawblock/oblivious-band-join/pkg/tuple"
)

func toBoundary(t *tuple.Tuple, delta int64, eq tuple.EqualityType, ft tuple.FieldType) error {
	if !tuple.InDomain(t.JoinAttr) {
		return joinerr.New(joinerr.InvariantViolated, "to_boundary", "join_attr %d already in sentinel neighborhood", t.JoinAttr)
	}
	next := t.JoinAttr + delta
	if next <= tuple.SentinelNegInf || next >= tuple.SentinelPosInf {
		return joinerr.New(joinerr.InvariantViolated, "to_boundary", "deviation %d would drift join_attr %d into sentinel neighborhood", delta, t.JoinAttr)
	}
	t.JoinAttr = next
	t.EqualityType = eq
	t.FieldType = ft
	return nil
}

func markZeroMultPadding(t *tuple.Tuple) {
	cond := t.FinalMult == 0
	t.FieldType = tuple.FieldType(oblivious.SelectUint8(cond, uint8(t.FieldType), uint8(tuple.DistPadding)))
}

// computeAlignmentKey sets alignment_key := foreign_sum + (copy_index /
// local_mult), integer division (spec §4.7 step 2): copies 0..local_mult-1
// of a child tuple all point at the same parent group (foreign_sum), the
// next local_mult copies at the following group, and so on. local_mult is
// mask-replaced to 1 when zero rather than skipped, per spec §4.5's
// mask-replace-not-skip rule for every division in the core.
func computeAlignmentKey(t *tuple.Tuple) {
	safeDivisor := oblivious.SelectInt64(t.LocalMult == 0, t.LocalMult, 1)
	t.AlignmentKey = t.ForeignSum + t.CopyIndex/safeDivisor
}

// applyTransform executes a unary operator against tuples[op.I]. params[0]
// carries the boundary deviation for to_start/to_end, params[1] the
// EqualityType to record.
func applyTransform(kind tuple.OpKind, t *tuple.Tuple, params [2]int32) error {
	switch kind {
	case tuple.KindZeroMetadata:
		t.ZeroMetadata()
	case tuple.KindMarkSortPadding:
		t.FieldType = tuple.SortPadding
	case tuple.KindMarkDistPadding:
		t.FieldType = tuple.DistPadding
	case tuple.KindMarkZeroMultPadding:
		markZeroMultPadding(t)
	case tuple.KindSetLocalMultOne:
		t.LocalMult = 1
	case tuple.KindToStart:
		return toBoundary(t, int64(params[0]), tuple.EqualityType(params[1]), tuple.Start)
	case tuple.KindToEnd:
		return toBoundary(t, int64(params[0]), tuple.EqualityType(params[1]), tuple.End)
	case tuple.KindInitDstIdx:
		t.DstIdx = 0
	case tuple.KindInitIndex:
		t.Index = 0
	case tuple.KindInitFinalMultFromLocal:
		t.FinalMult = t.LocalMult
	case tuple.KindComputeAlignmentKey:
		computeAlignmentKey(t)
	}
	return nil
}

func isTransformKind(kind tuple.OpKind) bool {
	switch kind {
	case tuple.KindZeroMetadata, tuple.KindMarkSortPadding, tuple.KindMarkDistPadding, tuple.KindMarkZeroMultPadding,
		tuple.KindSetLocalMultOne, tuple.KindToStart, tuple.KindToEnd, tuple.KindInitDstIdx, tuple.KindInitIndex,
		tuple.KindInitFinalMultFromLocal, tuple.KindComputeAlignmentKey:
		return true
	}
	return false
}
