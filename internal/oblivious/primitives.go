// Package oblivious implements the branchless primitives the join engine's
// phases are built from (spec §4.2): conditional select/swap, compare-and-
// swap with padding tie-breaking, a bitonic sorting network, an oblivious
// compactor, and an oblivious shuffle. Every primitive's sequence of memory
// accesses is a function of input sizes only — never of tuple contents.
package oblivious

import "github.com/rawblock/oblivious-band-join/pkg/tuple"

// SelectInt64 returns b when cond is true, a otherwise, computed without a
// data-dependent branch: (a &^ mask) | (b & mask) with mask = -(cond).
func SelectInt64(cond bool, a, b int64) int64 {
	mask := int64(0)
	if cond {
		mask = -1
	}
	return (a &^ mask) | (b & mask)
}

// SelectUint8 is SelectInt64's byte-wide counterpart, used by the tuple
// swap below.
func SelectUint8(cond bool, a, b uint8) uint8 {
	mask := uint8(0)
	if cond {
		mask = 0xFF
	}
	return (a &^ mask) | (b & mask)
}

// Sign returns -1, 0 or +1 for a negative, zero or positive value — the
// same three-way arithmetic sign spec.md's comparators reduce every
// comparison to.
func Sign(v int64) int {
	if v > 0 {
		return 1
	}
	if v < 0 {
		return -1
	}
	return 0
}

// ConditionalSwap swaps *a and *b when cond is true. It touches every field
// of both operands regardless of cond — the access pattern never depends on
// the condition, only the execution of this call itself does (spec §4.2).
func ConditionalSwap(a, b *tuple.Tuple, cond bool) {
	maskBool := uint8(0)
	if cond {
		maskBool = 1
	}
	*a, *b = swapFields(*a, *b, maskBool)
}

// swapFields performs the xor-swap the reference implementation uses,
// field by field, so that every byte of both tuples is touched whether or
// not mask selects the swap.
func swapFields(a, b tuple.Tuple, mask uint8) (tuple.Tuple, tuple.Tuple) {
	m := int64(0)
	if mask != 0 {
		m = -1
	}
	xorSwap := func(x, y int64) (int64, int64) {
		diff := (x ^ y) & m
		return x ^ diff, y ^ diff
	}

	a.JoinAttr, b.JoinAttr = xorSwap(a.JoinAttr, b.JoinAttr)
	a.OriginalIndex, b.OriginalIndex = xorSwap(a.OriginalIndex, b.OriginalIndex)
	a.LocalMult, b.LocalMult = xorSwap(a.LocalMult, b.LocalMult)
	a.FinalMult, b.FinalMult = xorSwap(a.FinalMult, b.FinalMult)
	a.ForeignSum, b.ForeignSum = xorSwap(a.ForeignSum, b.ForeignSum)
	a.LocalCumsum, b.LocalCumsum = xorSwap(a.LocalCumsum, b.LocalCumsum)
	a.LocalInterval, b.LocalInterval = xorSwap(a.LocalInterval, b.LocalInterval)
	a.ForeignInterval, b.ForeignInterval = xorSwap(a.ForeignInterval, b.ForeignInterval)
	a.LocalWeight, b.LocalWeight = xorSwap(a.LocalWeight, b.LocalWeight)
	a.CopyIndex, b.CopyIndex = xorSwap(a.CopyIndex, b.CopyIndex)
	a.AlignmentKey, b.AlignmentKey = xorSwap(a.AlignmentKey, b.AlignmentKey)
	a.DstIdx, b.DstIdx = xorSwap(a.DstIdx, b.DstIdx)
	a.Index, b.Index = xorSwap(a.Index, b.Index)
	for i := range a.Attributes {
		a.Attributes[i], b.Attributes[i] = xorSwap(a.Attributes[i], b.Attributes[i])
	}

	ft := SelectUint8(mask != 0, uint8(a.FieldType), uint8(b.FieldType))
	ft2 := SelectUint8(mask != 0, uint8(b.FieldType), uint8(a.FieldType))
	a.FieldType, b.FieldType = tuple.FieldType(ft), tuple.FieldType(ft2)

	eq := SelectUint8(mask != 0, uint8(a.EqualityType), uint8(b.EqualityType))
	eq2 := SelectUint8(mask != 0, uint8(b.EqualityType), uint8(a.EqualityType))
	a.EqualityType, b.EqualityType = tuple.EqualityType(eq), tuple.EqualityType(eq2)

	nonceSwap := func(x, y uint64) (uint64, uint64) {
		var mm uint64
		if mask != 0 {
			mm = ^uint64(0)
		}
		diff := (x ^ y) & mm
		return x ^ diff, y ^ diff
	}
	a.Nonce, b.Nonce = nonceSwap(a.Nonce, b.Nonce)

	encSwap := a.IsEncrypted
	a.IsEncrypted = SelectBool(mask != 0, a.IsEncrypted, b.IsEncrypted)
	b.IsEncrypted = SelectBool(mask != 0, b.IsEncrypted, encSwap)

	return a, b
}

// SelectBool is SelectInt64's boolean counterpart.
func SelectBool(cond bool, a, b bool) bool {
	if cond {
		return b
	}
	return a
}

// AdjustForPadding forces SORT_PADDING entries to the larger side of a
// compare-and-swap regardless of what the underlying comparator computed,
// per spec §4.2's tie-breaking rule. normalSign is the comparator's result
// when neither operand is padding.
func AdjustForPadding(a, b *tuple.Tuple, normalSign int) int {
	aPad := a.FieldType == tuple.SortPadding
	bPad := b.FieldType == tuple.SortPadding
	switch {
	case aPad && bPad:
		return 0
	case aPad && !bPad:
		return 1
	case !aPad && bPad:
		return -1
	default:
		return normalSign
	}
}

// Precedence implements Algorithm 513's entry-type precedence used by the
// JOIN_ATTR comparator's tie-break: (END,NEQ) = (START,EQ) = 1 < SOURCE = 2
// < (END,EQ) = (START,NEQ) = 3.
func Precedence(ft tuple.FieldType, eq tuple.EqualityType) int {
	startEQ := ft == tuple.Start && eq == tuple.EqEQ
	endNEQ := ft == tuple.End && eq == tuple.EqNEQ
	source := ft == tuple.Source
	startNEQ := ft == tuple.Start && eq == tuple.EqNEQ
	endEQ := ft == tuple.End && eq == tuple.EqEQ

	switch {
	case startEQ || endNEQ:
		return 1
	case source:
		return 2
	case startNEQ || endEQ:
		return 3
	default:
		return 2
	}
}

// SelectTuple returns b's field values when cond is true, a's otherwise,
// computed field-by-field with SelectInt64/SelectUint8/SelectBool rather
// than a single struct-level branch, so the dispatcher's window operators
// (expand_copy in particular) can pick one of two candidate rows without
// introducing a data-dependent branch of their own.
func SelectTuple(cond bool, a, b tuple.Tuple) tuple.Tuple {
	var out tuple.Tuple
	out.JoinAttr = SelectInt64(cond, a.JoinAttr, b.JoinAttr)
	out.OriginalIndex = SelectInt64(cond, a.OriginalIndex, b.OriginalIndex)
	out.LocalMult = SelectInt64(cond, a.LocalMult, b.LocalMult)
	out.FinalMult = SelectInt64(cond, a.FinalMult, b.FinalMult)
	out.ForeignSum = SelectInt64(cond, a.ForeignSum, b.ForeignSum)
	out.LocalCumsum = SelectInt64(cond, a.LocalCumsum, b.LocalCumsum)
	out.LocalInterval = SelectInt64(cond, a.LocalInterval, b.LocalInterval)
	out.ForeignInterval = SelectInt64(cond, a.ForeignInterval, b.ForeignInterval)
	out.LocalWeight = SelectInt64(cond, a.LocalWeight, b.LocalWeight)
	out.CopyIndex = SelectInt64(cond, a.CopyIndex, b.CopyIndex)
	out.AlignmentKey = SelectInt64(cond, a.AlignmentKey, b.AlignmentKey)
	out.DstIdx = SelectInt64(cond, a.DstIdx, b.DstIdx)
	out.Index = SelectInt64(cond, a.Index, b.Index)
	for i := range out.Attributes {
		out.Attributes[i] = SelectInt64(cond, a.Attributes[i], b.Attributes[i])
	}
	out.FieldType = tuple.FieldType(SelectUint8(cond, uint8(a.FieldType), uint8(b.FieldType)))
	out.EqualityType = tuple.EqualityType(SelectUint8(cond, uint8(a.EqualityType), uint8(b.EqualityType)))
	out.IsEncrypted = SelectBool(cond, a.IsEncrypted, b.IsEncrypted)
	var mask uint64
	if cond {
		mask = ^uint64(0)
	}
	out.Nonce = (a.Nonce &^ mask) | (b.Nonce & mask)
	return out
}

// Exchange performs the compare-and-swap of a and b, routing through the
// hardware offload hook when one is registered (see accel_cpu.go /
// accel_cuda.go) and falling back to ConditionalSwap otherwise.
func Exchange(a, b *tuple.Tuple, shouldSwap bool) {
	if hardwareExchange != nil {
		hardwareExchange(a, b, shouldSwap)
		return
	}
	ConditionalSwap(a, b, shouldSwap)
}
