package dispatch

import (
	"github.com/rawblock/oblivious-band-join/internal/oblivious"
	"github.com/rawblock/oblivious-band-join/pkg/tuple"
)

// BatchedMap applies a unary operator to every row of t in one dispatcher
// call (spec §4.1's batched_map). params is applied identically to every
// row; callers needing per-row params build the Op slice directly and call
// d.Dispatch.
func BatchedMap(d *Dispatcher, t *tuple.Table, kind tuple.OpKind, params [2]int32) error {
	rows := t.Rows()
	ops := make([]tuple.Op, len(rows))
	for i := range rows {
		ops[i] = tuple.Op{I: uint32(i), J: tuple.NoJ, Params: params}
	}
	return d.Dispatch(rows, ops, kind)
}

// BatchedLinearPass applies a binary operator to every adjacent pair
// (t[i], t[i+1]), left to right, in one dispatcher call (spec §4.1's
// batched_linear_pass). Window operators rely on each pair seeing the
// previous pair's write, which holds here because the dispatcher applies
// ops from a single array in order and every op after the first reads a
// field written by the op before it.
func BatchedLinearPass(d *Dispatcher, t *tuple.Table, kind tuple.OpKind) error {
	rows := t.Rows()
	if len(rows) < 2 {
		return d.Dispatch(rows, nil, kind)
	}
	ops := make([]tuple.Op, len(rows)-1)
	for i := 0; i < len(rows)-1; i++ {
		ops[i] = tuple.Op{I: uint32(i), J: uint32(i + 1)}
	}
	return d.Dispatch(rows, ops, kind)
}

// BatchedDistributePass applies a binary operator to every pair
// (t[i], t[i+stride]) for i in [0, len(t)-stride) (spec §4.1's
// batched_distribute_pass, used by Phase 3's distribution network).
func BatchedDistributePass(d *Dispatcher, t *tuple.Table, stride int, kind tuple.OpKind) error {
	rows := t.Rows()
	n := len(rows) - stride
	if n <= 0 {
		return d.Dispatch(rows, nil, kind)
	}
	ops := make([]tuple.Op, n)
	for i := 0; i < n; i++ {
		ops[i] = tuple.Op{I: uint32(i), J: uint32(i + stride)}
	}
	return d.Dispatch(rows, ops, kind)
}

// Sort runs a bitonic network over t using the named comparator kind,
// padding to a power of two with SORT_PADDING beforehand and truncating
// that padding off the tail afterward (spec §4.2). Every comparator kind
// routes through compareAndSwap, which forces SORT_PADDING to the larger
// side ahead of the comparator's own rule, so the padding this call adds
// always lands exactly in the trailing size-n rows regardless of kind —
// including PADDING_LAST, where pre-existing DIST_PADDING rows must
// survive the sort for the caller to inspect, so a blanket StripPadding
// here would be wrong. The whole network, every stage of it, is applied
// in a single dispatcher call; tables larger than capacity
// should go through internal/extsort instead.
func Sort(d *Dispatcher, t *tuple.Table, kind tuple.OpKind) error {
	n := t.Len()
	if n <= 1 {
		return nil
	}
	size := oblivious.NextPowerOfTwo(n)
	if size > n {
		t.AddPadding(size - n)
	}
	network := oblivious.BitonicNetwork(size)
	ops := make([]tuple.Op, len(network))
	for i, p := range network {
		ops[i] = tuple.Op{I: uint32(p[0]), J: uint32(p[1])}
	}
	if err := d.Dispatch(t.Rows(), ops, kind); err != nil {
		return err
	}
	t.Truncate(n)
	return nil
}
