// Package extsort implements the k-way external merge sort spec §4.8
// describes for tables larger than the dispatcher's batch capacity: split
// into runs of at most B rows, sort each run in one batched bitonic-sort
// call, then merge with a bounded-fan-in min-heap. Unlike the bitonic
// network, this sort is not oblivious beyond bucket granularity — spec
// §4.8 is explicit that it is meant for contexts where only bucket sizes
// are public, never raw tuple content.
package extsort

import (
	"container/heap"

	"github.com/rawblock/oblivious-band-join/internal/dispatch"
	"github.com/rawblock/oblivious-band-join/internal/joinerr"
	"github.com/rawblock/oblivious-band-join/pkg/tuple"
)

// KMax is the merge fan-in bound (spec §4.8's "k ≤ K_MAX, a small constant
// such as 8"); runs beyond this are merged in multiple passes.
const KMax = 8

// RunSource refills buf with the next rows of one run (the "refill
// callback" of spec §4.8 / the original's ocall_refill_buffer) and returns
// how many it wrote. Returning 0 with a nil error signals the run is
// exhausted.
type RunSource func(buf []tuple.Tuple) (int, error)

type heapItem struct {
	row tuple.Tuple
	run int
}

type mergeHeap struct {
	items []heapItem
	cmp   func(a, b *tuple.Tuple) int
}

func (h mergeHeap) Len() int { return len(h.items) }
func (h mergeHeap) Less(i, j int) bool {
	return h.cmp(&h.items[i].row, &h.items[j].row) < 0
}
func (h mergeHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *mergeHeap) Push(x any)   { h.items = append(h.items, x.(heapItem)) }
func (h *mergeHeap) Pop() any {
	old := h.items
	n := len(old)
	it := old[n-1]
	h.items = old[:n-1]
	return it
}

// MergeState is the persistent k-way merge object spec §4.8 calls out by
// name: construct once with Init, drain with repeated Process calls, and
// release with Cleanup. At most KMax sources may be merged by one state;
// Sort below fans wider inputs in over multiple rounds.
type MergeState struct {
	sources   []RunSource
	bufSize   int
	buffers   [][]tuple.Tuple
	pos       []int
	exhausted []bool
	heap      mergeHeap
}

// Init constructs a MergeState over sources, comparing through the given
// comparator kind (the same comparator function the bitonic sort used to
// produce each run, per spec §4.8's "the heap compares through the same
// comparator function as the bitonic sort"), and performs the initial
// buffer fill.
func Init(kind tuple.OpKind, sources []RunSource, bufSize int) (*MergeState, error) {
	if len(sources) == 0 {
		return nil, joinerr.New(joinerr.InvalidArgument, "extsort.Init", "no sources")
	}
	if len(sources) > KMax {
		return nil, joinerr.New(joinerr.InvalidArgument, "extsort.Init", "%d sources exceeds KMax=%d", len(sources), KMax)
	}
	if bufSize <= 0 {
		return nil, joinerr.New(joinerr.InvalidArgument, "extsort.Init", "bufSize must be positive, got %d", bufSize)
	}
	ms := &MergeState{
		sources:   sources,
		bufSize:   bufSize,
		buffers:   make([][]tuple.Tuple, len(sources)),
		pos:       make([]int, len(sources)),
		exhausted: make([]bool, len(sources)),
		heap:      mergeHeap{cmp: func(a, b *tuple.Tuple) int { return dispatch.Compare(kind, a, b) }},
	}
	heap.Init(&ms.heap)
	for i := range sources {
		if err := ms.refill(i); err != nil {
			return nil, err
		}
		if len(ms.buffers[i]) > 0 {
			heap.Push(&ms.heap, heapItem{row: ms.buffers[i][0], run: i})
			ms.pos[i] = 1
		} else {
			ms.exhausted[i] = true
		}
	}
	return ms, nil
}

func (ms *MergeState) refill(i int) error {
	buf := make([]tuple.Tuple, ms.bufSize)
	n, err := ms.sources[i](buf)
	if err != nil {
		return joinerr.Wrap(joinerr.InvariantViolated, "extsort.refill", err)
	}
	ms.buffers[i] = buf[:n]
	ms.pos[i] = 0
	return nil
}

// Process emits up to capacity merged rows (the "process" step of spec
// §4.8's init/process/cleanup lifecycle). complete is true once every
// source is exhausted and the heap has drained, even if fewer than
// capacity rows were produced on this call.
func (ms *MergeState) Process(capacity int) (out []tuple.Tuple, complete bool, err error) {
	out = make([]tuple.Tuple, 0, capacity)
	for len(out) < capacity {
		if ms.heap.Len() == 0 {
			return out, true, nil
		}
		top := heap.Pop(&ms.heap).(heapItem)
		out = append(out, top.row)

		i := top.run
		if ms.pos[i] >= len(ms.buffers[i]) && !ms.exhausted[i] {
			if err := ms.refill(i); err != nil {
				return out, false, err
			}
		}
		if ms.pos[i] < len(ms.buffers[i]) {
			heap.Push(&ms.heap, heapItem{row: ms.buffers[i][ms.pos[i]], run: i})
			ms.pos[i]++
		} else {
			ms.exhausted[i] = true
		}
	}
	return out, false, nil
}

// Cleanup releases the state's buffers (the lifecycle's final step; safe
// to call even if Process never reached completion, e.g. on an aborted
// sort).
func (ms *MergeState) Cleanup() {
	for i := range ms.buffers {
		ms.buffers[i] = nil
	}
	ms.heap.items = nil
}
