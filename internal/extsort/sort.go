package extsort

import (
	"github.com/rawblock/oblivious-band-join/internal/dispatch"
	"github.com/rawblock/oblivious-band-join/pkg/tuple"
)

// sliceSource serves rows from an in-memory run with a cursor, the
// in-process stand-in for spec §4.8's refill callback (which in a real
// deployment would pull the next block of a run from outside the trust
// boundary).
func sliceSource(rows []tuple.Tuple) RunSource {
	pos := 0
	return func(buf []tuple.Tuple) (int, error) {
		n := copy(buf, rows[pos:])
		pos += n
		return n, nil
	}
}

func drainAll(ms *MergeState, total int) ([]tuple.Tuple, error) {
	out := make([]tuple.Tuple, 0, total)
	for {
		chunk, complete, err := ms.Process(total - len(out))
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
		if complete || len(out) >= total {
			return out, nil
		}
	}
}

// mergeRuns merges up to KMax runs into one sorted slice.
func mergeRuns(kind tuple.OpKind, runs [][]tuple.Tuple, bufSize int) ([]tuple.Tuple, error) {
	total := 0
	sources := make([]RunSource, len(runs))
	for i, r := range runs {
		total += len(r)
		sources[i] = sliceSource(r)
	}
	ms, err := Init(kind, sources, bufSize)
	if err != nil {
		return nil, err
	}
	defer ms.Cleanup()
	return drainAll(ms, total)
}

// mergeAll fans an arbitrary number of sorted runs in to one sorted slice,
// merging at most KMax at a time and recursing over the combined results
// until a single run remains (spec §4.8's k ≤ K_MAX bound on one merge
// state, generalized to more than K_MAX runs via repeated passes).
func mergeAll(kind tuple.OpKind, runs [][]tuple.Tuple, bufSize int) ([]tuple.Tuple, error) {
	for len(runs) > 1 {
		var next [][]tuple.Tuple
		for i := 0; i < len(runs); i += KMax {
			end := i + KMax
			if end > len(runs) {
				end = len(runs)
			}
			merged, err := mergeRuns(kind, runs[i:end], bufSize)
			if err != nil {
				return nil, err
			}
			next = append(next, merged)
		}
		runs = next
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return runs[0], nil
}

// Sort reorders t according to kind (spec §4.8): runs of at most
// batchCapacity rows are each sorted with one dispatcher-batched bitonic
// sort, then merged with the bounded-fan-in k-way merge above. Tables no
// larger than batchCapacity go straight through dispatch.Sort with no
// merge step.
func Sort(d *dispatch.Dispatcher, t *tuple.Table, kind tuple.OpKind, batchCapacity int) error {
	n := t.Len()
	if n <= batchCapacity {
		return dispatch.Sort(d, t, kind)
	}

	var runs [][]tuple.Tuple
	rows := t.Rows()
	for start := 0; start < n; start += batchCapacity {
		end := start + batchCapacity
		if end > n {
			end = n
		}
		run := append([]tuple.Tuple(nil), rows[start:end]...)
		runTable := tuple.NewTableFromRows("run", t.Schema(), run)
		if err := dispatch.Sort(d, runTable, kind); err != nil {
			return err
		}
		runs = append(runs, runTable.Rows())
	}

	bufSize := batchCapacity
	if bufSize > n {
		bufSize = n
	}
	merged, err := mergeAll(kind, runs, bufSize)
	if err != nil {
		return err
	}

	replacement := tuple.NewTableFromRows(t.Name(), t.Schema(), merged)
	*t = *replacement
	return nil
}
