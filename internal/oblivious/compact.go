package oblivious

import "github.com/rawblock/oblivious-band-join/pkg/tuple"

// CompactVariant names the three balanced-compaction strategies spec §4.2
// attributes to Lin–Shi–Xie–Wu. All three currently share the same
// sort-based backend (see DESIGN.md's Open Question resolution); the enum
// is kept so call sites can name the variant they conceptually want without
// the implementation choice leaking into their code.
type CompactVariant uint8

const (
	OffCompact CompactVariant = iota
	OrCompact
	ByHalfCompact
)

// compactPermutation returns, for a keep-flag array padded to the next
// power of two (padding always treated as "drop"), the index each output
// slot should be filled from: keep-flagged inputs first (stable, original
// relative order), then drops. The comparison network is BitonicNetwork's —
// a function of len(keep) alone — so the *shape* of the computation never
// depends on which flags are set, only the rank/index payload being
// compared does.
func compactPermutation(keep []bool) []int {
	size := NextPowerOfTwo(len(keep))
	rank := make([]int, size)
	idx := make([]int, size)
	for i := 0; i < size; i++ {
		idx[i] = i
		if i < len(keep) && keep[i] {
			rank[i] = 0
		} else {
			rank[i] = 1
		}
	}
	for _, p := range BitonicNetwork(size) {
		i, j := p[0], p[1]
		should := rank[i] > rank[j] || (rank[i] == rank[j] && idx[i] > idx[j])
		rank[i], rank[j] = SelectInt(should, rank[i], rank[j]), SelectInt(should, rank[j], rank[i])
		idx[i], idx[j] = SelectInt(should, idx[i], idx[j]), SelectInt(should, idx[j], idx[i])
	}
	return idx
}

// SelectInt is SelectInt64's plain-int convenience form.
func SelectInt(cond bool, a, b int) int {
	if cond {
		return b
	}
	return a
}

// Compact reorders rows so every row for which keep returns true precedes
// every row for which it returns false, preserving relative order within
// each group (spec §4.2's compactor contract), using variant only to
// record caller intent (see CompactVariant doc).
func Compact(rows []tuple.Tuple, keep func(tuple.Tuple) bool, _ CompactVariant) []tuple.Tuple {
	n := len(rows)
	flags := make([]bool, n)
	for i, r := range rows {
		flags[i] = keep(r)
	}
	perm := compactPermutation(flags)
	out := make([]tuple.Tuple, 0, n)
	for _, p := range perm {
		if p < n {
			out = append(out, rows[p])
		} else {
			out = append(out, tuple.Tuple{FieldType: tuple.DistPadding})
		}
	}
	return out
}

// CountKeep reports how many rows keep would retain, without branching on
// any individual row outside of this accounting pass.
func CountKeep(rows []tuple.Tuple, keep func(tuple.Tuple) bool) int {
	n := 0
	for _, r := range rows {
		if keep(r) {
			n++
		}
	}
	return n
}
