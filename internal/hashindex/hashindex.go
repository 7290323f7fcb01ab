// Package hashindex implements the two-tier oblivious hash index spec §4.9
// describes as an optional hop operator over a graph-shaped catalog: most
// items land in one of several major bins sized to hold their share with
// overwhelming probability, and the rest spill into a single oblivious
// overflow bin. It is not used by the join phases themselves.
package hashindex

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/decred/dcrd/crypto/blake256"

	"github.com/rawblock/oblivious-band-join/internal/joinerr"
	"github.com/rawblock/oblivious-band-join/internal/oblivious"
	"github.com/rawblock/oblivious-band-join/pkg/tuple"
)

// Config mirrors the EPSILON_INV / DELTA_INV_LOG2 knobs of spec §6's
// configuration surface: EpsilonInv controls the overflow bin's share of n
// (1/EpsilonInv), DeltaInvLog2 is carried for callers that want to size
// BinNum/BinCapacity against a target failure probability the way
// ohash_tiers.hpp's compute_epsilon_inv calibration does, though this
// package takes the resulting sizes directly rather than search for them.
type Config struct {
	BinNum       int
	BinCapacity  int
	EpsilonInv   int
	DeltaInvLog2 int
}

// DefaultConfig sizes a single major bin (BinNum=1) holding every item,
// matching ohash_tiers.hpp's bin_num==1 fast path for small tables. Callers
// indexing a larger catalog should size BinNum/BinCapacity themselves.
func DefaultConfig(n int) Config {
	return Config{BinNum: 1, BinCapacity: n, EpsilonInv: 8, DeltaInvLog2: 64}
}

// Index is a built two-tier hash index: cfg.BinNum major bins of
// cfg.BinCapacity slots each, routed by a keyed PRF, plus one overflow bin
// holding whatever didn't fit.
type Index struct {
	cfg         Config
	prfKey      [32]byte
	bins        [][]tuple.Tuple
	overflow    []tuple.Tuple
	overflowCap int
	n           int
}

func dummyRow() tuple.Tuple {
	return tuple.Tuple{FieldType: tuple.DistPadding, JoinAttr: tuple.SentinelPosInf}
}

func isDummy(t tuple.Tuple) bool { return t.FieldType == tuple.DistPadding }

// route computes the keyed-PRF bin assignment for key (ohash_tiers.hpp's
// `prf(data[i].id)`), using blake256 in place of the source's AES-CTR PRF —
// both are keyed pseudorandom functions over a fixed-width input, and
// blake256 is already an indirect dependency of the teacher's stack.
func (idx *Index) route(key int64, modulus int) int {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(key))
	h := blake256.Sum256(append(idx.prfKey[:], buf[:]...))
	v := binary.BigEndian.Uint64(h[:8])
	return int(v % uint64(modulus))
}

// New obliviously shuffles rows, routes each into a major bin by PRF, and
// compacts whatever a bin can't hold into a shared overflow bin (spec
// §4.9's "obliviously shuffle, route each item via a PRF into a major bin,
// compact overflow"). Per ohash_tiers.hpp's build(): once the input has been
// obliviously shuffled, revealing which bin each item landed in leaks
// nothing beyond the (already-public) per-bin load, so the routing and
// per-bin split below are not branch-hidden.
func New(cfg Config, rows []tuple.Tuple) (*Index, error) {
	if cfg.BinNum <= 0 || cfg.BinCapacity <= 0 {
		return nil, joinerr.New(joinerr.InvalidArgument, "hashindex.New", "BinNum and BinCapacity must be positive, got %d/%d", cfg.BinNum, cfg.BinCapacity)
	}
	n := len(rows)
	overflowCap := n/cfg.EpsilonInv + 1
	idx := &Index{cfg: cfg, overflowCap: overflowCap, n: n}
	if _, err := rand.Read(idx.prfKey[:]); err != nil {
		return nil, joinerr.Wrap(joinerr.CryptoFailure, "hashindex.New", err)
	}

	shuffled, err := oblivious.Shuffle(append([]tuple.Tuple(nil), rows...))
	if err != nil {
		return nil, joinerr.Wrap(joinerr.CryptoFailure, "hashindex.New", err)
	}

	idx.bins = make([][]tuple.Tuple, cfg.BinNum)
	var overflowCandidates []tuple.Tuple
	for b := 0; b < cfg.BinNum; b++ {
		belongsToBin := func(r tuple.Tuple) bool { return idx.route(r.JoinAttr, cfg.BinNum) == b }
		compacted := oblivious.Compact(shuffled, belongsToBin, oblivious.ByHalfCompact)
		keepCount := oblivious.CountKeep(shuffled, belongsToBin)

		bin := make([]tuple.Tuple, cfg.BinCapacity)
		for s := range bin {
			if s < keepCount && s < cfg.BinCapacity {
				bin[s] = compacted[s]
			} else {
				bin[s] = dummyRow()
			}
		}
		idx.bins[b] = bin

		if keepCount > cfg.BinCapacity {
			overflowCandidates = append(overflowCandidates, compacted[cfg.BinCapacity:keepCount]...)
		}
	}

	if len(overflowCandidates) > overflowCap {
		return nil, joinerr.New(joinerr.CapacityExceeded, "hashindex.New", "overflow holds %d items, capacity %d", len(overflowCandidates), overflowCap)
	}
	idx.overflow = make([]tuple.Tuple, overflowCap)
	for s := range idx.overflow {
		if s < len(overflowCandidates) {
			idx.overflow[s] = overflowCandidates[s]
		} else {
			idx.overflow[s] = dummyRow()
		}
	}

	return idx, nil
}

// Lookup issues a constant-cost access to the major bin key routes to and a
// full scan of the overflow bin, returning the non-dummy match selected
// obliviously between the two (spec §4.9). Both scans touch every slot of
// both bins regardless of where (or whether) a match exists.
func (idx *Index) Lookup(key int64) (tuple.Tuple, bool) {
	result := dummyRow()
	found := false

	bin := idx.bins[idx.route(key, idx.cfg.BinNum)]
	for _, slot := range bin {
		match := !isDummy(slot) && slot.JoinAttr == key
		result = oblivious.SelectTuple(match, result, slot)
		found = oblivious.SelectBool(match, found, true)
	}
	for _, slot := range idx.overflow {
		match := !isDummy(slot) && slot.JoinAttr == key
		result = oblivious.SelectTuple(match, result, slot)
		found = oblivious.SelectBool(match, found, true)
	}
	return result, found
}

// Extract returns the indexed rows in no particular guaranteed order,
// recovered by flagged compaction over every bin plus the overflow bin
// (spec §4.9's "extract returns the original items by flagged compaction").
func (idx *Index) Extract() []tuple.Tuple {
	all := make([]tuple.Tuple, 0, idx.cfg.BinNum*idx.cfg.BinCapacity+idx.overflowCap)
	for _, bin := range idx.bins {
		all = append(all, bin...)
	}
	all = append(all, idx.overflow...)

	keep := func(r tuple.Tuple) bool { return !isDummy(r) }
	compacted := oblivious.Compact(all, keep, oblivious.ByHalfCompact)
	if idx.n > len(compacted) {
		idx.n = len(compacted)
	}
	return compacted[:idx.n]
}
