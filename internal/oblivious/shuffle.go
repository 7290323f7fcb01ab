package oblivious

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/rawblock/oblivious-band-join/pkg/tuple"
)

// Shuffle returns rows in a uniformly random order (spec §4.2's OrShuffle /
// Waksman-network primitive). The access pattern is a bitonic sort over
// len(rows) padded to a power of two, keyed by per-row randomness drawn
// from crypto/rand — the same network shape BitonicNetwork already uses
// for ordinary sorts, so the trusted path gains no new primitive, only a
// new key source.
func Shuffle(rows []tuple.Tuple) ([]tuple.Tuple, error) {
	n := len(rows)
	if n <= 1 {
		out := make([]tuple.Tuple, n)
		copy(out, rows)
		return out, nil
	}

	size := NextPowerOfTwo(n)
	keys := make([]uint64, size)
	idx := make([]int, size)
	for i := 0; i < size; i++ {
		idx[i] = i
		if i < n {
			k, err := randomKey()
			if err != nil {
				return nil, fmt.Errorf("oblivious: shuffle key: %w", err)
			}
			keys[i] = k
		} else {
			// Padding keys still need randomness: a fixed value for
			// padding slots would let an observer learn which output
			// positions came from real rows by their key distribution.
			k, err := randomKey()
			if err != nil {
				return nil, fmt.Errorf("oblivious: shuffle key: %w", err)
			}
			keys[i] = k
		}
	}

	for _, p := range BitonicNetwork(size) {
		i, j := p[0], p[1]
		should := keys[i] > keys[j]
		keys[i], keys[j] = selectU64(should, keys[i], keys[j]), selectU64(should, keys[j], keys[i])
		idx[i], idx[j] = SelectInt(should, idx[i], idx[j]), SelectInt(should, idx[j], idx[i])
	}

	out := make([]tuple.Tuple, 0, n)
	for _, p := range idx {
		if p < n {
			out = append(out, rows[p])
		}
	}
	return out, nil
}

func randomKey() (uint64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

func selectU64(cond bool, a, b uint64) uint64 {
	var mask uint64
	if cond {
		mask = ^uint64(0)
	}
	return (a &^ mask) | (b & mask)
}
