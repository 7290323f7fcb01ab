//go:build !oblivious_hw

package oblivious

import "github.com/rawblock/oblivious-band-join/pkg/tuple"

// hardwareExchange is left nil on the default (software) build: every
// compare-exchange falls back to ConditionalSwap. Adapted from the
// teacher's cuda_matcher_cpu.go / cuda_matcher_nvidia.go build-tag pair —
// here the thing being offloaded is the bitonic network's hot inner loop
// rather than an anonymity-set power-set search, but the shape (CPU
// fallback compiled by default, hardware path behind a build tag) is the
// same.
var hardwareExchange func(a, b *tuple.Tuple, shouldSwap bool)
