//go:build oblivious_hw

package oblivious

import (
	"log"

	"github.com/rawblock/oblivious-band-join/pkg/tuple"
)

// hardwareExchange, when built with -tags oblivious_hw, would route
// compare-exchange operations to a vectorized backend. No such backend
// ships with this module — wiring one in is a deployment decision, not a
// correctness one (mirrors spec Open Question O3's treatment of the hash
// index). We log once and fall back to software so a build with this tag
// set is never silently slower without explanation.
func init() {
	log.Println("[oblivious] hardware exchange backend requested via build tag but none is linked in; falling back to software compare-and-swap")
	hardwareExchange = func(a, b *tuple.Tuple, shouldSwap bool) {
		ConditionalSwap(a, b, shouldSwap)
	}
}
