package dispatch

import "github.com/rawblock/oblivious-band-join/pkg/tuple"

// Update operators bulk-write from a carrier row into a target row
// (spec §4.3c), used by Phase 1 step 8 and Phase 2 step 4.

func updateTargetMultiplicity(carrier, target *tuple.Tuple) {
	target.LocalMult *= carrier.LocalInterval
}

func updateTargetFinalMultiplicity(carrier, target *tuple.Tuple) {
	target.FinalMult = carrier.ForeignInterval * target.LocalMult
	target.ForeignSum = carrier.ForeignSum
}

func applyUpdate(kind tuple.OpKind, carrier, target *tuple.Tuple) {
	switch kind {
	case tuple.KindUpdateTargetMultiplicity:
		updateTargetMultiplicity(carrier, target)
	case tuple.KindUpdateTargetFinalMultiplicity:
		updateTargetFinalMultiplicity(carrier, target)
	}
}

func isUpdateKind(kind tuple.OpKind) bool {
	switch kind {
	case tuple.KindUpdateTargetMultiplicity, tuple.KindUpdateTargetFinalMultiplicity:
		return true
	}
	return false
}
