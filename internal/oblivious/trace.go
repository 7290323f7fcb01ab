package oblivious

import "github.com/rawblock/oblivious-band-join/pkg/tuple"

// AccessEvent records one touched pair during a traced run. Only indices
// are recorded, never tuple contents — a trace is exactly the thing an
// outside observer of memory-bus addresses would see.
type AccessEvent struct {
	I, J int
}

// Tracer accumulates AccessEvents for an oblivious computation. Tests use
// it to check the data-independence property spec §4.2 calls out: two
// runs over differently-valued but identically-shaped inputs must produce
// byte-identical traces.
type Tracer struct {
	events []AccessEvent
}

// NewTracer returns an empty Tracer.
func NewTracer() *Tracer {
	return &Tracer{}
}

// Record appends an access event.
func (t *Tracer) Record(i, j int) {
	t.events = append(t.events, AccessEvent{I: i, J: j})
}

// Events returns the recorded trace.
func (t *Tracer) Events() []AccessEvent {
	return t.events
}

// Equal reports whether two traces recorded the identical sequence of
// accesses.
func (t *Tracer) Equal(other *Tracer) bool {
	if len(t.events) != len(other.events) {
		return false
	}
	for i := range t.events {
		if t.events[i] != other.events[i] {
			return false
		}
	}
	return true
}

// TracedExchange performs Exchange while recording the (i, j) pair in the
// given tracer, regardless of shouldSwap's value — the point being that
// the trace must not depend on it.
func TracedExchange(t *Tracer, rows []tuple.Tuple, i, j int, shouldSwap bool) {
	if t != nil {
		t.Record(i, j)
	}
	Exchange(&rows[i], &rows[j], shouldSwap)
}

// RunNetwork replays a compare-exchange network (as produced by
// BitonicNetwork) over rows using cmp to decide each swap, optionally
// tracing every access. cmp receives the two candidate rows and reports
// whether they should be swapped to reach ascending order.
func RunNetwork(rows []tuple.Tuple, network [][2]int, t *Tracer, cmp func(a, b *tuple.Tuple) bool) {
	for _, p := range network {
		i, j := p[0], p[1]
		should := cmp(&rows[i], &rows[j])
		TracedExchange(t, rows, i, j, should)
	}
}
