// Package tuple defines the augmented tuple and table types the join engine
// operates on (spec §3). Tuples are fixed-width value types; relations
// between them are always positional after an explicit sort, never by
// pointer.
package tuple

// MaxAttributes is the compile-time payload arity (spec §6 MAX_ATTRIBUTES).
const MaxAttributes = 16

// FieldType distinguishes real tuples from the boundary markers and padding
// variants synthesized during the join (spec §3).
type FieldType uint8

const (
	Source FieldType = iota
	Start
	End
	SortPadding
	DistPadding
)

func (f FieldType) String() string {
	switch f {
	case Source:
		return "SOURCE"
	case Start:
		return "START"
	case End:
		return "END"
	case SortPadding:
		return "SORT_PADDING"
	case DistPadding:
		return "DIST_PADDING"
	default:
		return "UNKNOWN"
	}
}

// EqualityType is set only on boundary markers to encode closed/open
// endpoints of a join constraint interval.
type EqualityType uint8

const (
	EqNone EqualityType = iota
	EqEQ
	EqNEQ
)

// Domain bounds for join_attr (spec §3): the valid centered interval is
// approximately ±2^30, with two sentinel values just outside it standing in
// for -infinity and +infinity. No arithmetic may push a value from the valid
// interval into a sentinel (spec Open Question O2: these are explicit named
// constants, never math.MinInt32/MaxInt32).
const (
	JoinAttrBound  int64 = 1 << 30
	SentinelNegInf int64 = -(JoinAttrBound + 1)
	SentinelPosInf int64 = JoinAttrBound + 1
)

// InDomain reports whether v lies in the valid (non-sentinel) join_attr
// interval.
func InDomain(v int64) bool {
	return v >= -JoinAttrBound && v <= JoinAttrBound
}

// Tuple is the fixed-width augmented record (spec §3). Every field needed by
// any phase is present on every tuple; phases that don't use a given
// scratch field simply leave it untouched.
type Tuple struct {
	FieldType    FieldType
	EqualityType EqualityType

	JoinAttr      int64
	OriginalIndex int64

	// Persistent multiplicity/alignment metadata.
	LocalMult  int64
	FinalMult  int64
	ForeignSum int64

	// Scratch fields reused across phases.
	LocalCumsum     int64
	LocalInterval   int64
	ForeignInterval int64
	LocalWeight     int64

	// Scratch fields for expansion and alignment.
	CopyIndex    int64
	AlignmentKey int64
	DstIdx       int64
	Index        int64

	Attributes [MaxAttributes]int64

	// Consumed only by the confidentiality collaborator; never influence
	// control flow inside the core.
	IsEncrypted bool
	Nonce       uint64
}

// ZeroMetadata resets every scratch and persistent metadata field to zero, leaving
// FieldType, EqualityType, JoinAttr, OriginalIndex, Attributes, IsEncrypted
// and Nonce untouched. Used by transform operators that need a clean slate
// before recomputing derived fields.
func (t *Tuple) ZeroMetadata() {
	t.LocalMult = 0
	t.FinalMult = 0
	t.ForeignSum = 0
	t.LocalCumsum = 0
	t.LocalInterval = 0
	t.ForeignInterval = 0
	t.LocalWeight = 0
	t.CopyIndex = 0
	t.AlignmentKey = 0
	t.DstIdx = 0
	t.Index = 0
}

// IsBoundary reports whether the tuple is a START or END marker.
func (t *Tuple) IsBoundary() bool {
	return t.FieldType == Start || t.FieldType == End
}
