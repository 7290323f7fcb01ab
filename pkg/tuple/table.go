package tuple

import "fmt"

// OpKind tags which pure function the dispatcher should run for a batch of
// operations (spec §4.3). The five families — comparators, window
// operators, update operators, transform operators, and join-attribute
// set/init — are flattened into one enum, matching the "map this to a
// single sum type and a flat match" guidance in the design notes.
type OpKind uint8

const (
	// Comparators (binary, in-place compare-and-swap).
	KindJoinAttr OpKind = iota
	KindPairwise
	KindEndFirst
	KindJoinThenOther
	KindOriginalIndex
	KindAlignmentKey
	KindPaddingLast
	KindDistribute

	// Window operators (binary, write into the right-hand operand).
	KindComputeLocalSum
	KindComputeLocalInterval
	KindComputeForeignSum
	KindComputeForeignInterval
	KindComputeDstIdx
	KindIncrementIndex
	KindExpandCopy

	// Update operators (binary, carrier -> target).
	KindUpdateTargetMultiplicity
	KindUpdateTargetFinalMultiplicity

	// Transform operators (unary).
	KindZeroMetadata
	KindMarkSortPadding
	KindMarkDistPadding
	KindSetLocalMultOne
	KindToStart
	KindToEnd
	KindInitDstIdx
	KindInitIndex
	KindInitFinalMultFromLocal
	KindMarkZeroMultPadding
	KindComputeAlignmentKey

	// Join-attribute set/init (unary).
	KindSetJoinAttrFromAttribute
	KindSetNullMetadata
)

// NoJ is the distinguished "no parameter" sentinel for j in a unary Op
// (spec §6).
const NoJ = ^uint32(0)

// Op is one entry in an operation array: a pair of indices into the data
// array the dispatcher is given, plus up to two extra integer parameters
// (spec §6). j is NoJ for unary ops.
type Op struct {
	I      uint32
	J      uint32
	Params [2]int32
}

// Dispatcher is the oblivious-batch ABI (spec §6): a single entrypoint that
// crosses the trust boundary once per call and applies kind to every op in
// ops against tuples.
type Dispatcher interface {
	Dispatch(tuples []Tuple, ops []Op, kind OpKind) error
}

// Table is an ordered sequence of tuples plus a schema (ordered column
// names) and a name. Tables are homogeneous in schema; size is public,
// contents are not (spec §3).
type Table struct {
	name   string
	schema []string
	rows   []Tuple
}

// NewTable creates an empty table with the given name and schema.
func NewTable(name string, schema []string) *Table {
	return &Table{name: name, schema: append([]string(nil), schema...)}
}

// NewTableFromRows wraps an existing row slice without copying it.
func NewTableFromRows(name string, schema []string, rows []Tuple) *Table {
	return &Table{name: name, schema: append([]string(nil), schema...), rows: rows}
}

func (t *Table) Name() string     { return t.name }
func (t *Table) Schema() []string { return t.schema }
func (t *Table) Len() int         { return len(t.rows) }

// Rows exposes the backing slice. Callers within the core are trusted not to
// violate the obliviousness contract by branching on its contents when
// deciding *which* tuples to touch (only bulk, size-driven access is safe).
func (t *Table) Rows() []Tuple { return t.rows }

func (t *Table) At(i int) Tuple      { return t.rows[i] }
func (t *Table) Set(i int, v Tuple)  { t.rows[i] = v }
func (t *Table) Append(v Tuple)      { t.rows = append(t.rows, v) }
func (t *Table) AppendAll(vs []Tuple) { t.rows = append(t.rows, vs...) }

// RenameSchema replaces the table's column names in place.
func (t *Table) RenameSchema(schema []string) {
	t.schema = append([]string(nil), schema...)
}

// AddPadding appends n SORT_PADDING tuples with LocalMult 0 and consecutive
// OriginalIndex continuing from the current tail, so padding always sorts
// predictably and never collides with a real tuple's identity.
func (t *Table) AddPadding(n int) {
	base := int64(len(t.rows))
	for i := 0; i < n; i++ {
		t.rows = append(t.rows, Tuple{
			FieldType:     SortPadding,
			OriginalIndex: base + int64(i),
			JoinAttr:      SentinelPosInf,
		})
	}
}

// Truncate drops rows beyond n.
func (t *Table) Truncate(n int) {
	if n < len(t.rows) {
		t.rows = t.rows[:n]
	}
}

// StripPadding removes every SORT_PADDING / DIST_PADDING tuple, preserving
// relative order of the rest (spec invariant I6: padding discipline).
func (t *Table) StripPadding() {
	out := t.rows[:0]
	for _, r := range t.rows {
		if r.FieldType == SortPadding || r.FieldType == DistPadding {
			continue
		}
		out = append(out, r)
	}
	t.rows = out
}

// ConcatHorizontal joins two equi-length tables row-by-row: the schema is
// the concatenation of both schemas, and row i of the result holds the
// payload of row i of left followed by row i of right (spec §4.1, used by
// Phase 4's align-and-concatenate).
func ConcatHorizontal(name string, left, right *Table) (*Table, error) {
	if left.Len() != right.Len() {
		return nil, fmt.Errorf("tuple: horizontal concat requires equal length tables, got %d and %d", left.Len(), right.Len())
	}
	schema := make([]string, 0, len(left.schema)+len(right.schema))
	schema = append(schema, left.schema...)
	schema = append(schema, right.schema...)

	out := NewTable(name, schema)
	out.rows = make([]Tuple, left.Len())
	for i := range out.rows {
		l := left.rows[i]
		r := right.rows[i]
		merged := l
		// The accumulator's own metadata/attribute fields are kept from the
		// left operand; payload attributes beyond the left's own arity slot
		// are filled from the right operand so both sides' attributes
		// survive the concatenation within the fixed-width attribute array.
		leftWidth := len(left.schema)
		for j := 0; j < len(right.schema) && leftWidth+j < MaxAttributes; j++ {
			merged.Attributes[leftWidth+j] = r.Attributes[j]
		}
		out.rows[i] = merged
	}
	return out, nil
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	out := &Table{name: t.name, schema: append([]string(nil), t.schema...)}
	out.rows = append([]Tuple(nil), t.rows...)
	return out
}
