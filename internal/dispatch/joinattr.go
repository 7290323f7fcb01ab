package dispatch

import "github.com/rawblock/oblivious-band-join/pkg/tuple"

// setJoinAttrFromAttribute copies payload attribute params[0] into
// join_attr — how a raw input table is turned into a join-ready one before
// any phase runs (spec §4.3e).
func setJoinAttrFromAttribute(t *tuple.Tuple, attrIndex int32) {
	t.JoinAttr = t.Attributes[attrIndex]
}

// setNullMetadata marks a tuple as an empty/null slot: metadata scratch
// fields are zeroed and join_attr is pinned to the -infinity sentinel so it
// always sorts to the head and never satisfies a real comparator match.
// The hash index does not use it: its empty slots come from its own
// dummyRow, which pins join_attr to +infinity instead.
func setNullMetadata(t *tuple.Tuple) {
	t.ZeroMetadata()
	t.JoinAttr = tuple.SentinelNegInf
	t.EqualityType = tuple.EqNone
}

func applyJoinAttr(kind tuple.OpKind, t *tuple.Tuple, params [2]int32) {
	switch kind {
	case tuple.KindSetJoinAttrFromAttribute:
		setJoinAttrFromAttribute(t, params[0])
	case tuple.KindSetNullMetadata:
		setNullMetadata(t)
	}
}

func isJoinAttrKind(kind tuple.OpKind) bool {
	switch kind {
	case tuple.KindSetJoinAttrFromAttribute, tuple.KindSetNullMetadata:
		return true
	}
	return false
}
