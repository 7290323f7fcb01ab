package dispatch

import (
	"errors"
	"testing"

	"github.com/rawblock/oblivious-band-join/pkg/tuple"
)

type fakeCollaborator struct {
	decryptCalls, encryptCalls int
	failDecryptAt              int
}

func (f *fakeCollaborator) Decrypt(t *tuple.Tuple) error {
	f.decryptCalls++
	if f.failDecryptAt > 0 && f.decryptCalls == f.failDecryptAt {
		return errors.New("boom")
	}
	t.IsEncrypted = false
	return nil
}

func (f *fakeCollaborator) Encrypt(t *tuple.Tuple) error {
	f.encryptCalls++
	t.IsEncrypted = true
	return nil
}

func TestDispatchNoopOnEmptyOps(t *testing.T) {
	d := New(nil)
	rows := []tuple.Tuple{{JoinAttr: 1}, {JoinAttr: 2}}
	before := append([]tuple.Tuple(nil), rows...)
	if err := d.Dispatch(rows, nil, tuple.KindJoinAttr); err != nil {
		t.Fatalf("Dispatch with no ops: %v", err)
	}
	for i := range rows {
		if rows[i] != before[i] {
			t.Fatalf("no-op dispatch must not mutate tuples: %+v vs %+v", rows[i], before[i])
		}
	}
}

func TestDispatchRestoresEncryptedFlag(t *testing.T) {
	coll := &fakeCollaborator{}
	d := New(coll)
	rows := []tuple.Tuple{
		{JoinAttr: 2, IsEncrypted: true},
		{JoinAttr: 1, IsEncrypted: true},
		{JoinAttr: 5, IsEncrypted: false},
	}
	ops := []tuple.Op{{I: 0, J: 1}}
	if err := d.Dispatch(rows, ops, tuple.KindJoinAttr); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !rows[0].IsEncrypted || !rows[1].IsEncrypted {
		t.Fatalf("previously encrypted rows must be re-encrypted")
	}
	if rows[2].IsEncrypted {
		t.Fatalf("row never encrypted must stay plaintext")
	}
	if coll.decryptCalls != 2 || coll.encryptCalls != 2 {
		t.Fatalf("expected 2 decrypt/encrypt calls, got %d/%d", coll.decryptCalls, coll.encryptCalls)
	}
}

func TestDispatchOutOfRangeIndex(t *testing.T) {
	d := New(nil)
	rows := []tuple.Tuple{{JoinAttr: 1}}
	ops := []tuple.Op{{I: 0, J: 5}}
	if err := d.Dispatch(rows, ops, tuple.KindJoinAttr); err == nil {
		t.Fatalf("expected error for out-of-range op index")
	}
}

func TestSortJoinAttrIsPermutation(t *testing.T) {
	d := New(nil)
	tbl := tuple.NewTable("t", nil)
	for _, v := range []int64{5, 1, 4, 2, 3} {
		tbl.Append(tuple.Tuple{JoinAttr: v, FieldType: tuple.Source})
	}
	if err := Sort(d, tbl, tuple.KindJoinAttr); err != nil {
		t.Fatalf("Sort: %v", err)
	}
	var got []int64
	for i := 0; i < tbl.Len(); i++ {
		got = append(got, tbl.At(i).JoinAttr)
	}
	want := []int64{1, 2, 3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("Sort changed length: got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Sort(JOIN_ATTR) = %v, want %v", got, want)
		}
	}
}

func TestBatchedLinearPassComputeLocalSum(t *testing.T) {
	d := New(nil)
	tbl := tuple.NewTable("t", nil)
	tbl.Append(tuple.Tuple{FieldType: tuple.Source, LocalMult: 1, LocalCumsum: 1})
	tbl.Append(tuple.Tuple{FieldType: tuple.Source, LocalMult: 2})
	tbl.Append(tuple.Tuple{FieldType: tuple.Start, LocalMult: 0})
	if err := BatchedLinearPass(d, tbl, tuple.KindComputeLocalSum); err != nil {
		t.Fatalf("BatchedLinearPass: %v", err)
	}
	if tbl.At(1).LocalCumsum != 3 {
		t.Fatalf("row 1 LocalCumsum = %d, want 3", tbl.At(1).LocalCumsum)
	}
	if tbl.At(2).LocalCumsum != 3 {
		t.Fatalf("row 2 (START) LocalCumsum = %d, want 3 (no SOURCE contribution)", tbl.At(2).LocalCumsum)
	}
}
