// Package dispatch implements the batched operator dispatcher (spec §4.3):
// a single entrypoint that crosses the trust boundary once per call,
// applying one OpKind to every (i, j, params) entry in an operation array
// against a decrypted-in-bulk tuple array.
package dispatch

import (
	"github.com/rawblock/oblivious-band-join/internal/joinerr"
	"github.com/rawblock/oblivious-band-join/pkg/tuple"
)

// Collaborator is the confidentiality collaborator's interface as seen by
// the dispatcher (spec §6). internal/aead.Cipher satisfies it structurally;
// the dispatcher never imports internal/aead directly to keep the
// dependency pointed one way.
type Collaborator interface {
	Encrypt(t *tuple.Tuple) error
	Decrypt(t *tuple.Tuple) error
}

// Dispatcher implements tuple.Dispatcher. A nil Collaborator means tuples
// arrive and leave in plaintext — useful for tests and for phases that
// operate on already-decrypted scratch tables.
type Dispatcher struct {
	Collaborator Collaborator
}

// New returns a Dispatcher using c for bulk decrypt/re-encrypt. c may be
// nil.
func New(c Collaborator) *Dispatcher {
	return &Dispatcher{Collaborator: c}
}

// Dispatch implements the per-invocation contract of spec §4.3: bulk
// decrypt every is_encrypted tuple, apply kind to every op, then
// bulk re-encrypt exactly the tuples that were encrypted on entry. A
// dispatch with zero ops is a no-op (spec P9).
func (d *Dispatcher) Dispatch(tuples []tuple.Tuple, ops []tuple.Op, kind tuple.OpKind) error {
	var wasEncrypted []bool
	if d.Collaborator != nil {
		wasEncrypted = make([]bool, len(tuples))
		for i := range tuples {
			if tuples[i].IsEncrypted {
				wasEncrypted[i] = true
				if err := d.Collaborator.Decrypt(&tuples[i]); err != nil {
					for j := 0; j < i; j++ {
						if wasEncrypted[j] && !tuples[j].IsEncrypted {
							_ = d.Collaborator.Encrypt(&tuples[j])
						}
					}
					return joinerr.Wrap(joinerr.CryptoFailure, "dispatch.decrypt", err)
				}
			}
		}
	}

	if err := d.apply(tuples, ops, kind); err != nil {
		if d.Collaborator != nil {
			// Roll forward what we can: re-encrypt every row already
			// decrypted so the caller never observes a half-plaintext
			// table, even on error (spec §7's CryptoFailure rollback).
			for i := range tuples {
				if wasEncrypted[i] && !tuples[i].IsEncrypted {
					_ = d.Collaborator.Encrypt(&tuples[i])
				}
			}
		}
		return err
	}

	if d.Collaborator != nil {
		for i := range tuples {
			if wasEncrypted[i] {
				if err := d.Collaborator.Encrypt(&tuples[i]); err != nil {
					return joinerr.Wrap(joinerr.CryptoFailure, "dispatch.encrypt", err)
				}
			}
		}
	}
	return nil
}

func (d *Dispatcher) apply(tuples []tuple.Tuple, ops []tuple.Op, kind tuple.OpKind) error {
	switch {
	case isComparatorKind(kind):
		for _, op := range ops {
			if err := checkIndices(len(tuples), op.I, op.J); err != nil {
				return err
			}
			applyComparator(kind, &tuples[op.I], &tuples[op.J])
		}
	case isWindowKind(kind):
		for _, op := range ops {
			if err := checkIndices(len(tuples), op.I, op.J); err != nil {
				return err
			}
			applyWindow(kind, &tuples[op.I], &tuples[op.J])
		}
	case isUpdateKind(kind):
		for _, op := range ops {
			if err := checkIndices(len(tuples), op.I, op.J); err != nil {
				return err
			}
			applyUpdate(kind, &tuples[op.I], &tuples[op.J])
		}
	case isTransformKind(kind):
		for _, op := range ops {
			if op.I >= uint32(len(tuples)) {
				return joinerr.New(joinerr.InvalidArgument, "dispatch", "index %d out of range for %d tuples", op.I, len(tuples))
			}
			if err := applyTransform(kind, &tuples[op.I], op.Params); err != nil {
				return err
			}
		}
	case isJoinAttrKind(kind):
		for _, op := range ops {
			if op.I >= uint32(len(tuples)) {
				return joinerr.New(joinerr.InvalidArgument, "dispatch", "index %d out of range for %d tuples", op.I, len(tuples))
			}
			applyJoinAttr(kind, &tuples[op.I], op.Params)
		}
	default:
		return joinerr.New(joinerr.InvalidArgument, "dispatch", "unknown operator kind %d", kind)
	}
	return nil
}

func checkIndices(n int, i, j uint32) error {
	if i >= uint32(n) || (j != tuple.NoJ && j >= uint32(n)) {
		return joinerr.New(joinerr.InvalidArgument, "dispatch", "index pair (%d, %d) out of range for %d tuples", i, j, n)
	}
	return nil
}
