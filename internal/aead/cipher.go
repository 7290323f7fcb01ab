// Package aead implements the confidentiality collaborator (spec §6): an
// AES-CTR encrypt/decrypt pair applied to every field of a tuple outside
// its is_encrypted flag and nonce, using a monotone 64-bit nonce counter.
// The join engine's correctness never depends on this package; it is an
// external collaborator the dispatcher calls through a small interface.
package aead

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"sync/atomic"

	"github.com/rawblock/oblivious-band-join/internal/joinerr"
	"github.com/rawblock/oblivious-band-join/pkg/tuple"
)

// ErrAlreadyEncrypted and ErrNotEncrypted are the causes joinerr.CryptoFailure
// wraps for Encrypt/Decrypt misuse (spec §6).
var (
	ErrAlreadyEncrypted = errors.New("aead: tuple already encrypted")
	ErrNotEncrypted     = errors.New("aead: tuple not encrypted")
)

// Cipher is the confidentiality collaborator: a 128-bit AES key materialized
// once and never exported, plus the monotone nonce counter spec §5 calls the
// only other piece of global mutable state besides the merge state.
type Cipher struct {
	block   cipher.Block
	counter uint64
}

// NewCipher constructs a Cipher from a 16-byte AES-128 key.
func NewCipher(key [16]byte) (*Cipher, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, joinerr.Wrap(joinerr.CryptoFailure, "aead.NewCipher", err)
	}
	return &Cipher{block: block}, nil
}

// payload is the fixed-width wire shape of everything in a Tuple subject to
// encryption — every field except IsEncrypted and Nonce themselves.
type payload struct {
	FieldType       uint8
	EqualityType    uint8
	_               [6]byte // align the int64 fields that follow
	JoinAttr        int64
	OriginalIndex   int64
	LocalMult       int64
	FinalMult       int64
	ForeignSum      int64
	LocalCumsum     int64
	LocalInterval   int64
	ForeignInterval int64
	LocalWeight     int64
	CopyIndex       int64
	AlignmentKey    int64
	DstIdx          int64
	Index           int64
	Attributes      [tuple.MaxAttributes]int64
}

func toPayload(t *tuple.Tuple) payload {
	return payload{
		FieldType:       uint8(t.FieldType),
		EqualityType:    uint8(t.EqualityType),
		JoinAttr:        t.JoinAttr,
		OriginalIndex:   t.OriginalIndex,
		LocalMult:       t.LocalMult,
		FinalMult:       t.FinalMult,
		ForeignSum:      t.ForeignSum,
		LocalCumsum:     t.LocalCumsum,
		LocalInterval:   t.LocalInterval,
		ForeignInterval: t.ForeignInterval,
		LocalWeight:     t.LocalWeight,
		CopyIndex:       t.CopyIndex,
		AlignmentKey:    t.AlignmentKey,
		DstIdx:          t.DstIdx,
		Index:           t.Index,
		Attributes:      t.Attributes,
	}
}

func fromPayload(t *tuple.Tuple, p payload) {
	t.FieldType = tuple.FieldType(p.FieldType)
	t.EqualityType = tuple.EqualityType(p.EqualityType)
	t.JoinAttr = p.JoinAttr
	t.OriginalIndex = p.OriginalIndex
	t.LocalMult = p.LocalMult
	t.FinalMult = p.FinalMult
	t.ForeignSum = p.ForeignSum
	t.LocalCumsum = p.LocalCumsum
	t.LocalInterval = p.LocalInterval
	t.ForeignInterval = p.ForeignInterval
	t.LocalWeight = p.LocalWeight
	t.CopyIndex = p.CopyIndex
	t.AlignmentKey = p.AlignmentKey
	t.DstIdx = p.DstIdx
	t.Index = p.Index
	t.Attributes = p.Attributes
}

// ivFor builds the 16-byte CTR starting block: the high 8 bytes carry the
// nonce, the low 8 bytes are the block counter, which starts at zero (spec
// §6) and is incremented internally by cipher.NewCTR as it consumes blocks.
func ivFor(nonce uint64) []byte {
	iv := make([]byte, aes.BlockSize)
	binary.BigEndian.PutUint64(iv[:8], nonce)
	return iv
}

func marshal(t *tuple.Tuple) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, toPayload(t)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unmarshal(t *tuple.Tuple, data []byte) error {
	var p payload
	if err := binary.Read(bytes.NewReader(data), binary.BigEndian, &p); err != nil {
		return err
	}
	fromPayload(t, p)
	return nil
}

// Encrypt encrypts every field of t outside IsEncrypted/Nonce in place,
// drawing a fresh nonce from the monotone counter. Fails with
// ErrAlreadyEncrypted if t.IsEncrypted is already set.
func (c *Cipher) Encrypt(t *tuple.Tuple) error {
	if t.IsEncrypted {
		return joinerr.Wrap(joinerr.CryptoFailure, "aead.Encrypt", ErrAlreadyEncrypted)
	}
	nonce := atomic.AddUint64(&c.counter, 1) - 1

	buf, err := marshal(t)
	if err != nil {
		return joinerr.Wrap(joinerr.CryptoFailure, "aead.Encrypt", err)
	}
	stream := cipher.NewCTR(c.block, ivFor(nonce))
	stream.XORKeyStream(buf, buf)
	if err := unmarshal(t, buf); err != nil {
		return joinerr.Wrap(joinerr.CryptoFailure, "aead.Encrypt", err)
	}
	t.Nonce = nonce
	t.IsEncrypted = true
	return nil
}

// Decrypt reverses Encrypt using the tuple's stored nonce. Fails with
// ErrNotEncrypted if t.IsEncrypted is unset.
func (c *Cipher) Decrypt(t *tuple.Tuple) error {
	if !t.IsEncrypted {
		return joinerr.Wrap(joinerr.CryptoFailure, "aead.Decrypt", ErrNotEncrypted)
	}
	buf, err := marshal(t)
	if err != nil {
		return joinerr.Wrap(joinerr.CryptoFailure, "aead.Decrypt", err)
	}
	stream := cipher.NewCTR(c.block, ivFor(t.Nonce))
	stream.XORKeyStream(buf, buf)
	if err := unmarshal(t, buf); err != nil {
		return joinerr.Wrap(joinerr.CryptoFailure, "aead.Decrypt", err)
	}
	t.IsEncrypted = false
	return nil
}
