// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package encoding implements the canonical deterministic byte encoding
// and domain-separated hashing that every other component hashes
// records through. Two encodings of structurally equal values are
// byte-identical; field order is part of the wire contract, not an
// implementation detail.
package encoding

import (
	"encoding/binary"

	"github.com/zeebo/blake3"
)

// HashSize is the width of every domain-separated hash in this system.
const HashSize = 32

// Hash is an opaque 32-byte digest.
type Hash [HashSize]byte

// IsZero reports whether h is the all-zero hash (used as the genesis
// prev_hash sentinel).
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Bytes returns a copy of the hash as a byte slice.
func (h Hash) Bytes() []byte {
	b := make([]byte, HashSize)
	copy(b, h[:])
	return b
}

// Domain tags. Single-byte category separators; a tag collision across
// categories is a contract violation, so this enumeration is closed.
const (
	TagHeader              byte = 0x10
	TagPohTick             byte = 0x11
	TagTickDerivation      byte = 0x12
	TagValidatorSet        byte = 0x13
	TagBpciHeader          byte = 0x14
	TagDiversityCommitment byte = 0x15
	TagMempoolTxEncryption byte = 0x21
	TagMempoolReveal       byte = 0x22
	TagMempoolEpochKey     byte = 0x23
	TagMempoolRecovery     byte = 0x24
)

// DomainHash computes the 32-byte domain-separated hash of bytes under
// tag: H(tag || bytes). Two different tags applied to the same bytes
// never collide (up to the underlying hash function's collision
// resistance), so records from different categories can never be
// confused even if their encodings happen to coincide.
func DomainHash(tag byte, data []byte) Hash {
	h := blake3.New()
	h.Write([]byte{tag})
	h.Write(data)
	var out Hash
	copy(out[:], h.Sum(nil)[:HashSize])
	return out
}

// PlainHash computes H(bytes) with no domain-tag prefix. The nonce
// chain's running value (§3: NC <- H(NC || n_le)) is defined over the
// bare hash rather than a domain-tagged one, since it folds the
// previous NC in as its own first-class input and is never compared
// across categories the way record hashes are.
func PlainHash(data []byte) Hash {
	h := blake3.New()
	h.Write(data)
	var out Hash
	copy(out[:], h.Sum(nil)[:HashSize])
	return out
}

// Writer accumulates a canonical encoding. Fields must be written in
// the order the record's contract specifies; Writer never reorders or
// pads beyond the explicit length prefixes below.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with the given initial capacity hint.
func NewWriter(sizeHint int) *Writer {
	return &Writer{buf: make([]byte, 0, sizeHint)}
}

// Bytes returns the accumulated canonical encoding.
func (w *Writer) Bytes() []byte { return w.buf }

// Byte appends a single byte.
func (w *Writer) Byte(b byte) *Writer {
	w.buf = append(w.buf, b)
	return w
}

// Uint32 appends a u32 in little-endian order.
func (w *Writer) Uint32(v uint32) *Writer {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
	return w
}

// Uint64 appends a u64 in little-endian order.
func (w *Writer) Uint64(v uint64) *Writer {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
	return w
}

// Int64 appends an i64 (timestamps) in little-endian order.
func (w *Writer) Int64(v int64) *Writer {
	return w.Uint64(uint64(v))
}

// Fixed appends raw fixed-width bytes verbatim (no length prefix):
// used for hashes, public keys, and other fixed-size fields.
func (w *Writer) Fixed(b []byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

// VarBytes appends a length-prefixed (u32 LE length) variable byte field.
func (w *Writer) VarBytes(b []byte) *Writer {
	w.Uint32(uint32(len(b)))
	w.buf = append(w.buf, b...)
	return w
}

// String appends a length-prefixed (u32 LE length) UTF-8 string.
func (w *Writer) String(s string) *Writer {
	return w.VarBytes([]byte(s))
}

// Bool appends a single-byte boolean.
func (w *Writer) Bool(v bool) *Writer {
	if v {
		return w.Byte(1)
	}
	return w.Byte(0)
}
