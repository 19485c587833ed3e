// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package mempool implements the leader-encrypted mempool: encrypt-to-
// leader submission, timed reveal, epoch key rotation, lost-key
// recovery via historical epoch keys, a per-sender DoS rate limiter,
// and a periodic stuck/expired sweep. Grounded on the teacher's qzmq
// session AEAD (golang.org/x/crypto/chacha20poly1305 + hkdf) generalized
// to a per-transaction rather than per-session key schedule, and on
// metrics.Mempool for the observability surface spec.md §6 names.
package mempool

import (
	"github.com/metanode/bpci-core/encoding"
)

// TxStatus is a mempool entry's lifecycle state.
type TxStatus int

const (
	Encrypted TxStatus = iota
	Revealed
	Stuck
	Recovered
	Expired
)

// Tx is a plaintext mempool transaction.
type Tx struct {
	TxID      encoding.Hash
	Sender    string
	Recipient string
	Amount    uint64
	Fee       uint64
	Nonce     uint64
	Timestamp int64
}

func (t Tx) encodeForID() []byte {
	w := encoding.NewWriter(len(t.Sender) + len(t.Recipient) + 24)
	w.String(t.Sender)
	w.String(t.Recipient)
	w.Uint64(t.Amount)
	w.Uint64(t.Fee)
	w.Uint64(t.Nonce)
	return w.Bytes()
}

// computeTxID derives tx_id = blake3(sender || recipient || amount ||
// fee || nonce). This is a bare hash, not a domain-tagged one: spec.md
// §3 defines it directly over the concatenated fields.
func computeTxID(t Tx) encoding.Hash {
	return encoding.PlainHash(t.encodeForID())
}

func (t Tx) encodeWithCreatedAt(createdAt int64) []byte {
	w := encoding.NewWriter(len(t.Sender) + len(t.Recipient) + 32)
	w.Fixed(t.TxID[:])
	w.String(t.Sender)
	w.String(t.Recipient)
	w.Uint64(t.Amount)
	w.Uint64(t.Fee)
	w.Uint64(t.Nonce)
	w.Int64(t.Timestamp)
	w.Int64(createdAt)
	return w.Bytes()
}

// EncryptedTx is an AEAD-sealed transaction awaiting reveal.
type EncryptedTx struct {
	TxID               encoding.Hash
	LeaderPublicKey    [32]byte
	EphemeralPublicKey [32]byte
	Ciphertext         []byte
	Nonce              [12]byte
	CreatedAt          int64
	RevealDeadline     int64
	EpochID            uint64
}

// EpochKey is a leader identity valid for a bounded lifetime. Prior
// epoch keys are retained (Active=false) so the recovery path can
// still search them.
type EpochKey struct {
	EpochID   uint64
	Secret    [32]byte
	Public    [32]byte
	CreatedAt int64
	ExpiresAt int64
	Active    bool
}

// RecoveryRecord tracks lost-key recovery attempts for a stuck tx.
type RecoveryRecord struct {
	TxID        encoding.Hash
	Attempts    int
	LastAttempt int64
	StuckSince  int64
}
