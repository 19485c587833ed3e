// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package header implements the canonical block header record: its
// deterministic encoding/hash and the genesis/successor validation
// invariants that bind one header to its parent.
package header

import (
	"errors"

	"github.com/metanode/bpci-core/encoding"
)

// Mode is the consensus mode recorded in the header. This module only
// ever produces IBFT headers; the field exists so the wire format can
// later admit other modes without a layout change.
type Mode uint8

const ModeIBFT Mode = 1

const currentVersion uint8 = 1

// Errors returned by header validation.
var (
	ErrBadVersion       = errors.New("header: unsupported version")
	ErrBadMode          = errors.New("header: unsupported consensus mode")
	ErrBadGenesis       = errors.New("header: genesis header must have height 0, zero prev_hash, round 0")
	ErrBadHeight        = errors.New("header: height must be exactly prev.height+1")
	ErrBadPrevHash      = errors.New("header: prev_hash does not bind to prev.hash()")
	ErrBadTimestamp     = errors.New("header: timestamp must strictly increase over prev")
)

// Header is the canonical block header record. Immutable after
// construction: callers needing a modified header build a new one.
type Header struct {
	Version          uint8
	Height           uint64
	PrevHash         encoding.Hash
	PohRoot          encoding.Hash
	ReceiptsRoot     encoding.Hash
	DaRoot           encoding.Hash
	XcmpRoot         encoding.Hash
	ValidatorSetHash encoding.Hash
	Mode             Mode
	Round            uint64
	Timestamp        int64

	hash      encoding.Hash
	hashValid bool
}

// Config carries the fields a caller supplies when constructing a
// non-genesis header; Height/PrevHash are derived from the parent by
// New rather than supplied directly, so callers cannot accidentally
// desynchronize them.
type Config struct {
	PohRoot          encoding.Hash
	ReceiptsRoot     encoding.Hash
	DaRoot           encoding.Hash
	XcmpRoot         encoding.Hash
	ValidatorSetHash encoding.Hash
	Round            uint64
	Timestamp        int64
}

// Genesis constructs the genesis header: height 0, zero prev_hash,
// round 0.
func Genesis(cfg Config) Header {
	h := Header{
		Version:          currentVersion,
		Height:           0,
		PrevHash:         encoding.Hash{},
		PohRoot:          cfg.PohRoot,
		ReceiptsRoot:     cfg.ReceiptsRoot,
		DaRoot:           cfg.DaRoot,
		XcmpRoot:         cfg.XcmpRoot,
		ValidatorSetHash: cfg.ValidatorSetHash,
		Mode:             ModeIBFT,
		Round:            0,
		Timestamp:        cfg.Timestamp,
	}
	h.hash = computeHash(h)
	h.hashValid = true
	return h
}

// New constructs the successor header to prev: height = prev.Height+1,
// prev_hash = prev.Hash().
func New(prev Header, cfg Config) Header {
	h := Header{
		Version:          currentVersion,
		Height:           prev.Height + 1,
		PrevHash:         prev.Hash(),
		PohRoot:          cfg.PohRoot,
		ReceiptsRoot:     cfg.ReceiptsRoot,
		DaRoot:           cfg.DaRoot,
		XcmpRoot:         cfg.XcmpRoot,
		ValidatorSetHash: cfg.ValidatorSetHash,
		Mode:             ModeIBFT,
		Round:            cfg.Round,
		Timestamp:        cfg.Timestamp,
	}
	h.hash = computeHash(h)
	h.hashValid = true
	return h
}

func (h Header) encode() []byte {
	w := encoding.NewWriter(1 + 8 + 32*6 + 1 + 8 + 8)
	w.Byte(h.Version)
	w.Uint64(h.Height)
	w.Fixed(h.PrevHash[:])
	w.Fixed(h.PohRoot[:])
	w.Fixed(h.ReceiptsRoot[:])
	w.Fixed(h.DaRoot[:])
	w.Fixed(h.XcmpRoot[:])
	w.Fixed(h.ValidatorSetHash[:])
	w.Byte(byte(h.Mode))
	w.Uint64(h.Round)
	w.Int64(h.Timestamp)
	return w.Bytes()
}

func computeHash(h Header) encoding.Hash {
	return encoding.DomainHash(encoding.TagHeader, h.encode())
}

// Hash returns header_hash = domain_hash(HEADER, enc(header)), computed
// once at construction time since Header is immutable thereafter.
func (h Header) Hash() encoding.Hash {
	if h.hashValid {
		return h.hash
	}
	return computeHash(h)
}

// Validate enforces the fields that are checkable from the header
// alone: version, mode, and (for a genesis header) the zero-height /
// zero-prev-hash / zero-round invariants.
func (h Header) Validate() error {
	if h.Version != currentVersion {
		return ErrBadVersion
	}
	if h.Mode != ModeIBFT {
		return ErrBadMode
	}
	if h.Height == 0 {
		if !h.PrevHash.IsZero() || h.Round != 0 {
			return ErrBadGenesis
		}
	}
	return nil
}

// ValidateChainContinuity enforces the successor invariants against
// prev: height monotonicity, prev_hash binding to prev.Hash(), and
// strict timestamp monotonicity.
func (h Header) ValidateChainContinuity(prev Header) error {
	if h.Height != prev.Height+1 {
		return ErrBadHeight
	}
	if h.PrevHash != prev.Hash() {
		return ErrBadPrevHash
	}
	if h.Timestamp <= prev.Timestamp {
		return ErrBadTimestamp
	}
	return nil
}
