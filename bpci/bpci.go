// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package bpci implements the authenticated, replay-protected,
// AEAD-encrypted inter-cluster transport that all consensus traffic
// flows over: frame construction/verification, the per-(src,svc)
// nonce tracker, and the X25519 end-to-end key agreement registry that
// derives each frame's AEAD key. Grounded on the teacher's qzmq
// session transport (golang.org/x/crypto/chacha20poly1305 + hkdf for
// AEAD key derivation). Each sender-side derivation uses a fresh
// ephemeral key, and the resulting AEAD key may be reused for several
// frames of that session, with the frame nonce as the AEAD nonce.
package bpci

import (
	"crypto/ed25519"
	"errors"

	"github.com/metanode/bpci-core/encoding"
)

const (
	// ClusterIDSize is the width of src/dst cluster identifiers.
	ClusterIDSize = 16
	// SigSize is the width of an Ed25519 signature.
	SigSize = 64
	// TagSize is the width of the AEAD authentication tag.
	TagSize = 16
	// currentVersion is the only frame version this module emits or accepts.
	currentVersion uint8 = 1
)

// Errors returned by frame construction and verification.
var (
	ErrBadVersion        = errors.New("bpci: unsupported frame version")
	ErrInvalidSignature  = errors.New("bpci: signature does not verify")
	ErrAeadError         = errors.New("bpci: aead seal/open failed")
	ErrServiceKeyNotFound = errors.New("bpci: no static key registered for service")
)

// ClusterID is a 16-byte cluster identifier.
type ClusterID [ClusterIDSize]byte

// FrameHeader is the header-for-signing record: the same fields as Frame
// except that payload_ct is replaced by its length and the aead tag and
// signature are left out, so the signature domain
// is unambiguous and never depends on ciphertext bytes that themselves
// depend on the header as associated data.
type FrameHeader struct {
	Version      uint8
	SrcClusterID ClusterID
	DstClusterID ClusterID
	SvcIDHash    encoding.Hash
	Nonce        uint64
	PohTickRef   encoding.Hash
	PayloadLen   uint32
}

func (h FrameHeader) encode() []byte {
	w := encoding.NewWriter(1 + 16 + 16 + 32 + 8 + 32 + 4)
	w.Byte(h.Version)
	w.Fixed(h.SrcClusterID[:])
	w.Fixed(h.DstClusterID[:])
	w.Fixed(h.SvcIDHash[:])
	w.Uint64(h.Nonce)
	w.Fixed(h.PohTickRef[:])
	w.Uint32(h.PayloadLen)
	return w.Bytes()
}

// signingDigest is the domain hash the frame signature is made over.
// The AEAD associated data is the encoded header itself, not this digest.
func (h FrameHeader) signingDigest() encoding.Hash {
	return encoding.DomainHash(encoding.TagBpciHeader, h.encode())
}

// Frame is a complete authenticated, AEAD-encrypted BPCI frame.
type Frame struct {
	Version      uint8
	SrcClusterID ClusterID
	DstClusterID ClusterID
	SvcIDHash    encoding.Hash
	Nonce        uint64
	PohTickRef   encoding.Hash
	PayloadCt    []byte
	AeadTag      [TagSize]byte
	SigSrc       [SigSize]byte
}

// header returns the FrameHeader-for-signing that f commits to.
func (f Frame) header() FrameHeader {
	return FrameHeader{
		Version:      f.Version,
		SrcClusterID: f.SrcClusterID,
		DstClusterID: f.DstClusterID,
		SvcIDHash:    f.SvcIDHash,
		Nonce:        f.Nonce,
		PohTickRef:   f.PohTickRef,
		PayloadLen:   uint32(len(f.PayloadCt)),
	}
}

// BuildFrame constructs and signs a frame, AEAD-sealing payload under
// aeadKey with the canonical-encoded header as associated data.
func BuildFrame(src, dst ClusterID, svcIDHash encoding.Hash, nonce uint64, pohTickRef encoding.Hash, payload, aeadKey []byte, signingKey ed25519.PrivateKey) (Frame, error) {
	hdr := FrameHeader{
		Version:      currentVersion,
		SrcClusterID: src,
		DstClusterID: dst,
		SvcIDHash:    svcIDHash,
		Nonce:        nonce,
		PohTickRef:   pohTickRef,
		PayloadLen:   uint32(len(payload)),
	}
	digest := hdr.signingDigest()
	sig := ed25519.Sign(signingKey, digest[:])

	ct, tag, err := sealAEAD(aeadKey, nonce, hdr.encode(), payload)
	if err != nil {
		return Frame{}, ErrAeadError
	}

	f := Frame{
		Version:      currentVersion,
		SrcClusterID: src,
		DstClusterID: dst,
		SvcIDHash:    svcIDHash,
		Nonce:        nonce,
		PohTickRef:   pohTickRef,
		PayloadCt:    ct,
	}
	copy(f.AeadTag[:], tag)
	copy(f.SigSrc[:], sig)
	return f, nil
}

// VerifyAndOpen checks nonce freshness against tracker, re-derives the
// signing digest, verifies the Ed25519 signature, then AEAD-opens the
// payload with the re-encoded header as associated data. The tracker's
// last-seen nonce is only advanced on full success; a failure at any
// stage leaves it untouched.
func VerifyAndOpen(f Frame, tracker *NonceTracker, signerPub ed25519.PublicKey, aeadKey []byte) ([]byte, error) {
	if f.Version != currentVersion {
		return nil, ErrBadVersion
	}
	if err := tracker.CheckReplay(f.SrcClusterID, f.SvcIDHash, f.Nonce); err != nil {
		return nil, err
	}

	hdr := f.header()
	digest := hdr.signingDigest()
	if !ed25519.Verify(signerPub, digest[:], f.SigSrc[:]) {
		return nil, ErrInvalidSignature
	}

	plaintext, err := openAEAD(aeadKey, f.Nonce, hdr.encode(), f.PayloadCt, f.AeadTag[:])
	if err != nil {
		return nil, ErrAeadError
	}

	tracker.Advance(f.SrcClusterID, f.SvcIDHash, f.Nonce)
	return plaintext, nil
}
