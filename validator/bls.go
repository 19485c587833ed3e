// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package validator

import (
	"github.com/luxfi/crypto/bls"
)

// PublicKey decompresses a leaf's stored BLS public key bytes into a
// typed key usable by a real BLS verifier, the way the teacher's own
// validator directory carries *bls.PublicKey rather than raw bytes.
// This package still treats BLS verification itself as out of scope
// (see DESIGN.md); it only exposes the typed key for callers that do
// implement it.
func (l Leaf) PublicKey() (*bls.PublicKey, error) {
	return bls.PublicKeyFromCompressedBytes(l.BlsPubkey[:])
}
