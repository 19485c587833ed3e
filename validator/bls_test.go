// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package validator

import (
	"testing"
)

// PublicKey's result depends entirely on the real BLS12-381 decoder
// reached through github.com/luxfi/crypto/bls; this only exercises
// that the accessor reaches it and returns cleanly (error or key)
// rather than panicking on a zeroed leaf.
func TestLeafPublicKeyDoesNotPanicOnZeroKey(t *testing.T) {
	var leaf Leaf
	_, _ = leaf.PublicKey()
}
