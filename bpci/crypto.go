// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bpci

import (
	"golang.org/x/crypto/chacha20poly1305"
)

// frameNonce expands the frame's u64 anti-replay counter into the
// 24-byte XChaCha20-Poly1305 nonce. Since the counter is required to
// strictly increase per (src, svc) and a session's AEAD key is scoped
// to that same pair, the expanded nonce never repeats under a given
// key.
func frameNonce(counter uint64) []byte {
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	for i := 0; i < 8; i++ {
		nonce[i] = byte(counter >> (8 * i))
	}
	return nonce
}

// sealAEAD seals payload under key (must be 32 bytes) with aad as
// associated data, returning ciphertext and tag split apart so the
// wire frame can carry them as separate fields. counter is the
// frame's anti-replay nonce, expanded into the AEAD nonce.
func sealAEAD(key []byte, counter uint64, aad, plaintext []byte) (ciphertext, tag []byte, err error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, nil, err
	}
	sealed := aead.Seal(nil, frameNonce(counter), plaintext, aad)
	ctLen := len(sealed) - aead.Overhead()
	return sealed[:ctLen], sealed[ctLen:], nil
}

// openAEAD reverses sealAEAD.
func openAEAD(key []byte, counter uint64, aad, ciphertext, tag []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	sealed := append(append([]byte{}, ciphertext...), tag...)
	return aead.Open(nil, frameNonce(counter), sealed, aad)
}
