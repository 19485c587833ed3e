// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bpci

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/metanode/bpci-core/encoding"
)

// X25519KeySize is the width of an X25519 public or secret key.
const X25519KeySize = 32

// aeadKeyInfoPrefix is the fixed prefix of the HKDF info parameter,
// which is "BPCI-AEAD" || svc_id_hash.
const aeadKeyInfoPrefix = "BPCI-AEAD"

var (
	ErrInvalidPublicKey  = errors.New("bpci: invalid x25519 public key")
	ErrKeyDerivationError = errors.New("bpci: key derivation failed")
)

// StaticKeyPair is a service's long-term X25519 identity.
type StaticKeyPair struct {
	Secret [X25519KeySize]byte
	Public [X25519KeySize]byte
}

// GenerateStaticKeyPair creates a fresh X25519 static identity.
func GenerateStaticKeyPair() (StaticKeyPair, error) {
	var kp StaticKeyPair
	if _, err := rand.Read(kp.Secret[:]); err != nil {
		return StaticKeyPair{}, err
	}
	pub, err := curve25519.X25519(kp.Secret[:], curve25519.Basepoint)
	if err != nil {
		return StaticKeyPair{}, err
	}
	copy(kp.Public[:], pub)
	return kp, nil
}

// sessionKey caches a derived AEAD key for a given (src, svc, ephemeral
// peer public) tuple so a receiver need not re-derive it per frame
// within the same session.
type sessionKey struct {
	key []byte
}

// Registry is the per-cluster E2E key-agreement directory: peer static
// public keys for every known service, plus this cluster's own static
// keypairs for services it owns locally, plus a bounded session-key
// cache keyed by (src_cluster_id, svc_id_hash, ephemeral_pub).
//
// The reference transport's cache grows without bound (spec.md §9);
// this module caps it at maxSessions entries and evicts the oldest
// inserted entry on overflow. CleanupSessionKeys additionally clears
// the whole cache on demand.
type Registry struct {
	mu          sync.RWMutex
	peerStatic  map[encoding.Hash][X25519KeySize]byte
	ownStatic   map[encoding.Hash]StaticKeyPair
	sessions    map[sessionCacheKey]sessionKey
	sessionOrder []sessionCacheKey
	maxSessions int
}

type sessionCacheKey struct {
	src ClusterID
	svc encoding.Hash
	eph [X25519KeySize]byte
}

// NewRegistry returns an empty registry capped at maxSessions cached
// session keys (0 disables caching).
func NewRegistry(maxSessions int) *Registry {
	return &Registry{
		peerStatic:  make(map[encoding.Hash][X25519KeySize]byte),
		ownStatic:   make(map[encoding.Hash]StaticKeyPair),
		sessions:    make(map[sessionCacheKey]sessionKey),
		maxSessions: maxSessions,
	}
}

// RegisterPeerStatic records svcIDHash's static public key for a
// remote-owned service.
func (r *Registry) RegisterPeerStatic(svcIDHash encoding.Hash, pub [X25519KeySize]byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peerStatic[svcIDHash] = pub
}

// RegisterOwnStatic records svcIDHash's static keypair for a
// locally-owned service.
func (r *Registry) RegisterOwnStatic(svcIDHash encoding.Hash, kp StaticKeyPair) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ownStatic[svcIDHash] = kp
	r.peerStatic[svcIDHash] = kp.Public
}

func deriveAeadKey(shared []byte, svcIDHash encoding.Hash) ([]byte, error) {
	info := append([]byte(aeadKeyInfoPrefix), svcIDHash[:]...)
	kdf := hkdf.New(sha256.New, shared, nil, info)
	key := make([]byte, X25519KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, ErrKeyDerivationError
	}
	return key, nil
}

// SenderDerive performs the sender side of E2E key agreement for
// svcIDHash: fetch the peer's static public key, generate a fresh
// ephemeral X25519 secret, compute shared = ephemeral . peer_static,
// and derive the frame's AEAD key via HKDF-SHA256. Each call generates
// a new ephemeral key, so every session gets its own AEAD key and no
// ephemeral secret is reused. The receiver derives the same key from
// its static secret and the ephemeral public key alone, so anyone
// holding the recipient's static secret can re-derive the key of any
// recorded past session.
func (r *Registry) SenderDerive(svcIDHash encoding.Hash) (aeadKey []byte, ephemeralPublic [X25519KeySize]byte, err error) {
	r.mu.RLock()
	peerPub, ok := r.peerStatic[svcIDHash]
	r.mu.RUnlock()
	if !ok {
		return nil, [X25519KeySize]byte{}, ErrServiceKeyNotFound
	}

	var ephemeralSecret [X25519KeySize]byte
	if _, err := rand.Read(ephemeralSecret[:]); err != nil {
		return nil, [X25519KeySize]byte{}, fmt.Errorf("bpci: generate ephemeral secret: %w", err)
	}
	ephPub, err := curve25519.X25519(ephemeralSecret[:], curve25519.Basepoint)
	if err != nil {
		return nil, [X25519KeySize]byte{}, ErrInvalidPublicKey
	}
	copy(ephemeralPublic[:], ephPub)

	shared, err := curve25519.X25519(ephemeralSecret[:], peerPub[:])
	if err != nil {
		return nil, [X25519KeySize]byte{}, ErrInvalidPublicKey
	}
	aeadKey, err = deriveAeadKey(shared, svcIDHash)
	if err != nil {
		return nil, [X25519KeySize]byte{}, err
	}
	return aeadKey, ephemeralPublic, nil
}

// ReceiverDerive performs the receiver side: shared = own_static .
// ephemeral_peer, then the same HKDF derivation. The result is cached
// under (src, svcIDHash, ephemeralPeer) so repeat verification within
// a session need not recompute the X25519 product.
func (r *Registry) ReceiverDerive(src ClusterID, svcIDHash encoding.Hash, ephemeralPeer [X25519KeySize]byte) ([]byte, error) {
	cacheKey := sessionCacheKey{src: src, svc: svcIDHash, eph: ephemeralPeer}

	r.mu.RLock()
	if cached, ok := r.sessions[cacheKey]; ok {
		r.mu.RUnlock()
		return cached.key, nil
	}
	own, ok := r.ownStatic[svcIDHash]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrServiceKeyNotFound
	}

	shared, err := curve25519.X25519(own.Secret[:], ephemeralPeer[:])
	if err != nil {
		return nil, ErrInvalidPublicKey
	}
	aeadKey, err := deriveAeadKey(shared, svcIDHash)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cacheSessionLocked(cacheKey, aeadKey)
	r.mu.Unlock()
	return aeadKey, nil
}

func (r *Registry) cacheSessionLocked(key sessionCacheKey, aeadKey []byte) {
	if r.maxSessions <= 0 {
		return
	}
	if _, exists := r.sessions[key]; !exists {
		if len(r.sessionOrder) >= r.maxSessions {
			oldest := r.sessionOrder[0]
			r.sessionOrder = r.sessionOrder[1:]
			delete(r.sessions, oldest)
		}
		r.sessionOrder = append(r.sessionOrder, key)
	}
	r.sessions[key] = sessionKey{key: aeadKey}
}

// CleanupSessionKeys evicts every cached session key. Exposed for
// callers that want a hard reset; ordinary growth is already bounded
// by maxSessions in cacheSessionLocked, which evicts the oldest
// inserted entry (a cache hit does not refresh an entry's position).
func (r *Registry) CleanupSessionKeys() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = make(map[sessionCacheKey]sessionKey)
	r.sessionOrder = nil
}
