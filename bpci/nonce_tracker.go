// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bpci

import (
	"fmt"
	"sync"
	"time"

	"github.com/metanode/bpci-core/encoding"
)

// ReplayError reports a rejected replay: the nonce that was seen and
// the last nonce already on file for that (src, svc) pair.
type ReplayError struct {
	Seen uint64
	Last uint64
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("bpci: replay detected: nonce %d <= last accepted nonce %d", e.Seen, e.Last)
}

type trackerKey struct {
	src ClusterID
	svc encoding.Hash
}

type trackerEntry struct {
	lastNonce  uint64
	lastSeenAt int64 // unix seconds, for the age-based sweep
}

// NonceTracker enforces strict ordering: for a given (src_cluster_id,
// svc_id_hash), a frame is accepted only if its nonce is strictly
// greater than the last accepted nonce. There is no tolerance window
// (spec.md §9's open question): the struct deliberately does not carry
// a tolerance_window field since the verification logic would ignore
// it anyway, and carrying a dead field would misrepresent the
// contract to callers.
type NonceTracker struct {
	mu      sync.RWMutex
	entries map[trackerKey]*trackerEntry
}

// NewNonceTracker returns an empty tracker.
func NewNonceTracker() *NonceTracker {
	return &NonceTracker{entries: make(map[trackerKey]*trackerEntry)}
}

// CheckReplay returns a *ReplayError if nonce is not strictly greater
// than the last nonce accepted for (src, svc). It does not mutate
// tracker state; call Advance after the frame otherwise verifies.
func (t *NonceTracker) CheckReplay(src ClusterID, svc encoding.Hash, nonce uint64) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	key := trackerKey{src: src, svc: svc}
	entry, ok := t.entries[key]
	if !ok {
		return nil
	}
	if nonce <= entry.lastNonce {
		return &ReplayError{Seen: nonce, Last: entry.lastNonce}
	}
	return nil
}

// Advance records nonce as the last accepted nonce for (src, svc).
// Callers must only call this after a frame has fully verified;
// Advance never itself checks ordering.
func (t *NonceTracker) Advance(src ClusterID, svc encoding.Hash, nonce uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := trackerKey{src: src, svc: svc}
	entry, ok := t.entries[key]
	if !ok {
		entry = &trackerEntry{}
		t.entries[key] = entry
	}
	entry.lastNonce = nonce
	entry.lastSeenAt = time.Now().Unix()
}

// LastNonce returns the last accepted nonce for (src, svc) and whether
// any entry exists yet.
func (t *NonceTracker) LastNonce(src ClusterID, svc encoding.Hash) (uint64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entry, ok := t.entries[trackerKey{src: src, svc: svc}]
	if !ok {
		return 0, false
	}
	return entry.lastNonce, true
}

// CleanupOldNonces evicts any tracker entry whose last-seen timestamp
// is older than maxAgeS seconds relative to now, bounding the map's
// growth the way spec.md §5's backpressure model requires.
func (t *NonceTracker) CleanupOldNonces(now time.Time, maxAgeS int64) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := now.Unix() - maxAgeS
	removed := 0
	for key, entry := range t.entries {
		if entry.lastSeenAt < cutoff {
			delete(t.entries, key)
			removed++
		}
	}
	return removed
}
