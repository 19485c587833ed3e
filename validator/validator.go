// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package validator implements the Merkle-mapped validator set: leaves
// keyed by a gap-tolerant index, a lazily rebuilt set hash, and
// inclusion proofs bound to both the Merkle path and the set's epoch.
package validator

import (
	"errors"
	"sort"
	"sync"

	"github.com/metanode/bpci-core/encoding"
)

// Status is a validator's membership lifecycle state.
type Status int

const (
	Active Status = iota
	Inactive
	Slashed
	Exited
)

// Errors returned by Set operations.
var (
	ErrInvalidIndex = errors.New("validator: invalid or duplicate index")
	ErrNotFound     = errors.New("validator: index not found")
	ErrEmptySet     = errors.New("validator: set is empty")
	ErrInvalidProof = errors.New("validator: inclusion proof failed verification")
)

// Leaf is a single validator's committed record. BlsPubkey and
// VrfPubkey are sized to match the key widths used by the BLS/VRF
// material the wider consensus stack carries (48 and 32 bytes
// respectively); this package treats them as opaque key bytes and does
// not itself perform BLS/VRF verification (see DESIGN.md).
type Leaf struct {
	Index        uint32
	BlsPubkey    [48]byte
	VrfPubkey    [32]byte
	Stake        uint64
	Address      string
	Status       Status
	RegisteredAt int64
	LastActive   int64
	Name         string
}

// leafHash is the Merkle leaf for a Leaf: index_le || bls_pub || vrf_pub || stake_le.
func (l Leaf) leafHash() encoding.Hash {
	w := encoding.NewWriter(4 + 48 + 32 + 8)
	w.Uint32(l.Index)
	w.Fixed(l.BlsPubkey[:])
	w.Fixed(l.VrfPubkey[:])
	w.Uint64(l.Stake)
	return encoding.DomainHash(encoding.TagValidatorSet, w.Bytes())
}

// InclusionProof binds a leaf to a specific set root and epoch so that
// a proof generated before an epoch bump cannot be replayed as valid
// afterward even if the Merkle path still happens to check out.
type InclusionProof struct {
	ValidatorIndex uint32
	LeafHash       encoding.Hash
	MerkleProof    encoding.MerkleProof
	SetHash        encoding.Hash
	Epoch          uint64
}

// Set is a Merkle-mapped validator set keyed by gap-tolerant index.
// Every mutation invalidates the cached tree and hash; Hash() rebuilds
// lazily on next call.
type Set struct {
	mu       sync.RWMutex
	epoch    uint64
	leaves   map[uint32]Leaf
	order    []uint32 // cached ascending index order, rebuilt with the tree
	dirty    bool
	treeHash encoding.Hash
}

// New constructs an empty validator set for the given epoch.
func New(epoch uint64) *Set {
	return &Set{
		epoch:  epoch,
		leaves: make(map[uint32]Leaf),
		dirty:  true,
	}
}

// Add inserts leaf at its own index. The index must not already be
// occupied.
func (s *Set) Add(leaf Leaf) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.leaves[leaf.Index]; exists {
		return ErrInvalidIndex
	}
	s.leaves[leaf.Index] = leaf
	s.dirty = true
	return nil
}

// Remove deletes the leaf at index and returns it. Removal leaves a gap
// rather than reindexing the remaining leaves.
func (s *Set) Remove(index uint32) (Leaf, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	leaf, ok := s.leaves[index]
	if !ok {
		return Leaf{}, ErrNotFound
	}
	delete(s.leaves, index)
	s.dirty = true
	return leaf, nil
}

// Get returns the leaf at index.
func (s *Set) Get(index uint32) (Leaf, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	leaf, ok := s.leaves[index]
	if !ok {
		return Leaf{}, ErrNotFound
	}
	return leaf, nil
}

// Len returns the number of leaves in the set, whatever their status.
// Removed indices are absent from the map, so gaps are not counted.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.leaves)
}

// Epoch returns the set's current epoch.
func (s *Set) Epoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// SetEpoch bumps the set's epoch, which invalidates every previously
// issued inclusion proof even though the underlying leaves and Merkle
// root are unchanged.
func (s *Set) SetEpoch(epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch = epoch
}

// rebuildLocked recomputes the ascending-index leaf order and the
// Merkle root, clearing the dirty flag. Caller holds the write lock or
// has already upgraded to one.
func (s *Set) rebuildLocked() {
	order := make([]uint32, 0, len(s.leaves))
	for idx := range s.leaves {
		order = append(order, idx)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	leafHashes := make([]encoding.Hash, len(order))
	for i, idx := range order {
		leafHashes[i] = s.leaves[idx].leafHash()
	}
	s.order = order
	s.treeHash = encoding.MerkleRoot(encoding.TagValidatorSet, leafHashes)
	s.dirty = false
}

// Hash returns the Merkle root of the set in ascending-index order,
// rebuilding the cached tree first if the set has been mutated since
// the last call.
func (s *Set) Hash() encoding.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dirty {
		s.rebuildLocked()
	}
	return s.treeHash
}

// GenerateInclusionProof builds a proof that the leaf at index belongs
// to the set's current root, bound to the current epoch.
func (s *Set) GenerateInclusionProof(index uint32) (InclusionProof, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.leaves) == 0 {
		return InclusionProof{}, ErrEmptySet
	}
	leaf, ok := s.leaves[index]
	if !ok {
		return InclusionProof{}, ErrNotFound
	}
	if s.dirty {
		s.rebuildLocked()
	}

	pos := -1
	leafHashes := make([]encoding.Hash, len(s.order))
	for i, idx := range s.order {
		leafHashes[i] = s.leaves[idx].leafHash()
		if idx == index {
			pos = i
		}
	}
	proof := encoding.MerkleProve(encoding.TagValidatorSet, leafHashes, pos)
	return InclusionProof{
		ValidatorIndex: index,
		LeafHash:       leaf.leafHash(),
		MerkleProof:    proof,
		SetHash:        s.treeHash,
		Epoch:          s.epoch,
	}, nil
}

// VerifyInclusionProof checks that proof's leaf hash re-derives from
// the current leaf at ValidatorIndex, that its epoch matches the set's
// current epoch exactly, and that the Merkle path checks out against
// the current root. Any epoch mismatch (including one produced by a
// later epoch bump) fails the proof even if the path would otherwise
// verify, closing the replay angle a bare Merkle check would leave
// open.
func (s *Set) VerifyInclusionProof(proof InclusionProof) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if proof.Epoch != s.epoch {
		return false
	}
	leaf, ok := s.leaves[proof.ValidatorIndex]
	if !ok {
		return false
	}
	if leaf.leafHash() != proof.LeafHash {
		return false
	}
	if s.dirty {
		s.rebuildLocked()
	}
	if proof.SetHash != s.treeHash {
		return false
	}
	return encoding.MerkleVerify(encoding.TagValidatorSet, proof.LeafHash, proof.MerkleProof, s.treeHash)
}

// ActiveLeaves returns the leaves currently in Active status, in
// ascending index order, used by consensus components to derive the
// active set size for Byzantine-quorum arithmetic.
func (s *Set) ActiveLeaves() []Leaf {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dirty {
		s.rebuildLocked()
	}
	out := make([]Leaf, 0, len(s.order))
	for _, idx := range s.order {
		if l := s.leaves[idx]; l.Status == Active {
			out = append(out, l)
		}
	}
	return out
}
