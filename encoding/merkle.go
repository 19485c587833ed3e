// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package encoding

// MerkleRoot computes a binary Merkle root over leaves in the given
// order. An odd level duplicates its last node rather than promoting it
// unpaired, so every internal node always combines exactly two
// children. An empty leaf set returns the zero hash.
func MerkleRoot(tag byte, leaves []Hash) Hash {
	if len(leaves) == 0 {
		return Hash{}
	}
	level := make([]Hash, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]Hash, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, DomainHash(tag, append(level[i].Bytes(), level[i+1].Bytes()...)))
		}
		level = next
	}
	return level[0]
}

// MerkleProof is an inclusion proof: the sibling hash at each level from
// leaf to root, plus a left/right flag for each sibling.
type MerkleProof struct {
	Siblings  []Hash
	LeftSides []bool // true if the sibling at this level is to the left of the path node
}

// MerkleProve builds an inclusion proof for leaves[index] against the
// tree formed by MerkleRoot(tag, leaves).
func MerkleProve(tag byte, leaves []Hash, index int) MerkleProof {
	var proof MerkleProof
	level := make([]Hash, len(leaves))
	copy(level, leaves)
	idx := index

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		if idx%2 == 0 {
			proof.Siblings = append(proof.Siblings, level[idx+1])
			proof.LeftSides = append(proof.LeftSides, false)
		} else {
			proof.Siblings = append(proof.Siblings, level[idx-1])
			proof.LeftSides = append(proof.LeftSides, true)
		}

		next := make([]Hash, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = DomainHash(tag, append(level[i].Bytes(), level[i+1].Bytes()...))
		}
		level = next
		idx /= 2
	}
	return proof
}

// MerkleVerify verifies proof against root for the given leaf hash.
func MerkleVerify(tag byte, leaf Hash, proof MerkleProof, root Hash) bool {
	cur := leaf
	for i, sibling := range proof.Siblings {
		if proof.LeftSides[i] {
			cur = DomainHash(tag, append(sibling.Bytes(), cur.Bytes()...))
		} else {
			cur = DomainHash(tag, append(cur.Bytes(), sibling.Bytes()...))
		}
	}
	return cur == root
}
