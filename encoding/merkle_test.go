// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package encoding

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func leafHash(b byte) Hash {
	return DomainHash(TagPohTick, []byte{b})
}

func TestMerkleRootEmpty(t *testing.T) {
	require.True(t, MerkleRoot(TagPohTick, nil).IsZero())
}

func TestMerkleRootOddDuplicatesLastLeaf(t *testing.T) {
	require := require.New(t)
	leaves := []Hash{leafHash(1), leafHash(2), leafHash(3)}
	withDup := []Hash{leafHash(1), leafHash(2), leafHash(3), leafHash(3)}
	require.Equal(MerkleRoot(TagPohTick, withDup), MerkleRoot(TagPohTick, leaves))
}

func TestMerkleProveAndVerify(t *testing.T) {
	require := require.New(t)
	leaves := []Hash{leafHash(1), leafHash(2), leafHash(3), leafHash(4), leafHash(5)}
	root := MerkleRoot(TagPohTick, leaves)

	for i, leaf := range leaves {
		proof := MerkleProve(TagPohTick, leaves, i)
		require.True(MerkleVerify(TagPohTick, leaf, proof, root), "index %d", i)
	}
}

func TestMerkleVerifyFailsAfterMutation(t *testing.T) {
	require := require.New(t)
	leaves := []Hash{leafHash(1), leafHash(2), leafHash(3), leafHash(4)}
	root := MerkleRoot(TagPohTick, leaves)
	proof := MerkleProve(TagPohTick, leaves, 0)

	require.False(MerkleVerify(TagPohTick, leafHash(9), proof, root))
}
