// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package poh

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/metanode/bpci-core/encoding"
)

func TestChainGenesisAndTick(t *testing.T) {
	require := require.New(t)

	c := New(DefaultConfig())
	genesis := c.Initialize()
	require.False(genesis.IsZero())

	h1, err := c.Tick([]byte("data-1"))
	require.NoError(err)
	require.NoError(c.VerifyChain())

	latest, err := c.LatestHash()
	require.NoError(err)
	require.Equal(h1, latest)
}

func TestChainContinuityBreak(t *testing.T) {
	require := require.New(t)

	c := New(DefaultConfig())
	c.Initialize()
	_, err := c.Advance(2)
	require.NoError(err)

	c.ticks[1].PrevHash = encoding.Hash{}
	require.ErrorIs(c.VerifyChain(), ErrInvalidChain)
}

func TestComputePohRootEmptyIsZero(t *testing.T) {
	require.True(t, ComputePohRoot(nil).IsZero())
}

func TestComputePohRootTakesMostRecentTen(t *testing.T) {
	require := require.New(t)

	c := New(DefaultConfig())
	c.Initialize()
	_, err := c.Advance(15)
	require.NoError(err)

	ticks := c.GetBlockTicks()
	require.Len(ticks, maxLeavesPerRoot)
	require.Equal(ComputePohRoot(ticks), ComputePohRoot(c.GetBlockTicks()))
}

func TestIsValidTickFormatRejectsAllUniformPatterns(t *testing.T) {
	require := require.New(t)

	require.False(IsValidTickFormat(encoding.Hash{}))
	var allFF encoding.Hash
	for i := range allFF {
		allFF[i] = 0xFF
	}
	require.False(IsValidTickFormat(allFF))

	// Open question §9: no test-only allow-list for 0x01^32/0x02^32.
	var allOne encoding.Hash
	for i := range allOne {
		allOne[i] = 0x01
	}
	require.False(IsValidTickFormat(allOne))

	require.True(IsValidTickFormat(encoding.DomainHash(encoding.TagPohTick, []byte("x"))))
}

func TestSenderNonceChainDeterminism(t *testing.T) {
	require := require.New(t)

	seed := []byte("validator-seed")
	nonces := []uint64{1, 2, 3, 4}

	c := New(DefaultConfig())
	c.InitializeSender("alice")
	var last encoding.Hash
	var err error
	for _, n := range nonces {
		last, err = c.TickWithSender("alice", n, seed)
		require.NoError(err)
	}

	replayed := ReplaySenderTicks(seed, nonces)
	require.Equal(replayed[len(replayed)-1], last)
}

func TestDeriveSenderTickUnknownSender(t *testing.T) {
	c := New(DefaultConfig())
	_, err := c.DeriveSenderTick("nobody", []byte("seed"))
	require.ErrorIs(t, err, ErrSenderNotFound)
}

func TestReplaySenderTicksAcceptsDuplicateNonces(t *testing.T) {
	require := require.New(t)
	seed := []byte("seed")
	out := ReplaySenderTicks(seed, []uint64{1, 1, 2})
	require.Len(out, 3)
	require.NotEqual(out[0], out[1]) // NC still advances even on a repeated nonce value
}
