// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package header

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/metanode/bpci-core/encoding"
)

func TestGenesisInvariants(t *testing.T) {
	require := require.New(t)

	g := Genesis(Config{Timestamp: 1000})
	require.NoError(g.Validate())
	require.Equal(uint64(0), g.Height)
	require.True(g.PrevHash.IsZero())
	require.Equal(uint64(0), g.Round)
}

func TestSuccessorBindsToParent(t *testing.T) {
	require := require.New(t)

	g := Genesis(Config{Timestamp: 1000})
	h1 := New(g, Config{Timestamp: 1001, Round: 1})

	require.NoError(h1.Validate())
	require.NoError(h1.ValidateChainContinuity(g))
	require.Equal(g.Hash(), h1.PrevHash)
	require.Equal(uint64(1), h1.Height)
}

func TestChainContinuityRejectsBadHeight(t *testing.T) {
	require := require.New(t)

	g := Genesis(Config{Timestamp: 1000})
	h1 := New(g, Config{Timestamp: 1001})
	h1.Height = 5

	require.ErrorIs(h1.ValidateChainContinuity(g), ErrBadHeight)
}

func TestChainContinuityRejectsStaleTimestamp(t *testing.T) {
	require := require.New(t)

	g := Genesis(Config{Timestamp: 1000})
	h1 := New(g, Config{Timestamp: 999})

	require.ErrorIs(h1.ValidateChainContinuity(g), ErrBadTimestamp)
}

func TestChainContinuityRejectsWrongPrevHash(t *testing.T) {
	require := require.New(t)

	g := Genesis(Config{Timestamp: 1000})
	h1 := New(g, Config{Timestamp: 1001})
	h1.PrevHash = encoding.Hash{0xFF}

	require.ErrorIs(h1.ValidateChainContinuity(g), ErrBadPrevHash)
}

func TestHashDeterministic(t *testing.T) {
	require := require.New(t)

	cfg := Config{Timestamp: 42, Round: 7}
	a := Genesis(cfg)
	b := Genesis(cfg)
	require.Equal(a.Hash(), b.Hash())
}
