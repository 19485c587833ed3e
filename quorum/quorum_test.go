// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package quorum

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestByzantineQuorum(t *testing.T) {
	require := require.New(t)

	require.Equal(3, Byzantine(3)) // 3 validators: need all 3
	require.Equal(5, Byzantine(7)) // 7 validators: floor(14/3)+1 = 5
	require.Equal(7, Byzantine(10))
	require.Equal(0, Byzantine(0))
}

func TestMaxFaulty(t *testing.T) {
	require := require.New(t)

	require.Equal(0, MaxFaulty(3))
	require.Equal(2, MaxFaulty(7))
	require.Equal(3, MaxFaulty(10))
}
