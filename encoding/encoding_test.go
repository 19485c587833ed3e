// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package encoding

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDomainHashSeparatesTags(t *testing.T) {
	require := require.New(t)

	data := []byte("same-bytes-different-category")
	a := DomainHash(TagHeader, data)
	b := DomainHash(TagPohTick, data)
	require.NotEqual(a, b)
}

func TestDomainHashDeterministic(t *testing.T) {
	require := require.New(t)

	data := []byte("deterministic")
	require.Equal(DomainHash(TagValidatorSet, data), DomainHash(TagValidatorSet, data))
}

func TestWriterFieldOrderMatters(t *testing.T) {
	require := require.New(t)

	a := NewWriter(0).Uint32(1).Uint32(2).Bytes()
	b := NewWriter(0).Uint32(2).Uint32(1).Bytes()
	require.NotEqual(a, b)
}

func TestZeroHash(t *testing.T) {
	require := require.New(t)

	var h Hash
	require.True(h.IsZero())

	h = DomainHash(TagHeader, []byte("x"))
	require.False(h.IsZero())
}
