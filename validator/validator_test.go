// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package validator

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/metanode/bpci-core/metrics"
)

func mkLeaf(index uint32, stake uint64) Leaf {
	l := Leaf{Index: index, Stake: stake, Status: Active}
	l.BlsPubkey[0] = byte(index)
	return l
}

func TestSetHashChangesOnMutation(t *testing.T) {
	require := require.New(t)

	s := New(1)
	h0 := s.Hash()
	require.NoError(s.Add(mkLeaf(0, 100)))
	h1 := s.Hash()
	require.NotEqual(h0, h1)

	require.NoError(s.Add(mkLeaf(1, 200)))
	h2 := s.Hash()
	require.NotEqual(h1, h2)

	_, err := s.Remove(0)
	require.NoError(err)
	h3 := s.Hash()
	require.NotEqual(h2, h3)
}

func TestSetAddDuplicateIndexFails(t *testing.T) {
	s := New(1)
	require.NoError(t, s.Add(mkLeaf(5, 1)))
	require.ErrorIs(t, s.Add(mkLeaf(5, 1)), ErrInvalidIndex)
}

func TestInclusionProofSoundness(t *testing.T) {
	require := require.New(t)

	s := New(1)
	for i := uint32(0); i < 5; i++ {
		require.NoError(s.Add(mkLeaf(i, uint64(i)*10)))
	}

	for i := uint32(0); i < 5; i++ {
		proof, err := s.GenerateInclusionProof(i)
		require.NoError(err)
		require.True(s.VerifyInclusionProof(proof))
	}
}

func TestInclusionProofFailsAfterEpochChange(t *testing.T) {
	require := require.New(t)

	s := New(1)
	require.NoError(s.Add(mkLeaf(0, 1)))
	proof, err := s.GenerateInclusionProof(0)
	require.NoError(err)
	require.True(s.VerifyInclusionProof(proof))

	s.SetEpoch(2)
	require.False(s.VerifyInclusionProof(proof))
}

func TestInclusionProofFailsAfterLeafMutation(t *testing.T) {
	require := require.New(t)

	s := New(1)
	require.NoError(s.Add(mkLeaf(0, 1)))
	proof, err := s.GenerateInclusionProof(0)
	require.NoError(err)

	_, err = s.Remove(0)
	require.NoError(err)
	require.NoError(s.Add(mkLeaf(0, 999)))
	require.False(s.VerifyInclusionProof(proof))
}

func TestSingleMemberSetThenEmptySet(t *testing.T) {
	require := require.New(t)

	s := New(1)
	require.NoError(s.Add(mkLeaf(0, 1)))
	proof, err := s.GenerateInclusionProof(0)
	require.NoError(err)
	require.True(s.VerifyInclusionProof(proof))

	_, err = s.Remove(0)
	require.NoError(err)
	_, err = s.GenerateInclusionProof(0)
	require.ErrorIs(err, ErrEmptySet)

	_, err = s.GenerateInclusionProof(99)
	require.Error(err)
}

func TestDiversityPolicyAsnConcentration(t *testing.T) {
	require := require.New(t)

	cfg := DefaultPolicyConfig()
	cfg.MaxPerASN = 1
	dir := NewDirectory(New(1), cfg, nil)

	before := dir.GetValidatorSetHash()
	require.NoError(dir.AddWithDiversity(mkLeaf(0, 1), DiversityInfo{ASN: 1001, Region: RegionUS}))
	afterFirst := dir.GetValidatorSetHash()
	require.NotEqual(before, afterFirst)

	err := dir.AddWithDiversity(mkLeaf(1, 1), DiversityInfo{ASN: 1001, Region: RegionEU})
	require.ErrorIs(err, ErrDiversityPolicyViolation)

	violations := dir.Violations()
	require.Len(violations, 1)
	require.Equal(AsnConcentration, violations[0].Kind)

	// Directory hash is unchanged by the rejected add.
	require.Equal(afterFirst, dir.GetValidatorSetHash())
}

func TestDiversityCommitmentChangesOnRegionChange(t *testing.T) {
	require := require.New(t)

	dir := NewDirectory(New(1), DefaultPolicyConfig(), nil)
	require.NoError(dir.AddWithDiversity(mkLeaf(0, 1), DiversityInfo{ASN: 1, Region: RegionUS}))
	h1 := dir.GetValidatorSetHash()

	require.NoError(dir.AddWithDiversity(mkLeaf(1, 1), DiversityInfo{ASN: 2, Region: RegionEU}))
	h2 := dir.GetValidatorSetHash()
	require.NotEqual(h1, h2)
}

func TestInsufficientGeographicDiversity(t *testing.T) {
	require := require.New(t)

	cfg := DefaultPolicyConfig()
	cfg.MinGeographicRegion = 3
	dir := NewDirectory(New(1), cfg, nil)
	require.NoError(dir.AddWithDiversity(mkLeaf(0, 1), DiversityInfo{ASN: 1, Region: RegionUS}))

	require.False(dir.CheckDiversityPolicy())
	violations := dir.Violations()
	require.Equal(InsufficientDiversity, violations[len(violations)-1].Kind)
}

func TestAddBatchAggregatesFailuresAndKeepsGoing(t *testing.T) {
	require := require.New(t)

	cfg := DefaultPolicyConfig()
	cfg.MaxPerASN = 1
	dir := NewDirectory(New(1), cfg, nil)

	entries := []Entry{
		{Leaf: mkLeaf(0, 1), Diversity: DiversityInfo{ASN: 1, Region: RegionUS}},
		{Leaf: mkLeaf(1, 1), Diversity: DiversityInfo{ASN: 1, Region: RegionEU}}, // same ASN, rejected
		{Leaf: mkLeaf(2, 1), Diversity: DiversityInfo{ASN: 2, Region: RegionJP}},
	}

	err := dir.AddBatch(entries)
	require.Error(err)

	_, getErr := dir.set.Get(0)
	require.NoError(getErr)
	_, getErr = dir.set.Get(2)
	require.NoError(getErr)
	_, getErr = dir.set.Get(1)
	require.Error(getErr)
}

func TestDiversityRejectionIncrementsPolicyViolations(t *testing.T) {
	require := require.New(t)

	reg := prometheus.NewRegistry()
	m := metrics.NewValidators(reg)

	cfg := DefaultPolicyConfig()
	cfg.MaxPerASN = 1
	dir := NewDirectory(New(1), cfg, m)

	require.NoError(dir.AddWithDiversity(mkLeaf(0, 1), DiversityInfo{ASN: 1, Region: RegionUS}))
	require.Equal(float64(1), testutil.ToFloat64(m.ActiveValidators))

	err := dir.AddWithDiversity(mkLeaf(1, 1), DiversityInfo{ASN: 1, Region: RegionEU})
	require.ErrorIs(err, ErrDiversityPolicyViolation)
	require.Equal(float64(1), testutil.ToFloat64(m.PolicyViolationsTotal))
	require.Equal(float64(1), testutil.ToFloat64(m.ActiveValidators))
}
