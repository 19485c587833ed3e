// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hotstuff

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/metanode/bpci-core/encoding"
)

func TestPhaseAdvancesInOrder(t *testing.T) {
	require := require.New(t)

	p := New()
	require.Equal(PhasePrepare, p.Phase())
	require.Equal(PhasePreCommit, p.Advance())
	require.Equal(PhaseCommit, p.Advance())
	require.Equal(PhaseDecide, p.Advance())
	require.Equal(PhaseDecide, p.Advance())
}

func TestCommitAppliesOnlyNonRollbackResults(t *testing.T) {
	require := require.New(t)

	p := New()
	txHash := encoding.DomainHash(encoding.TagHeader, []byte("tx-1"))
	p.SpeculativelyExecute(ExecutionResult{ExecutionID: "e1", TxHash: txHash, Success: true})
	p.SpeculativelyExecute(ExecutionResult{ExecutionID: "e2", TxHash: txHash, Success: false, RollbackRequired: true})

	applied := p.Commit()
	require.Len(applied, 1)
	require.Equal("e1", applied[0].ExecutionID)
}

func TestRollbackDiscardsEntireBuffer(t *testing.T) {
	require := require.New(t)

	p := New()
	p.SpeculativelyExecute(ExecutionResult{ExecutionID: "e1", Success: true})
	p.Rollback()
	require.Empty(p.BufferedResults())

	applied := p.Commit()
	require.Empty(applied)
}

func TestDecideComputesEfficiencyRatio(t *testing.T) {
	require := require.New(t)

	p := New()
	p.SpeculativelyExecute(ExecutionResult{ExecutionID: "e1", Success: true})
	p.SpeculativelyExecute(ExecutionResult{ExecutionID: "e2", Success: true})
	p.SpeculativelyExecute(ExecutionResult{ExecutionID: "e3", RollbackRequired: true})

	counters := p.Decide()
	require.Equal(PhaseDecide, p.Phase())
	require.InDelta(2.0/3.0, counters.EfficiencyRatio, 1e-9)
}

func TestDecideOnEmptyBufferIsFullyEfficient(t *testing.T) {
	require := require.New(t)

	p := New()
	counters := p.Decide()
	require.Equal(float64(1), counters.EfficiencyRatio)
	require.Equal(float64(0), counters.ThroughputTxPerS)
}
