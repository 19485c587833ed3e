// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package coordinator

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/metanode/bpci-core/auction"
	"github.com/metanode/bpci-core/encoding"
	"github.com/metanode/bpci-core/hotstuff"
	"github.com/metanode/bpci-core/ibft"
	"github.com/metanode/bpci-core/metrics"
)

func acceptAll(ibft.Vote) bool { return true }

func newTestCoordinator(t *testing.T, cfg Config) *Coordinator {
	t.Helper()
	m := metrics.NewRound(prometheus.NewRegistry())
	return New(cfg, m)
}

func TestRunRoundFinalizesOnFullSuccess(t *testing.T) {
	require := require.New(t)

	c := newTestCoordinator(t, DefaultConfig())
	roundID, err := c.StartConsensusRound()
	require.NoError(err)

	blockHash := encoding.DomainHash(encoding.TagHeader, []byte("block"))
	ibftRound := ibft.NewRound(ibft.Proposal{BlockHash: blockHash}, 3, ibft.VerifierFunc(acceptAll))
	for _, v := range []string{"v1", "v2", "v3"} {
		require.NoError(ibftRound.SubmitVote(ibft.Vote{ValidatorID: v, VoteType: ibft.VotePrepare, BlockHash: blockHash}))
	}
	for _, v := range []string{"v1", "v2", "v3"} {
		require.NoError(ibftRound.SubmitVote(ibft.Vote{ValidatorID: v, VoteType: ibft.VoteCommit, BlockHash: blockHash}))
	}
	require.Equal(ibft.Finalized, ibftRound.State())

	pipeline := hotstuff.New()
	pipeline.SpeculativelyExecute(hotstuff.ExecutionResult{ExecutionID: "e1", Success: true})

	proposals := []auction.BundleProposal{{BundleID: "a", BidAmount: 90}}
	policy := auction.SettlementPolicyFunc(func() auction.SettlementMode { return auction.TestnetMocked })

	err = c.RunRound(roundID, ibftRound, pipeline, proposals, policy)
	require.NoError(err)

	history := c.History()
	require.Len(history, 1)
	require.Equal(StatusFinalized, history[0].Status)
	require.Equal(0, c.ActiveRoundCount())
	require.NotEmpty(history[0].FinalizedBlockHash)
	require.NotNil(history[0].AuctionResult)
}

func TestRunRoundFailsWhenIbftDidNotFinalize(t *testing.T) {
	require := require.New(t)

	c := newTestCoordinator(t, DefaultConfig())
	roundID, err := c.StartConsensusRound()
	require.NoError(err)

	blockHash := encoding.DomainHash(encoding.TagHeader, []byte("block"))
	ibftRound := ibft.NewRound(ibft.Proposal{BlockHash: blockHash}, 3, ibft.VerifierFunc(acceptAll))
	// No votes submitted: round stays in PrePrepare, never Finalized.

	pipeline := hotstuff.New()
	proposals := []auction.BundleProposal{{BundleID: "a", BidAmount: 90}}
	policy := auction.SettlementPolicyFunc(func() auction.SettlementMode { return auction.TestnetMocked })

	err = c.RunRound(roundID, ibftRound, pipeline, proposals, policy)
	require.NoError(err)

	history := c.History()
	require.Len(history, 1)
	require.Equal(StatusFailed, history[0].Status)
	require.NotEmpty(history[0].FailReason)
}

func TestStartConsensusRoundEnforcesConcurrencyCap(t *testing.T) {
	require := require.New(t)

	cfg := DefaultConfig()
	cfg.MaxConcurrentRounds = 1
	c := newTestCoordinator(t, cfg)

	_, err := c.StartConsensusRound()
	require.NoError(err)

	_, err = c.StartConsensusRound()
	require.ErrorIs(err, ErrTooManyConcurrentRounds)
}

func TestHistoryArchiveDropsOldestPastCapacity(t *testing.T) {
	require := require.New(t)

	cfg := DefaultConfig()
	cfg.MaxConcurrentRounds = 1000
	cfg.MaxArchiveSize = 2
	c := newTestCoordinator(t, cfg)

	blockHash := encoding.DomainHash(encoding.TagHeader, []byte("block"))
	for i := 0; i < 3; i++ {
		roundID, err := c.StartConsensusRound()
		require.NoError(err)
		ibftRound := ibft.NewRound(ibft.Proposal{BlockHash: blockHash}, 3, ibft.VerifierFunc(acceptAll))
		pipeline := hotstuff.New()
		err = c.RunRound(roundID, ibftRound, pipeline, nil, auction.SettlementPolicyFunc(func() auction.SettlementMode { return auction.TestnetMocked }))
		require.NoError(err)
	}

	history := c.History()
	require.Len(history, 2)
	require.Equal(uint64(2), history[0].RoundNumber)
	require.Equal(uint64(3), history[1].RoundNumber)
}

func TestMarshalRoundProducesJSON(t *testing.T) {
	require := require.New(t)

	c := newTestCoordinator(t, DefaultConfig())
	roundID, err := c.StartConsensusRound()
	require.NoError(err)

	r, err := c.Round(roundID)
	require.NoError(err)

	data, err := MarshalRound(r)
	require.NoError(err)
	require.Contains(string(data), `"round_id"`)
	require.Contains(string(data), `"Active"`)
}
