// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ibft

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/metanode/bpci-core/encoding"
)

func acceptAll(Vote) bool { return true }

func TestFinalizationWithThreeValidators(t *testing.T) {
	require := require.New(t)

	blockHash := encoding.DomainHash(encoding.TagHeader, []byte("block-9001"))
	proposal := Proposal{BlockHash: blockHash, BlockNumber: 9001}
	round := NewRound(proposal, 3, VerifierFunc(acceptAll))
	require.Equal(3, round.RequiredVotes())

	for _, v := range []string{"v1", "v2", "v3"} {
		require.NoError(round.SubmitVote(Vote{ValidatorID: v, VoteType: VotePrepare, BlockHash: blockHash}))
	}
	require.Equal(Commit, round.State())

	for _, v := range []string{"v1", "v2", "v3"} {
		require.NoError(round.SubmitVote(Vote{ValidatorID: v, VoteType: VoteCommit, BlockHash: blockHash}))
	}
	require.Equal(Finalized, round.State())

	finalHash, ok := round.FinalizedBlockHash()
	require.True(ok)
	require.Equal(blockHash, finalHash)
	require.Len(round.SignatureBundle(), 3)
}

func TestDuplicateVoteDoesNotDoubleCount(t *testing.T) {
	require := require.New(t)

	blockHash := encoding.DomainHash(encoding.TagHeader, []byte("b"))
	round := NewRound(Proposal{BlockHash: blockHash}, 3, VerifierFunc(acceptAll))

	require.NoError(round.SubmitVote(Vote{ValidatorID: "v1", VoteType: VotePrepare, BlockHash: blockHash}))
	require.NoError(round.SubmitVote(Vote{ValidatorID: "v1", VoteType: VotePrepare, BlockHash: blockHash}))
	require.Equal(1, round.PrepareVoteCount())
}

func TestFinalizesRegardlessOfPrepareCommitDeliveryOrder(t *testing.T) {
	require := require.New(t)

	blockHash := encoding.DomainHash(encoding.TagHeader, []byte("block-order"))
	round := NewRound(Proposal{BlockHash: blockHash}, 3, VerifierFunc(acceptAll))

	require.NoError(round.SubmitVote(Vote{ValidatorID: "v1", VoteType: VotePrepare, BlockHash: blockHash}))
	require.NoError(round.SubmitVote(Vote{ValidatorID: "v2", VoteType: VotePrepare, BlockHash: blockHash}))

	require.NoError(round.SubmitVote(Vote{ValidatorID: "v1", VoteType: VoteCommit, BlockHash: blockHash}))
	require.NoError(round.SubmitVote(Vote{ValidatorID: "v2", VoteType: VoteCommit, BlockHash: blockHash}))
	require.NoError(round.SubmitVote(Vote{ValidatorID: "v3", VoteType: VoteCommit, BlockHash: blockHash}))
	require.Equal(Prepare, round.State())

	require.NoError(round.SubmitVote(Vote{ValidatorID: "v3", VoteType: VotePrepare, BlockHash: blockHash}))
	require.Equal(Finalized, round.State())
	require.Len(round.SignatureBundle(), 3)
}

func TestQuorumRequiresSevenOfTen(t *testing.T) {
	require := require.New(t)
	blockHash := encoding.DomainHash(encoding.TagHeader, []byte("b"))
	round := NewRound(Proposal{BlockHash: blockHash}, 10, VerifierFunc(acceptAll))
	require.Equal(7, round.RequiredVotes())
}

func TestTimeoutFailsRound(t *testing.T) {
	require := require.New(t)

	blockHash := encoding.DomainHash(encoding.TagHeader, []byte("b"))
	round := NewRound(Proposal{BlockHash: blockHash}, 3, VerifierFunc(acceptAll))
	round.startedAt = time.Now().Add(-2 * VoteTimeout)

	require.True(round.CheckTimeout(time.Now()))
	require.Equal(Failed, round.State())
	require.NotEmpty(round.FailReason())
}

func TestInvalidSignatureNotCounted(t *testing.T) {
	require := require.New(t)

	blockHash := encoding.DomainHash(encoding.TagHeader, []byte("b"))
	round := NewRound(Proposal{BlockHash: blockHash}, 3, VerifierFunc(func(Vote) bool { return false }))

	err := round.SubmitVote(Vote{ValidatorID: "v1", VoteType: VotePrepare, BlockHash: blockHash})
	require.ErrorIs(err, ErrInvalidSignature)
	require.Equal(0, round.PrepareVoteCount())
}

func TestBelowMinimumStakeRejectedWithoutCounting(t *testing.T) {
	require := require.New(t)

	blockHash := encoding.DomainHash(encoding.TagHeader, []byte("b"))
	round := NewRound(Proposal{BlockHash: blockHash}, 3, VerifierFunc(acceptAll))
	round.WithMinStake(func(id string) uint64 {
		if id == "v1" {
			return 1
		}
		return 1000
	}, 100)

	err := round.SubmitVote(Vote{ValidatorID: "v1", VoteType: VotePrepare, BlockHash: blockHash})
	require.ErrorIs(err, ErrBelowMinimumStake)
	require.Equal(0, round.PrepareVoteCount())

	require.NoError(round.SubmitVote(Vote{ValidatorID: "v2", VoteType: VotePrepare, BlockHash: blockHash}))
	require.Equal(1, round.PrepareVoteCount())
}
