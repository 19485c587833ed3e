// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package auction selects a winning bundle proposal for a consensus
// round and splits its bid among the round's commit-signing
// validators. Settlement is delegated to a pluggable SettlementPolicy
// so the same winner-selection logic serves both mocked testnet runs
// and on-ledger mainnet settlement.
package auction

import (
	"errors"
	"sort"

	"github.com/metanode/bpci-core/utils/set"
)

var ErrNoProposals = errors.New("auction: no bundle proposals submitted")

// BundleProposal is one proposer's candidate bundle for a round.
type BundleProposal struct {
	BundleID      string
	ProposerID    string
	TxCount       int
	TotalFees     uint64
	GasLimit      uint64
	PriorityScore float64
	BidAmount     uint64
	Timestamp     int64
}

// score ranks a proposal: bid_amount + priority_score*1000.
func score(p BundleProposal) float64 {
	return float64(p.BidAmount) + p.PriorityScore*1000
}

// SettlementMode records how a round's winning bid was settled.
type SettlementMode int

const (
	TestnetMocked SettlementMode = iota
	MainnetSettled
)

// SettlementPolicy decides which mode a round settles under.
type SettlementPolicy interface {
	Mode() SettlementMode
}

// SettlementPolicyFunc adapts a plain function to SettlementPolicy.
type SettlementPolicyFunc func() SettlementMode

func (f SettlementPolicyFunc) Mode() SettlementMode { return f() }

// Reward is one validator's share of a settled bid.
type Reward struct {
	ValidatorID string
	Amount      uint64
}

// Result is the outcome of one round's auction.
type Result struct {
	Winner    BundleProposal
	Mode      SettlementMode
	Rewards   []Reward
	Remainder uint64 // leftover from integer division, unallocated
}

// SelectWinner picks the highest-scoring proposal. Ties break by
// earliest timestamp, then lexicographically smallest bundle id.
func SelectWinner(proposals []BundleProposal) (BundleProposal, error) {
	if len(proposals) == 0 {
		return BundleProposal{}, ErrNoProposals
	}

	best := proposals[0]
	bestScore := score(best)
	for _, p := range proposals[1:] {
		s := score(p)
		switch {
		case s > bestScore:
			best, bestScore = p, s
		case s == bestScore:
			if p.Timestamp < best.Timestamp ||
				(p.Timestamp == best.Timestamp && p.BundleID < best.BundleID) {
				best, bestScore = p, s
			}
		}
	}
	return best, nil
}

// Settle selects the winner, splits its bid evenly across
// commitSigners, and records the settlement mode from policy. An empty
// commitSigners list produces a winner with no rewards (nothing to
// split against) rather than an error; the caller decides whether that
// counts as a round failure.
func Settle(proposals []BundleProposal, commitSigners []string, policy SettlementPolicy) (Result, error) {
	winner, err := SelectWinner(proposals)
	if err != nil {
		return Result{}, err
	}

	res := Result{Winner: winner, Mode: policy.Mode()}
	if len(commitSigners) == 0 {
		return res, nil
	}

	// De-duplicate via set.Set before splitting: a validator that
	// somehow appears twice in commitSigners must still only receive one
	// share of the bid.
	signerSet := set.Of(commitSigners...)
	signers := signerSet.List()
	sort.Strings(signers)

	share := winner.BidAmount / uint64(len(signers))
	res.Remainder = winner.BidAmount - share*uint64(len(signers))

	res.Rewards = make([]Reward, 0, len(signers))
	for _, v := range signers {
		res.Rewards = append(res.Rewards, Reward{ValidatorID: v, Amount: share})
	}
	return res, nil
}
