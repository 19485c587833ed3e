// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ibft implements the block-finality voting state machine:
// PrePrepare -> Prepare -> Commit -> Finalized, terminal Failed.
// Required votes always follow the Byzantine quorum rule
// floor(2n/3)+1 over the active validator count at round start (see
// quorum.Byzantine); spec.md §9 flags a hard-coded default of 5 found
// in one reference code path as a bug this module does not reproduce.
package ibft

import (
	"errors"
	"sync"
	"time"

	"github.com/metanode/bpci-core/encoding"
	"github.com/metanode/bpci-core/quorum"
)

// State is a round's position in the PrePrepare -> Finalized pipeline.
type State int

const (
	PrePrepare State = iota
	Prepare
	Commit
	Finalized
	Failed
)

// VoteType distinguishes a Prepare vote from a Commit vote.
type VoteType int

const (
	VotePrepare VoteType = iota
	VoteCommit
)

// VoteTimeout is the wall-clock bound on collecting either phase's
// votes (spec.md §5).
const VoteTimeout = 10 * time.Second

var (
	ErrAlreadyTerminal   = errors.New("ibft: round already finalized or failed")
	ErrWrongPhase        = errors.New("ibft: vote block hash does not match the round's proposal")
	ErrInvalidSignature  = errors.New("ibft: vote signature does not verify")
	ErrBelowMinimumStake = errors.New("ibft: voter is below the minimum stake threshold")
)

// Vote is a single validator's signed ballot for one phase of one round.
type Vote struct {
	ValidatorID string
	VoteType    VoteType
	BlockHash   encoding.Hash
	RoundNumber uint64
	Signature   [64]byte
	Timestamp   int64
}

// Verifier checks a vote's signature against the voter's registered
// key material. Pluggable rather than bound to one concrete scheme:
// the validator leaf's BLS/VRF key widths are carried for the wider
// system (see validator.Leaf), but this module does not itself
// implement pairing-based BLS verification (see DESIGN.md); tests and
// callers supply whichever scheme their validator keys use.
type Verifier interface {
	Verify(vote Vote) bool
}

// VerifierFunc adapts a plain function to Verifier.
type VerifierFunc func(vote Vote) bool

func (f VerifierFunc) Verify(vote Vote) bool { return f(vote) }

// Proposal is a block candidate under vote.
type Proposal struct {
	BlockHash   encoding.Hash
	ParentHash  encoding.Hash
	BlockNumber uint64
	ProposerID  string
	TxRoot      encoding.Hash
	GasCeiling  uint64
}

// Round is one IBFT round's full voting state.
type Round struct {
	mu sync.Mutex

	proposal      Proposal
	requiredVotes int
	state         State
	failReason    string
	startedAt     time.Time

	prepareVotes map[string]Vote
	commitVotes  map[string]Vote
	verifier     Verifier
	stakeOf      func(validatorID string) uint64
	minStake     uint64
}

// WithMinStake configures a stake floor: votes from validators whose
// stake (looked up via stakeOf) falls below minStake are rejected
// without being counted toward quorum.
func (r *Round) WithMinStake(stakeOf func(validatorID string) uint64, minStake uint64) *Round {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stakeOf = stakeOf
	r.minStake = minStake
	return r
}

// NewRound starts a round voting on proposal. activeValidatorCount is
// the active set size at round start; requiredVotes is derived from it
// via quorum.Byzantine rather than any fixed constant.
func NewRound(proposal Proposal, activeValidatorCount int, verifier Verifier) *Round {
	return &Round{
		proposal:      proposal,
		requiredVotes: quorum.Byzantine(activeValidatorCount),
		state:         PrePrepare,
		startedAt:     time.Now(),
		prepareVotes:  make(map[string]Vote),
		commitVotes:   make(map[string]Vote),
		verifier:      verifier,
	}
}

// RequiredVotes returns the quorum size this round was started with.
func (r *Round) RequiredVotes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requiredVotes
}

// State returns the round's current state.
func (r *Round) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// FailReason returns the reason a Failed round failed.
func (r *Round) FailReason() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failReason
}

// SubmitVote records vote for its phase. A second vote from the same
// validator for the same phase replaces the prior one rather than
// counting twice. IBFT does not require message ordering, only quorum
// counts (spec.md §4.7/§5): a commit vote may arrive before prepare
// quorum is reached, so every call re-evaluates both quorums rather
// than only the one matching vote.VoteType, and finalizes as soon as
// both are satisfied regardless of delivery order.
func (r *Round) SubmitVote(vote Vote) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == Finalized || r.state == Failed {
		return ErrAlreadyTerminal
	}
	if vote.BlockHash != r.proposal.BlockHash {
		return ErrWrongPhase
	}
	if r.verifier != nil && !r.verifier.Verify(vote) {
		return ErrInvalidSignature
	}
	if r.stakeOf != nil && r.stakeOf(vote.ValidatorID) < r.minStake {
		return ErrBelowMinimumStake
	}

	switch vote.VoteType {
	case VotePrepare:
		r.prepareVotes[vote.ValidatorID] = vote
	case VoteCommit:
		r.commitVotes[vote.ValidatorID] = vote
	}
	r.evaluateQuorumLocked()
	return nil
}

// evaluateQuorumLocked advances the round's state as far as the
// currently recorded votes allow, independent of which vote type was
// just submitted. Must be called with r.mu held.
func (r *Round) evaluateQuorumLocked() {
	if r.state == Finalized || r.state == Failed {
		return
	}
	if r.state == PrePrepare && len(r.prepareVotes) > 0 {
		r.state = Prepare
	}
	if r.state == Prepare && len(r.prepareVotes) >= r.requiredVotes {
		r.state = Commit
	}
	if r.state == Commit && len(r.commitVotes) >= r.requiredVotes {
		r.state = Finalized
	}
}

// CheckTimeout fails the round if it has exceeded VoteTimeout without
// reaching Finalized.
func (r *Round) CheckTimeout(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Finalized || r.state == Failed {
		return false
	}
	if now.Sub(r.startedAt) > VoteTimeout {
		r.state = Failed
		r.failReason = "vote collection timed out"
		return true
	}
	return false
}

// Fail transitions the round to Failed with reason, if not already terminal.
func (r *Round) Fail(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Finalized || r.state == Failed {
		return
	}
	r.state = Failed
	r.failReason = reason
}

// SignatureBundle returns the recorded commit votes' signatures, the
// set persisted alongside a finalized block.
func (r *Round) SignatureBundle() []Vote {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Vote, 0, len(r.commitVotes))
	for _, v := range r.commitVotes {
		out = append(out, v)
	}
	return out
}

// FinalizedBlockHash returns the proposal's block hash once Finalized.
func (r *Round) FinalizedBlockHash() (encoding.Hash, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Finalized {
		return encoding.Hash{}, false
	}
	return r.proposal.BlockHash, true
}

// PrepareVoteCount and CommitVoteCount report the current tallies,
// used by callers checking the Byzantine-quorum invariant directly.
func (r *Round) PrepareVoteCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.prepareVotes)
}

func (r *Round) CommitVoteCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.commitVotes)
}
