// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package coordinator sequences one consensus round across IBFT voting,
// the HotStuff pipeline, and the bundle auction, in that order from the
// coordinator's point of view even though HotStuff may speculate in
// parallel with IBFT voting. It enforces a concurrent-round cap the
// teacher's own round-tracking code never imposed (see DESIGN.md),
// archives finished rounds, and folds round outcomes into exponential
// moving averages for the round-level Prometheus gauges.
package coordinator

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/metanode/bpci-core/auction"
	"github.com/metanode/bpci-core/hotstuff"
	"github.com/metanode/bpci-core/ibft"
	"github.com/metanode/bpci-core/metrics"
	"github.com/metanode/bpci-core/utils"
)

// RoundTimeout is the default wall-clock bound on a round, from
// creation to finalize-or-fail.
const RoundTimeout = 30 * time.Second

var (
	ErrTooManyConcurrentRounds = errors.New("coordinator: max_concurrent_rounds exceeded")
	ErrRoundNotFound           = errors.New("coordinator: round not found")
)

// Status is a round's overall outcome.
type Status int

const (
	StatusActive Status = iota
	StatusFinalized
	StatusFailed
)

// Round is one consensus round's full record, covering all three inner
// state machines plus the auction outcome.
type Round struct {
	RoundID            string
	RoundNumber        uint64
	Timestamp          int64
	Status             Status
	FailReason         string
	FinalizedBlockHash string

	IbftState     ibft.State
	HotstuffPhase hotstuff.Phase
	AuctionResult *auction.Result

	startedAt time.Time
	timeoutAt time.Time
}

// snapshot is the JSON-exportable view of a Round.
type snapshot struct {
	RoundID            string `json:"round_id"`
	RoundNumber        uint64 `json:"round_number"`
	Timestamp          int64  `json:"timestamp"`
	Status             string `json:"status"`
	FailReason         string `json:"fail_reason,omitempty"`
	FinalizedBlockHash string `json:"finalized_block_hash,omitempty"`
	IbftState          int    `json:"ibft_state"`
	HotstuffPhase      int    `json:"hotstuff_phase"`
	AuctionWinnerID    string `json:"auction_winner_bundle_id,omitempty"`
	AuctionBidAmount   uint64 `json:"auction_bid_amount,omitempty"`
}

func (r *Round) toSnapshot() snapshot {
	s := snapshot{
		RoundID:            r.RoundID,
		RoundNumber:        r.RoundNumber,
		Timestamp:          r.Timestamp,
		FailReason:         r.FailReason,
		FinalizedBlockHash: r.FinalizedBlockHash,
		IbftState:          int(r.IbftState),
		HotstuffPhase:      int(r.HotstuffPhase),
	}
	switch r.Status {
	case StatusActive:
		s.Status = "Active"
	case StatusFinalized:
		s.Status = "Finalized"
	case StatusFailed:
		s.Status = "Failed"
	}
	if r.AuctionResult != nil {
		s.AuctionWinnerID = r.AuctionResult.Winner.BundleID
		s.AuctionBidAmount = r.AuctionResult.Winner.BidAmount
	}
	return s
}

// MarshalRound JSON-encodes a round's current snapshot.
func MarshalRound(r *Round) ([]byte, error) {
	return json.Marshal(r.toSnapshot())
}

// Config bounds the coordinator's resource usage.
type Config struct {
	MaxConcurrentRounds int
	RoundTimeout        time.Duration
	MaxArchiveSize      int
	EmaAlpha            float64
}

// DefaultConfig matches spec.md §4.10/§5's stated defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentRounds: 4,
		RoundTimeout:        RoundTimeout,
		MaxArchiveSize:      1000,
		EmaAlpha:            0.2,
	}
}

// Coordinator drives consensus rounds end to end. Lock ordering follows
// spec.md §5: active_rounds -> metrics -> history; the active-rounds
// write lock is released before metrics are touched on every path.
type Coordinator struct {
	cfg Config
	m   *metrics.Round

	activeMu     sync.Mutex
	activeRounds map[string]*Round
	roundSeq     *utils.AtomicInt

	historyMu sync.Mutex
	history   []*Round

	emaMu                sync.Mutex
	ibftSuccessEma       float64
	hotstuffOptimizeEma  float64
	auctionSettlementEma float64
	avgRoundTimeMsEma    float64
}

// New constructs a coordinator bound to the given round-level metrics.
func New(cfg Config, m *metrics.Round) *Coordinator {
	return &Coordinator{
		cfg:          cfg,
		m:            m,
		activeRounds: make(map[string]*Round),
		roundSeq:     utils.NewAtomicInt(0),
	}
}

func newRoundID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// StartConsensusRound admits a new round if the concurrency cap allows
// it and returns its round id. The caller drives the round to
// completion with RunRound.
func (c *Coordinator) StartConsensusRound() (string, error) {
	c.activeMu.Lock()
	defer c.activeMu.Unlock()

	if len(c.activeRounds) >= c.cfg.MaxConcurrentRounds {
		return "", ErrTooManyConcurrentRounds
	}

	seq := uint64(c.roundSeq.Inc())
	r := &Round{
		RoundID:     newRoundID(),
		RoundNumber: seq,
		Timestamp:   time.Now().Unix(),
		Status:      StatusActive,
		startedAt:   time.Now(),
	}
	timeout := c.cfg.RoundTimeout
	if timeout == 0 {
		timeout = RoundTimeout
	}
	r.timeoutAt = r.startedAt.Add(timeout)
	c.activeRounds[r.RoundID] = r
	return r.RoundID, nil
}

// Round looks up an active round by id.
func (c *Coordinator) Round(roundID string) (*Round, error) {
	c.activeMu.Lock()
	defer c.activeMu.Unlock()
	r, ok := c.activeRounds[roundID]
	if !ok {
		return nil, ErrRoundNotFound
	}
	return r, nil
}

// RunRound sequences IBFT -> HotStuff-finalize -> auction -> finalize
// for roundID, given the already-conducted IBFT round and HotStuff
// pipeline plus the round's bundle proposals. Finalization requires
// IBFT Finalized, HotStuff Decide, and a successful auction settlement;
// any other combination fails the round with a recorded reason.
func (c *Coordinator) RunRound(roundID string, ibftRound *ibft.Round, pipeline *hotstuff.Pipeline, proposals []auction.BundleProposal, policy auction.SettlementPolicy) error {
	r, err := c.Round(roundID)
	if err != nil {
		return err
	}

	if time.Now().After(r.timeoutAt) {
		c.failRound(r, "round timed out before completion")
		return nil
	}

	r.IbftState = ibftRound.State()
	if r.IbftState != ibft.Finalized {
		reason := ibftRound.FailReason()
		if reason == "" {
			reason = "ibft round did not reach Finalized"
		}
		c.failRound(r, reason)
		return nil
	}

	counters := pipeline.Decide()
	r.HotstuffPhase = pipeline.Phase()
	_ = counters // not recorded; the EMAs below use only the phase reached

	commitSigners := make([]string, 0, len(ibftRound.SignatureBundle()))
	for _, v := range ibftRound.SignatureBundle() {
		commitSigners = append(commitSigners, v.ValidatorID)
	}

	result, err := auction.Settle(proposals, commitSigners, policy)
	if err != nil {
		c.failRound(r, "auction settlement failed: "+err.Error())
		return nil
	}
	r.AuctionResult = &result

	blockHash, ok := ibftRound.FinalizedBlockHash()
	if !ok {
		c.failRound(r, "ibft round reported Finalized with no block hash")
		return nil
	}
	r.FinalizedBlockHash = hex.EncodeToString(blockHash[:])
	c.finalizeRound(r)
	return nil
}

// failRound transitions r to Failed, releases it from active tracking,
// updates metrics, and archives it. Matches the release-before-continue
// discipline spec.md §5 requires: the active-rounds lock is dropped
// before metrics/history are touched.
func (c *Coordinator) failRound(r *Round, reason string) {
	r.Status = StatusFailed
	r.FailReason = reason

	c.activeMu.Lock()
	delete(c.activeRounds, r.RoundID)
	c.activeMu.Unlock()

	c.updateMetrics(r, false)
	c.archive(r)
}

func (c *Coordinator) finalizeRound(r *Round) {
	r.Status = StatusFinalized

	c.activeMu.Lock()
	delete(c.activeRounds, r.RoundID)
	c.activeMu.Unlock()

	c.updateMetrics(r, true)
	c.archive(r)
}

// updateMetrics folds the round's outcome into the coordinator's
// running EMAs. The EMA state itself lives on the coordinator (not
// read back from the Prometheus gauges, which expose no getter) and is
// only ever pushed outward into the gauges.
func (c *Coordinator) updateMetrics(r *Round, success bool) {
	alpha := c.cfg.EmaAlpha
	if alpha <= 0 {
		alpha = 0.2
	}

	c.emaMu.Lock()
	c.ibftSuccessEma = metrics.EMA(c.ibftSuccessEma, boolSample(r.IbftState == ibft.Finalized), alpha)
	c.hotstuffOptimizeEma = metrics.EMA(c.hotstuffOptimizeEma, boolSample(r.HotstuffPhase == hotstuff.PhaseDecide), alpha)
	c.auctionSettlementEma = metrics.EMA(c.auctionSettlementEma, boolSample(r.AuctionResult != nil), alpha)
	c.avgRoundTimeMsEma = metrics.EMA(c.avgRoundTimeMsEma, float64(time.Since(r.startedAt).Milliseconds()), alpha)
	ibftEma, hsEma, aucEma, timeEma := c.ibftSuccessEma, c.hotstuffOptimizeEma, c.auctionSettlementEma, c.avgRoundTimeMsEma
	c.emaMu.Unlock()

	if c.m == nil {
		return
	}
	c.m.IbftSuccessRate.Set(ibftEma)
	c.m.HotstuffOptimizationRate.Set(hsEma)
	c.m.AuctionSettlementRate.Set(aucEma)
	c.m.AverageRoundTimeMs.Set(timeEma)
	if !success {
		c.m.ByzantineFaultIncidents.Inc()
	}
}

func boolSample(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// archive moves r into the bounded round history, dropping the oldest
// entry once the archive exceeds MaxArchiveSize.
func (c *Coordinator) archive(r *Round) {
	c.historyMu.Lock()
	defer c.historyMu.Unlock()

	max := c.cfg.MaxArchiveSize
	if max <= 0 {
		max = 1000
	}
	c.history = append(c.history, r)
	if len(c.history) > max {
		c.history = c.history[len(c.history)-max:]
	}
}

// History returns the bounded round archive, oldest first.
func (c *Coordinator) History() []*Round {
	c.historyMu.Lock()
	defer c.historyMu.Unlock()
	out := make([]*Round, len(c.history))
	copy(out, c.history)
	return out
}

// ActiveRoundCount reports the number of rounds currently in flight.
func (c *Coordinator) ActiveRoundCount() int {
	c.activeMu.Lock()
	defer c.activeMu.Unlock()
	return len(c.activeRounds)
}
