// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metrics exposes the Prometheus collectors named in the
// observability surface: mempool gauges/counters and per-round
// consensus rates.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Mempool holds the mempool-facing collectors.
type Mempool struct {
	PendingTxs            prometheus.Gauge
	EncryptedTxs          prometheus.Gauge
	RevealedTxsTotal      prometheus.Counter
	StuckTxs              prometheus.Gauge
	RecoveredTxsTotal     prometheus.Counter
	EpochRotationsTotal   prometheus.Counter
	RecoveryAttemptsTotal prometheus.Counter
	DosBlocksTotal        prometheus.Counter
}

// NewMempool registers and returns the mempool collector set.
func NewMempool(reg prometheus.Registerer) *Mempool {
	m := &Mempool{
		PendingTxs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mempool_pending_txs",
			Help: "Number of transactions currently pending in the mempool.",
		}),
		EncryptedTxs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mempool_encrypted_txs",
			Help: "Number of leader-encrypted transactions awaiting reveal.",
		}),
		RevealedTxsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mempool_revealed_txs_total",
			Help: "Total number of transactions successfully revealed.",
		}),
		StuckTxs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mempool_stuck_txs",
			Help: "Number of transactions stuck in recovery.",
		}),
		RecoveredTxsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mempool_recovered_txs_total",
			Help: "Total number of transactions recovered via a historical epoch key.",
		}),
		EpochRotationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mempool_epoch_rotations_total",
			Help: "Total number of epoch key rotations performed.",
		}),
		RecoveryAttemptsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mempool_recovery_attempts_total",
			Help: "Total number of recovery decrypt attempts across all epoch keys.",
		}),
		DosBlocksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mempool_dos_blocks_total",
			Help: "Total number of submissions rejected by the per-sender rate limiter.",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.PendingTxs, m.EncryptedTxs, m.RevealedTxsTotal, m.StuckTxs,
		m.RecoveredTxsTotal, m.EpochRotationsTotal, m.RecoveryAttemptsTotal, m.DosBlocksTotal,
	} {
		reg.MustRegister(c)
	}
	return m
}

// Round holds the per-round consensus collectors.
type Round struct {
	IbftSuccessRate          prometheus.Gauge
	HotstuffOptimizationRate prometheus.Gauge
	AuctionSettlementRate    prometheus.Gauge
	AverageRoundTimeMs       prometheus.Gauge
	ByzantineFaultIncidents  prometheus.Counter
}

// NewRound registers and returns the round-level collector set.
func NewRound(reg prometheus.Registerer) *Round {
	r := &Round{
		IbftSuccessRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ibft_success_rate",
			Help: "Exponential moving average of IBFT round finalization success.",
		}),
		HotstuffOptimizationRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hotstuff_optimization_rate",
			Help: "Exponential moving average of HotStuff speculative commit rate.",
		}),
		AuctionSettlementRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "auction_settlement_rate",
			Help: "Exponential moving average of successful bundle-auction settlements.",
		}),
		AverageRoundTimeMs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "average_round_time_ms",
			Help: "Exponential moving average of consensus round wall-clock time, in milliseconds.",
		}),
		ByzantineFaultIncidents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "byzantine_fault_incidents",
			Help: "Total number of consensus rounds that failed, for any reason.",
		}),
	}
	for _, c := range []prometheus.Collector{
		r.IbftSuccessRate, r.HotstuffOptimizationRate, r.AuctionSettlementRate,
		r.AverageRoundTimeMs, r.ByzantineFaultIncidents,
	} {
		reg.MustRegister(c)
	}
	return r
}

// EMA folds a new sample into an exponential moving average with the
// given smoothing factor alpha (0, 1].
func EMA(prev, sample, alpha float64) float64 {
	return alpha*sample + (1-alpha)*prev
}

// Bpci holds the transport-facing frame collectors.
type Bpci struct {
	FramesAcceptedTotal prometheus.Counter
	FramesReplayedTotal prometheus.Counter
	FramesRejectedTotal prometheus.Counter
}

// NewBpci registers and returns the BPCI collector set.
func NewBpci(reg prometheus.Registerer) *Bpci {
	b := &Bpci{
		FramesAcceptedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bpci_frames_accepted_total",
			Help: "Total number of BPCI frames that verified and opened successfully.",
		}),
		FramesReplayedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bpci_frames_replayed_total",
			Help: "Total number of BPCI frames rejected as replays by the nonce tracker.",
		}),
		FramesRejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bpci_frames_rejected_total",
			Help: "Total number of BPCI frames rejected for any other reason (signature, AEAD).",
		}),
	}
	for _, c := range []prometheus.Collector{b.FramesAcceptedTotal, b.FramesReplayedTotal, b.FramesRejectedTotal} {
		reg.MustRegister(c)
	}
	return b
}

// Validators holds the validator-set and diversity-policy collectors.
type Validators struct {
	PolicyViolationsTotal prometheus.Counter
	ActiveValidators      prometheus.Gauge
}

// NewValidators registers and returns the validator collector set.
func NewValidators(reg prometheus.Registerer) *Validators {
	v := &Validators{
		PolicyViolationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "validator_diversity_policy_violations_total",
			Help: "Total number of diversity-policy violations recorded by the directory.",
		}),
		ActiveValidators: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "validator_active_count",
			Help: "Number of validators currently onboarded in the diversity directory.",
		}),
	}
	for _, c := range []prometheus.Collector{v.PolicyViolationsTotal, v.ActiveValidators} {
		reg.MustRegister(c)
	}
	return v
}
