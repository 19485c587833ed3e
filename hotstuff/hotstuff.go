// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package hotstuff implements the pipelined speculative-execution
// optimizer that runs alongside IBFT voting: Prepare -> PreCommit ->
// Commit -> Decide phases, each of which may speculatively execute
// proposal transactions into a per-round side buffer. Nothing in the
// buffer is applied to state until Commit; a round that IBFT ultimately
// fails discards the whole buffer instead (spec.md §9's "speculative
// execution rollback" design note).
package hotstuff

import (
	"sync"
	"time"

	"github.com/metanode/bpci-core/encoding"
)

// Phase is one stage of the pipeline.
type Phase int

const (
	PhasePrepare Phase = iota
	PhasePreCommit
	PhaseCommit
	PhaseDecide
)

// ExecutionResult is one transaction's speculative-execution outcome.
type ExecutionResult struct {
	ExecutionID      string
	TxHash           encoding.Hash
	TimeMs           float64
	GasUsed          uint64
	Success          bool
	RollbackRequired bool
}

// Counters holds the pipeline's running performance metrics, updated
// at the end of Decide.
type Counters struct {
	PipelineLatencyMs float64
	ThroughputTxPerS  float64
	EfficiencyRatio   float64 // fraction of speculative results that were not rolled back
}

// Pipeline runs one round's four-phase speculative pipeline.
type Pipeline struct {
	mu        sync.Mutex
	phase     Phase
	startedAt time.Time
	buffer    []ExecutionResult
	committed bool
	counters  Counters
}

// New starts a pipeline at PhasePrepare.
func New() *Pipeline {
	return &Pipeline{phase: PhasePrepare, startedAt: time.Now()}
}

// Phase returns the pipeline's current phase.
func (p *Pipeline) Phase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

// Advance moves the pipeline to its next phase in order; calling
// Advance from PhaseDecide is a no-op (the round is already finished).
func (p *Pipeline) Advance() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.phase < PhaseDecide {
		p.phase++
	}
	return p.phase
}

// SpeculativelyExecute records a speculative execution result in the
// round's side buffer. No state is written by this call; results only
// take effect once Commit applies the buffer.
func (p *Pipeline) SpeculativelyExecute(result ExecutionResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buffer = append(p.buffer, result)
}

// Commit applies the side buffer: results are returned for the caller
// to persist, filtered to exclude anything flagged RollbackRequired
// (results an IBFT decision has already contradicted get discarded
// rather than applied, even on a nominal Commit).
func (p *Pipeline) Commit() []ExecutionResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.committed = true

	applied := make([]ExecutionResult, 0, len(p.buffer))
	for _, r := range p.buffer {
		if !r.RollbackRequired {
			applied = append(applied, r)
		}
	}
	return applied
}

// Rollback discards the entire side buffer without applying anything,
// used when the IBFT decision the pipeline was speculating against
// failed outright.
func (p *Pipeline) Rollback() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buffer = nil
	p.committed = false
}

// Decide finalizes the pipeline's performance counters from the side
// buffer's contents and the elapsed wall-clock time since New.
func (p *Pipeline) Decide() Counters {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.phase = PhaseDecide

	elapsed := time.Since(p.startedAt)
	p.counters.PipelineLatencyMs = float64(elapsed.Milliseconds())

	total := len(p.buffer)
	if total == 0 {
		p.counters.EfficiencyRatio = 1
		p.counters.ThroughputTxPerS = 0
		return p.counters
	}

	kept := 0
	for _, r := range p.buffer {
		if !r.RollbackRequired {
			kept++
		}
	}
	p.counters.EfficiencyRatio = float64(kept) / float64(total)
	if elapsed > 0 {
		p.counters.ThroughputTxPerS = float64(total) / elapsed.Seconds()
	}
	return p.counters
}

// BufferedResults returns a copy of the pending speculative buffer,
// for inspection before Commit/Rollback.
func (p *Pipeline) BufferedResults() []ExecutionResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ExecutionResult, len(p.buffer))
	copy(out, p.buffer)
	return out
}
