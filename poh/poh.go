// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package poh implements the proof-of-history tick chain: a hash-linked
// append-only sequence of ticks plus a per-sender nonce-chain variant
// used to derive deterministic ticks from externally supplied nonces.
package poh

import (
	"errors"
	"sync"
	"time"

	"github.com/metanode/bpci-core/encoding"
)

// Errors returned by chain operations. Kinds match the contract in
// §4.2/§7 of the component design rather than being ad-hoc strings.
var (
	ErrEmptyChain          = errors.New("poh: chain is empty")
	ErrIndexOutOfBounds    = errors.New("poh: index out of bounds")
	ErrInvalidChain        = errors.New("poh: chain invariant violated")
	ErrVrfVerificationFailed = errors.New("poh: vrf proof did not verify")
	ErrInvalidTickFormat   = errors.New("poh: tick has an invalid uniform byte pattern")
	ErrSenderNotFound      = errors.New("poh: sender has not been initialized")
)

// maxLeavesPerRoot is the number of most-recent ticks folded into a
// single block's PoH root.
const maxLeavesPerRoot = 10

// Tick is a single proof-of-history entry.
type Tick struct {
	PrevHash    encoding.Hash
	TimestampUs uint64
	Data        []byte
	VrfProof    []byte
	Hash        encoding.Hash
}

// encode produces the canonical bytes hashed to produce Tick.Hash.
func (t Tick) encode() []byte {
	w := encoding.NewWriter(64 + len(t.Data) + len(t.VrfProof))
	w.Fixed(t.PrevHash[:])
	w.Uint64(t.TimestampUs)
	w.VarBytes(t.Data)
	w.VarBytes(t.VrfProof)
	return w.Bytes()
}

func computeTickHash(t Tick) encoding.Hash {
	return encoding.DomainHash(encoding.TagPohTick, t.encode())
}

// Config holds the tunables for a Chain, mirroring the PohConfig shape
// the reference implementation carries (tick cadence, retention, and
// whether VRF proofs are mandatory).
type Config struct {
	TickDurationUs uint64
	MaxHistorySize int
	EnableVRF      bool
}

// DefaultConfig matches the reference defaults: 1ms ticks, a 10,000
// tick retention window, VRF disabled.
func DefaultConfig() Config {
	return Config{
		TickDurationUs: 1000,
		MaxHistorySize: 10000,
		EnableVRF:      false,
	}
}

// senderChain tracks one sender's running nonce-chain value and the
// last nonce observed (for diagnostics only; any nonce is accepted).
type senderChain struct {
	nc         encoding.Hash
	lastNonce  uint64
	everTicked bool
}

// Chain is a single proof-of-history tick chain plus its per-sender
// nonce-chain derivations. All operations are safe for concurrent use.
type Chain struct {
	mu      sync.RWMutex
	cfg     Config
	genesis encoding.Hash
	ticks   []Tick // append-only ring, trimmed to cfg.MaxHistorySize
	senders map[string]*senderChain
}

// New constructs an uninitialized chain; call Initialize before ticking.
func New(cfg Config) *Chain {
	return &Chain{
		cfg:     cfg,
		senders: make(map[string]*senderChain),
	}
}

// Initialize creates the genesis tick (prev_hash = 0^32) and returns its
// hash.
func (c *Chain) Initialize() encoding.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()

	genesis := Tick{PrevHash: encoding.Hash{}, TimestampUs: nowMicros()}
	genesis.Hash = computeTickHash(genesis)
	c.ticks = []Tick{genesis}
	c.genesis = genesis.Hash
	return genesis.Hash
}

// Tick appends a new tick linked to the current head and returns its
// hash.
func (c *Chain) Tick(data []byte) (encoding.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tickLocked(data, nil)
}

func (c *Chain) tickLocked(data, vrfProof []byte) (encoding.Hash, error) {
	if len(c.ticks) == 0 {
		return encoding.Hash{}, ErrEmptyChain
	}
	prev := c.ticks[len(c.ticks)-1]
	t := Tick{PrevHash: prev.Hash, TimestampUs: nowMicros(), Data: data, VrfProof: vrfProof}
	t.Hash = computeTickHash(t)
	c.appendLocked(t)
	return t.Hash, nil
}

func (c *Chain) appendLocked(t Tick) {
	c.ticks = append(c.ticks, t)
	if c.cfg.MaxHistorySize > 0 && len(c.ticks) > c.cfg.MaxHistorySize {
		c.ticks = c.ticks[len(c.ticks)-c.cfg.MaxHistorySize:]
	}
}

// Advance appends n empty ticks and returns their hashes in order.
func (c *Chain) Advance(n int) ([]encoding.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hashes := make([]encoding.Hash, 0, n)
	for i := 0; i < n; i++ {
		h, err := c.tickLocked(nil, nil)
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}
	return hashes, nil
}

// LatestHash returns the hash of the most recently appended tick.
func (c *Chain) LatestHash() (encoding.Hash, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.ticks) == 0 {
		return encoding.Hash{}, ErrEmptyChain
	}
	return c.ticks[len(c.ticks)-1].Hash, nil
}

// VerifyChain recomputes every tick's hash and checks prev_hash linkage.
func (c *Chain) VerifyChain() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i, t := range c.ticks {
		if computeTickHash(t) != t.Hash {
			return ErrInvalidChain
		}
		if i == 0 {
			continue
		}
		if t.PrevHash != c.ticks[i-1].Hash {
			return ErrInvalidChain
		}
	}
	return nil
}

// GetBlockTicks returns up to maxLeavesPerRoot of the most recent ticks,
// in chronological order, for folding into a block's PoH root.
func (c *Chain) GetBlockTicks() []Tick {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := len(c.ticks)
	if n == 0 {
		return nil
	}
	start := 0
	if n > maxLeavesPerRoot {
		start = n - maxLeavesPerRoot
	}
	out := make([]Tick, n-start)
	copy(out, c.ticks[start:])
	return out
}

// ComputePohRoot folds ticks into the block's PoH root: an empty block
// returns the zero hash.
func ComputePohRoot(ticks []Tick) encoding.Hash {
	if len(ticks) == 0 {
		return encoding.Hash{}
	}
	leaves := make([]encoding.Hash, len(ticks))
	for i, t := range ticks {
		leaves[i] = t.Hash
	}
	return encoding.MerkleRoot(encoding.TagPohTick, leaves)
}

// ProveHistory returns the ticks in [lo, hi) together with the Merkle
// root ComputePohRoot gives over that same slice. It does not build
// per-leaf inclusion proofs.
func (c *Chain) ProveHistory(lo, hi int) ([]Tick, encoding.Hash, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if lo < 0 || hi > len(c.ticks) || lo >= hi {
		return nil, encoding.Hash{}, ErrIndexOutOfBounds
	}
	window := c.ticks[lo:hi]
	return window, ComputePohRoot(window), nil
}

// IsValidTickFormat rejects degenerate all-same-byte hash patterns
// (0^32, 0xFF^32, and any other uniform byte value). The reference
// implementation carved out 0x01^32/0x02^32 as a test-only allow-list;
// that exception is dropped here; production tick hashes must never be
// a uniform byte pattern, full stop.
func IsValidTickFormat(h encoding.Hash) bool {
	first := h[0]
	for _, b := range h[1:] {
		if b != first {
			return true
		}
	}
	return false
}

func nowMicros() uint64 {
	return uint64(time.Now().UnixMicro())
}

// nonceLE returns n's little-endian byte encoding, matching every other
// fixed-width integer field in the canonical encoding.
func nonceLE(n uint64) []byte {
	b := make([]byte, 8)
	for i := range b {
		b[i] = byte(n >> (8 * i))
	}
	return b
}

// InitializeSender resets sender's nonce-chain value to the zero hash.
// Safe to call again later to reset a sender (e.g. after an external
// slashing event); callers that merely want lazy creation can rely on
// UpdateSenderNonce to initialize on first use.
func (c *Chain) InitializeSender(sender string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.senders[sender] = &senderChain{}
}

// UpdateSenderNonce folds nonce into sender's running chain value:
// NC <- H(NC || n_le). Any nonce is accepted, including one already
// seen or out of order; callers that need monotonicity enforce it
// themselves (see §8's assumption that callers supply monotone nonces).
func (c *Chain) UpdateSenderNonce(sender string, nonce uint64) encoding.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()

	sc, ok := c.senders[sender]
	if !ok {
		sc = &senderChain{}
		c.senders[sender] = sc
	}
	w := encoding.NewWriter(encoding.HashSize + 8)
	w.Fixed(sc.nc[:])
	w.Fixed(nonceLE(nonce))
	sc.nc = encoding.PlainHash(w.Bytes())
	sc.lastNonce = nonce
	sc.everTicked = true
	return sc.nc
}

// DeriveSenderTick derives the deterministic tick for sender under seed:
// T = H(TICK_DERIVATION || seed || NC). Deterministic and bit-identical
// across replays given the same seed and the same nonce sequence folded
// into NC so far.
func (c *Chain) DeriveSenderTick(sender string, seed []byte) (encoding.Hash, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sc, ok := c.senders[sender]
	if !ok {
		return encoding.Hash{}, ErrSenderNotFound
	}
	w := encoding.NewWriter(len(seed) + encoding.HashSize)
	w.Fixed(seed)
	w.Fixed(sc.nc[:])
	return encoding.DomainHash(encoding.TagTickDerivation, w.Bytes()), nil
}

// TickWithSender folds nonce into sender's nonce chain and derives the
// tick for seed in one call, returning the derived tick hash.
func (c *Chain) TickWithSender(sender string, nonce uint64, seed []byte) (encoding.Hash, error) {
	c.UpdateSenderNonce(sender, nonce)
	return c.DeriveSenderTick(sender, seed)
}

// ReplaySenderTicks replays nonces against a fresh nonce-chain value
// (independent of any state already recorded for sender) and returns
// the derived tick after each one, in order. Used to prove nonce-chain
// determinism: replaying the same (seed, nonces) sequence from scratch
// always reproduces the same tick sequence.
func ReplaySenderTicks(seed []byte, nonces []uint64) []encoding.Hash {
	var nc encoding.Hash
	out := make([]encoding.Hash, len(nonces))
	for i, n := range nonces {
		w := encoding.NewWriter(encoding.HashSize + 8)
		w.Fixed(nc[:])
		w.Fixed(nonceLE(n))
		nc = encoding.PlainHash(w.Bytes())

		tw := encoding.NewWriter(len(seed) + encoding.HashSize)
		tw.Fixed(seed)
		tw.Fixed(nc[:])
		out[i] = encoding.DomainHash(encoding.TagTickDerivation, tw.Bytes())
	}
	return out
}
