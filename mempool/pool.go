// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mempool

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/metanode/bpci-core/encoding"
	"github.com/metanode/bpci-core/metrics"
)

// Errors returned by Pool operations.
var (
	ErrCapacity            = errors.New("mempool: at max_pending_txs capacity")
	ErrRateLimited         = errors.New("mempool: sender exceeded the submission rate limit")
	ErrTxNotFound          = errors.New("mempool: transaction not found")
	ErrRevealDeadlinePassed = errors.New("mempool: reveal_deadline has passed")
	ErrTxIDMismatch        = errors.New("mempool: decrypted tx_id does not match the recorded tx_id")
	ErrRecoveryExhausted   = errors.New("mempool: max_recovery_attempts exceeded")
)

// Config holds the mempool's tunables, named directly after spec.md §4.6.
type Config struct {
	MaxPendingTxs      int
	RevealTimeoutMs    int64
	EpochDurationMs    int64
	MaxRecoveryAttempts int
	StuckTxTimeoutMs   int64
	DecryptBatchSize   int
	RateWindowSeconds  int64
	RateWindowMax      int
}

// DefaultConfig matches the defaults named across spec.md §4.6/§5.
func DefaultConfig() Config {
	return Config{
		MaxPendingTxs:       10_000,
		RevealTimeoutMs:     5_000,
		EpochDurationMs:     3_600_000,
		MaxRecoveryAttempts: 5,
		StuckTxTimeoutMs:    300_000,
		DecryptBatchSize:    128,
		RateWindowSeconds:   60,
		RateWindowMax:       100,
	}
}

type rateWindow struct {
	windowStart int64
	count       int
}

// Pool is the encrypted mempool. Lock ordering follows spec.md §5:
// epochMu -> encryptedMu -> recoveryMu. pendingMu (the revealed set) and
// rateMu are independent and never held alongside the other three.
type Pool struct {
	cfg Config
	m   *metrics.Mempool

	epochMu      sync.RWMutex
	epochKeys    map[uint64]*EpochKey
	currentEpoch uint64

	encryptedMu sync.RWMutex
	encrypted   map[encoding.Hash]*EncryptedTx

	recoveryMu sync.RWMutex
	recovery   map[encoding.Hash]*RecoveryRecord

	pendingMu sync.Mutex
	pending   map[encoding.Hash]Tx

	rateMu sync.Mutex
	rates  map[string]*rateWindow
}

// New constructs a Pool with a freshly generated epoch-1 leader keypair.
func New(cfg Config, m *metrics.Mempool) (*Pool, error) {
	p := &Pool{
		cfg:       cfg,
		m:         m,
		epochKeys: make(map[uint64]*EpochKey),
		encrypted: make(map[encoding.Hash]*EncryptedTx),
		recovery:  make(map[encoding.Hash]*RecoveryRecord),
		pending:   make(map[encoding.Hash]Tx),
		rates:     make(map[string]*rateWindow),
	}
	if _, err := p.rotateEpochKeysLocked(time.Now()); err != nil {
		return nil, err
	}
	return p, nil
}

func generateEpochKeypair() (secret, public [32]byte, err error) {
	if _, err = rand.Read(secret[:]); err != nil {
		return secret, public, err
	}
	pub, err := curve25519.X25519(secret[:], curve25519.Basepoint)
	if err != nil {
		return secret, public, err
	}
	copy(public[:], pub)
	return secret, public, nil
}

// RotateEpochKeys generates a new static keypair, deactivates every
// prior key (retained, searchable, for recovery), installs the new
// keypair as the current leader key, and bumps current_epoch.
func (p *Pool) RotateEpochKeys() (*EpochKey, error) {
	p.epochMu.Lock()
	defer p.epochMu.Unlock()
	return p.rotateEpochKeysLocked(time.Now())
}

func (p *Pool) rotateEpochKeysLocked(now time.Time) (*EpochKey, error) {
	secret, public, err := generateEpochKeypair()
	if err != nil {
		return nil, err
	}
	for _, k := range p.epochKeys {
		k.Active = false
	}
	p.currentEpoch++
	ek := &EpochKey{
		EpochID:   p.currentEpoch,
		Secret:    secret,
		Public:    public,
		CreatedAt: now.UnixMilli(),
		ExpiresAt: now.UnixMilli() + p.cfg.EpochDurationMs,
		Active:    true,
	}
	p.epochKeys[ek.EpochID] = ek
	if p.m != nil {
		p.m.EpochRotationsTotal.Inc()
	}
	return ek, nil
}

// currentLeaderKey returns the active epoch key's public key and epoch id.
func (p *Pool) currentLeaderKey() (pub [32]byte, epoch uint64) {
	p.epochMu.RLock()
	defer p.epochMu.RUnlock()
	k := p.epochKeys[p.currentEpoch]
	return k.Public, k.EpochID
}

func deriveTxAeadKey(shared []byte) ([]byte, error) {
	info := encoding.DomainHash(encoding.TagMempoolTxEncryption, nil)
	kdf := hkdf.New(sha256.New, shared, nil, info[:])
	key := make([]byte, 32)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, err
	}
	return key, nil
}

// checkRateLimit enforces a 60s sliding window per sender (approximated
// as a fixed window that resets once RateWindowSeconds elapses, which
// is the teacher's own poll-window idiom rather than a true sliding
// log). Over-limit submissions fail and bump the DoS block counter.
func (p *Pool) checkRateLimit(sender string, now time.Time) error {
	p.rateMu.Lock()
	defer p.rateMu.Unlock()

	w, ok := p.rates[sender]
	if !ok || now.Unix()-w.windowStart >= p.cfg.RateWindowSeconds {
		w = &rateWindow{windowStart: now.Unix()}
		p.rates[sender] = w
	}
	if w.count >= p.cfg.RateWindowMax {
		if p.m != nil {
			p.m.DosBlocksTotal.Inc()
		}
		return ErrRateLimited
	}
	w.count++
	return nil
}

// EncryptToLeader encrypts tx to the current epoch's leader public key:
// fresh ephemeral X25519, shared secret, HKDF-derived AEAD key over
// domain_hash(MEMPOOL_TX_ENCRYPTION, nil), AEAD-sealed canonical
// encoding. Fails with ErrCapacity at max_pending_txs, or ErrRateLimited
// if the sender's 60s window is exhausted.
func (p *Pool) EncryptToLeader(tx Tx) (*EncryptedTx, error) {
	now := time.Now()
	if err := p.checkRateLimit(tx.Sender, now); err != nil {
		return nil, err
	}

	p.encryptedMu.RLock()
	atCapacity := len(p.encrypted) >= p.cfg.MaxPendingTxs
	p.encryptedMu.RUnlock()
	if atCapacity {
		return nil, ErrCapacity
	}

	tx.TxID = computeTxID(tx)
	leaderPub, epoch := p.currentLeaderKey()

	var ephSecret [32]byte
	if _, err := rand.Read(ephSecret[:]); err != nil {
		return nil, err
	}
	ephPubBytes, err := curve25519.X25519(ephSecret[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	shared, err := curve25519.X25519(ephSecret[:], leaderPub[:])
	if err != nil {
		return nil, err
	}
	aeadKey, err := deriveTxAeadKey(shared)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(aeadKey)
	if err != nil {
		return nil, err
	}
	var nonce [12]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	plaintext := encodeTx(tx)
	ct := aead.Seal(nil, nonce[:], plaintext, nil)

	et := &EncryptedTx{
		TxID:           tx.TxID,
		Ciphertext:     ct,
		Nonce:          nonce,
		CreatedAt:      now.UnixMilli(),
		RevealDeadline: now.UnixMilli() + p.cfg.RevealTimeoutMs,
		EpochID:        epoch,
	}
	copy(et.LeaderPublicKey[:], leaderPub[:])
	copy(et.EphemeralPublicKey[:], ephPubBytes)

	p.encryptedMu.Lock()
	p.encrypted[tx.TxID] = et
	p.encryptedMu.Unlock()

	if p.m != nil {
		p.m.PendingTxs.Inc()
		p.m.EncryptedTxs.Inc()
	}
	return et, nil
}

func encodeTx(t Tx) []byte {
	w := encoding.NewWriter(len(t.Sender) + len(t.Recipient) + 32)
	w.Fixed(t.TxID[:])
	w.String(t.Sender)
	w.String(t.Recipient)
	w.Uint64(t.Amount)
	w.Uint64(t.Fee)
	w.Uint64(t.Nonce)
	w.Int64(t.Timestamp)
	return w.Bytes()
}

func decodeTx(b []byte) (Tx, error) {
	r := &reader{buf: b}
	var tx Tx
	var err error
	if tx.TxID, err = r.hash(); err != nil {
		return Tx{}, err
	}
	if tx.Sender, err = r.str(); err != nil {
		return Tx{}, err
	}
	if tx.Recipient, err = r.str(); err != nil {
		return Tx{}, err
	}
	if tx.Amount, err = r.u64(); err != nil {
		return Tx{}, err
	}
	if tx.Fee, err = r.u64(); err != nil {
		return Tx{}, err
	}
	if tx.Nonce, err = r.u64(); err != nil {
		return Tx{}, err
	}
	if tx.Timestamp, err = r.i64(); err != nil {
		return Tx{}, err
	}
	return tx, nil
}

// decryptWith attempts to open et's ciphertext with the given static
// secret (an epoch leader secret), returning the plaintext Tx.
func decryptWith(et *EncryptedTx, secret [32]byte) (Tx, error) {
	shared, err := curve25519.X25519(secret[:], et.EphemeralPublicKey[:])
	if err != nil {
		return Tx{}, err
	}
	aeadKey, err := deriveTxAeadKey(shared)
	if err != nil {
		return Tx{}, err
	}
	aead, err := chacha20poly1305.New(aeadKey)
	if err != nil {
		return Tx{}, err
	}
	plaintext, err := aead.Open(nil, et.Nonce[:], et.Ciphertext, nil)
	if err != nil {
		return Tx{}, err
	}
	return decodeTx(plaintext)
}

// Reveal decrypts an encrypted entry with the secret of the epoch it
// was encrypted under (EncryptedTx.EpochID) before its reveal_deadline. On success it moves the transaction into
// the pending set and returns a reveal_proof bound to (tx, created_at).
// Past the deadline, Reveal fails without attempting decryption and the
// caller should fall back to RecoverStuck.
func (p *Pool) Reveal(txID encoding.Hash) (Tx, encoding.Hash, error) {
	p.encryptedMu.RLock()
	et, ok := p.encrypted[txID]
	p.encryptedMu.RUnlock()
	if !ok {
		return Tx{}, encoding.Hash{}, ErrTxNotFound
	}
	if time.Now().UnixMilli() > et.RevealDeadline {
		return Tx{}, encoding.Hash{}, ErrRevealDeadlinePassed
	}

	p.epochMu.RLock()
	key, ok := p.epochKeys[et.EpochID]
	p.epochMu.RUnlock()
	if !ok {
		return Tx{}, encoding.Hash{}, ErrTxNotFound
	}

	tx, err := decryptWith(et, key.Secret)
	if err != nil {
		return Tx{}, encoding.Hash{}, err
	}
	if computeTxID(tx) != txID {
		return Tx{}, encoding.Hash{}, ErrTxIDMismatch
	}

	proof := revealProof(tx, et.CreatedAt)
	p.markRevealedLocked(txID, tx)
	return tx, proof, nil
}

func revealProof(tx Tx, createdAt int64) encoding.Hash {
	return encoding.DomainHash(encoding.TagMempoolReveal, tx.encodeWithCreatedAt(createdAt))
}

func recoveryProof(tx Tx, createdAt int64) encoding.Hash {
	return encoding.DomainHash(encoding.TagMempoolRecovery, tx.encodeWithCreatedAt(createdAt))
}

func (p *Pool) markRevealedLocked(txID encoding.Hash, tx Tx) {
	p.pendingMu.Lock()
	p.pending[txID] = tx
	p.pendingMu.Unlock()

	if p.m != nil {
		p.m.RevealedTxsTotal.Inc()
	}
}

// RecoverStuck is the lost-key recovery path: enumerate historical
// epoch keys and attempt decryption with each until one succeeds. On
// first success the tx moves into the pending set, its recovery record
// is dropped, and a recovery_proof is returned. Each failed call counts
// an attempt in the tx's RecoveryRecord (created, with StuckSince, on
// the first failure); once Attempts reaches max_recovery_attempts the
// call returns ErrRecoveryExhausted. No TxStatus value is stored for
// the entry on either path.
func (p *Pool) RecoverStuck(txID encoding.Hash) (Tx, encoding.Hash, error) {
	p.encryptedMu.RLock()
	et, ok := p.encrypted[txID]
	p.encryptedMu.RUnlock()
	if !ok {
		return Tx{}, encoding.Hash{}, ErrTxNotFound
	}

	p.epochMu.RLock()
	keys := make([]*EpochKey, 0, len(p.epochKeys))
	for _, k := range p.epochKeys {
		keys = append(keys, k)
	}
	p.epochMu.RUnlock()

	now := time.Now().UnixMilli()
	for _, k := range keys {
		if p.m != nil {
			p.m.RecoveryAttemptsTotal.Inc()
		}
		tx, err := decryptWith(et, k.Secret)
		if err != nil || computeTxID(tx) != txID {
			continue
		}
		proof := recoveryProof(tx, et.CreatedAt)
		p.markRevealedLocked(txID, tx)

		p.recoveryMu.Lock()
		delete(p.recovery, txID)
		p.recoveryMu.Unlock()

		if p.m != nil {
			p.m.RecoveredTxsTotal.Inc()
		}
		return tx, proof, nil
	}

	p.recoveryMu.Lock()
	rec, ok := p.recovery[txID]
	if !ok {
		rec = &RecoveryRecord{TxID: txID, StuckSince: now}
		p.recovery[txID] = rec
	}
	rec.Attempts++
	rec.LastAttempt = now
	exhausted := rec.Attempts >= p.cfg.MaxRecoveryAttempts
	p.recoveryMu.Unlock()

	if exhausted {
		return Tx{}, encoding.Hash{}, ErrRecoveryExhausted
	}
	return Tx{}, encoding.Hash{}, errors.New("mempool: recovery attempt failed, will retry")
}

// BatchDecrypt decrypts and reveals up to DecryptBatchSize non-expired
// encrypted entries whose reveal_deadline has not yet passed, returning
// the successfully decrypted plaintexts.
func (p *Pool) BatchDecrypt() []Tx {
	p.encryptedMu.RLock()
	candidates := make([]encoding.Hash, 0, len(p.encrypted))
	now := time.Now().UnixMilli()
	for id, et := range p.encrypted {
		if et.RevealDeadline >= now {
			candidates = append(candidates, id)
		}
	}
	p.encryptedMu.RUnlock()

	out := make([]Tx, 0, p.cfg.DecryptBatchSize)
	for _, id := range candidates {
		if len(out) >= p.cfg.DecryptBatchSize {
			break
		}
		tx, _, err := p.Reveal(id)
		if err != nil {
			continue
		}
		out = append(out, tx)
	}
	return out
}

// Sweep removes every entry whose stuck_since predates
// now-stuck_tx_timeout_ms from both the recovery log and the encrypted
// set, and returns how many were removed. Removal is the only record of
// expiry: no Expired status is stored for the entry.
func (p *Pool) Sweep(now time.Time) int {
	cutoff := now.UnixMilli() - p.cfg.StuckTxTimeoutMs

	p.recoveryMu.Lock()
	var expired []encoding.Hash
	for id, rec := range p.recovery {
		if rec.StuckSince < cutoff {
			expired = append(expired, id)
			delete(p.recovery, id)
		}
	}
	stuckRemaining := len(p.recovery)
	p.recoveryMu.Unlock()

	if len(expired) == 0 {
		return 0
	}

	p.encryptedMu.Lock()
	for _, id := range expired {
		delete(p.encrypted, id)
	}
	p.encryptedMu.Unlock()

	if p.m != nil {
		p.m.StuckTxs.Set(float64(stuckRemaining))
	}
	return len(expired)
}

// PendingCount returns the number of revealed transactions awaiting
// block inclusion.
func (p *Pool) PendingCount() int {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	return len(p.pending)
}

// TakePending drains and returns the revealed set.
func (p *Pool) TakePending() []Tx {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	out := make([]Tx, 0, len(p.pending))
	for _, tx := range p.pending {
		out = append(out, tx)
	}
	p.pending = make(map[encoding.Hash]Tx)
	return out
}

// small hand-rolled reader for decodeTx's canonical-encoding layout,
// mirroring encoding.Writer's field order exactly.
type reader struct {
	buf []byte
	pos int
}

var errShortRead = errors.New("mempool: truncated canonical encoding")

func (r *reader) hash() (encoding.Hash, error) {
	var h encoding.Hash
	if r.pos+encoding.HashSize > len(r.buf) {
		return h, errShortRead
	}
	copy(h[:], r.buf[r.pos:r.pos+encoding.HashSize])
	r.pos += encoding.HashSize
	return h, nil
}

func (r *reader) u32() (uint32, error) {
	if r.pos+4 > len(r.buf) {
		return 0, errShortRead
	}
	v := uint32(r.buf[r.pos]) | uint32(r.buf[r.pos+1])<<8 | uint32(r.buf[r.pos+2])<<16 | uint32(r.buf[r.pos+3])<<24
	r.pos += 4
	return v, nil
}

func (r *reader) u64() (uint64, error) {
	if r.pos+8 > len(r.buf) {
		return 0, errShortRead
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(r.buf[r.pos+i]) << (8 * i)
	}
	r.pos += 8
	return v, nil
}

func (r *reader) i64() (int64, error) {
	v, err := r.u64()
	return int64(v), err
}

func (r *reader) str() (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	if r.pos+int(n) > len(r.buf) {
		return "", errShortRead
	}
	s := string(r.buf[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}
