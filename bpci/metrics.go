// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bpci

import (
	"crypto/ed25519"
	"errors"

	"github.com/metanode/bpci-core/metrics"
)

// VerifyAndOpenObserved wraps VerifyAndOpen, recording the outcome
// against the transport's frame counters: replays are counted
// separately from other rejections so a replay storm is distinguishable
// from a key-mismatch or signature problem on the same dashboard.
func VerifyAndOpenObserved(f Frame, tracker *NonceTracker, signerPub ed25519.PublicKey, aeadKey []byte, m *metrics.Bpci) ([]byte, error) {
	plaintext, err := VerifyAndOpen(f, tracker, signerPub, aeadKey)
	if err != nil {
		var replay *ReplayError
		if errors.As(err, &replay) {
			m.FramesReplayedTotal.Inc()
		} else {
			m.FramesRejectedTotal.Inc()
		}
		return nil, err
	}
	m.FramesAcceptedTotal.Inc()
	return plaintext, nil
}
