// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package log wraps github.com/luxfi/log with the component-tagged
// constructors used throughout the consensus core.
package log

import (
	"github.com/luxfi/log"
)

// Logger is the interface every subsystem receives; it is the upstream
// luxfi/log.Logger so callers never need to adapt between types.
type Logger = log.Logger

// NewNoOpLogger returns a logger that discards everything. Useful for
// tests and for components instantiated before the real logger is wired.
func NewNoOpLogger() Logger {
	return log.NewNoOpLogger()
}

// New returns a component-scoped logger, e.g. New(base, "ibft") so that
// every line from the IBFT state machine is tagged with component=ibft.
func New(base Logger, component string) Logger {
	if base == nil {
		base = NewNoOpLogger()
	}
	return base.With("component", component)
}
