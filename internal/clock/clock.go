// Package clock abstracts ledger time. Timelocks compare absolute unix
// timestamps against the clock at call time; nothing auto-executes on
// expiry.
package clock

import (
	"sync/atomic"
	"time"
)

// Clock supplies the current ledger time in unix seconds.
type Clock interface {
	Now() int64
}

// System reads the wall clock.
type System struct{}

func (System) Now() int64 { return time.Now().Unix() }

// Manual is a settable clock for tests and replay.
type Manual struct {
	now atomic.Int64
}

func NewManual(start int64) *Manual {
	m := &Manual{}
	m.now.Store(start)
	return m
}

func (m *Manual) Now() int64 { return m.now.Load() }

// Set moves the clock to an absolute timestamp.
func (m *Manual) Set(t int64) { m.now.Store(t) }

// Advance moves the clock forward by d seconds.
func (m *Manual) Advance(d int64) { m.now.Add(d) }
