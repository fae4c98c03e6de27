// Package ledger provides the logical sequence clock used for escrow
// timestamps and deadlines.
package ledger

import (
	"sync"
	"time"
)

// SecondsPerSequence is the assumed spacing between two sequence values.
// Escrow creation converts its duration with it; deadline extensions do not.
const SecondsPerSequence = 5

type Clock interface {
	Sequence() uint32
}

// WallClock derives the sequence from elapsed wall time since Genesis.
type WallClock struct {
	Genesis time.Time
	Unit    time.Duration
	Now     func() time.Time
}

func NewWallClock(genesis time.Time, unit time.Duration) *WallClock {
	if unit <= 0 {
		unit = SecondsPerSequence * time.Second
	}
	return &WallClock{Genesis: genesis, Unit: unit, Now: time.Now}
}

func (c *WallClock) Sequence() uint32 {
	elapsed := c.Now().Sub(c.Genesis)
	if elapsed <= 0 {
		return 0
	}
	return uint32(elapsed / c.Unit)
}

// ManualClock is a settable clock for tests and local tooling.
type ManualClock struct {
	mu  sync.Mutex
	seq uint32
}

func NewManualClock(seq uint32) *ManualClock {
	return &ManualClock{seq: seq}
}

func (c *ManualClock) Sequence() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

func (c *ManualClock) Set(seq uint32) {
	c.mu.Lock()
	c.seq = seq
	c.mu.Unlock()
}

func (c *ManualClock) Advance(delta uint32) {
	c.mu.Lock()
	c.seq += delta
	c.mu.Unlock()
}
