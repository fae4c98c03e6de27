package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWallClockSequence(t *testing.T) {
	genesis := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewWallClock(genesis, 5*time.Second)

	clock.Now = func() time.Time { return genesis.Add(-time.Minute) }
	assert.Equal(t, uint32(0), clock.Sequence())

	clock.Now = func() time.Time { return genesis.Add(7200 * time.Second) }
	assert.Equal(t, uint32(1440), clock.Sequence())

	clock.Now = func() time.Time { return genesis.Add(14 * time.Second) }
	assert.Equal(t, uint32(2), clock.Sequence())
}

func TestWallClockDefaultsUnit(t *testing.T) {
	clock := NewWallClock(time.Now(), 0)
	assert.Equal(t, SecondsPerSequence*time.Second, clock.Unit)
}

func TestManualClock(t *testing.T) {
	clock := NewManualClock(100)
	assert.Equal(t, uint32(100), clock.Sequence())

	clock.Advance(20)
	assert.Equal(t, uint32(120), clock.Sequence())

	clock.Set(5)
	assert.Equal(t, uint32(5), clock.Sequence())
}
