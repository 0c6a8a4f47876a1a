package core

import (
	"math"
	"sync"

	nativecommon "deficore/native/common"
)

// MaxHeight is the largest logical height the clock will report.
const MaxHeight = math.MaxUint32

var (
	ErrHeightRegression = nativecommon.NewError(nativecommon.KindValidation, "clock: height cannot move backwards")
	ErrHeightOverflow   = nativecommon.NewError(nativecommon.KindValidation, "clock: height exceeds 32-bit range")
)

// Clock is the host-owned logical height. It never decreases.
type Clock struct {
	mu     sync.RWMutex
	height uint64
}

// NewClock starts the clock at height.
func NewClock(height uint64) *Clock {
	return &Clock{height: height}
}

// Height implements nativecommon.Clock.
func (c *Clock) Height() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.height
}

// Advance moves the clock to height. Staying at the current height is allowed.
func (c *Clock) Advance(height uint64) error {
	if height > MaxHeight {
		return ErrHeightOverflow
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if height < c.height {
		return ErrHeightRegression
	}
	c.height = height
	return nil
}

// Tick advances the clock by one height and returns the new value.
func (c *Clock) Tick() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.height >= MaxHeight {
		return c.height, ErrHeightOverflow
	}
	c.height++
	return c.height, nil
}
