// internal/sequencer/timing.go
package sequencer

import (
	"context"
	"time"
)

// DefaultOscillatorHz is the starter kit's 5 MHz crystal.
const DefaultOscillatorHz = 5000000

// pllMultiplier is the fixed x4 internal multiplier, fxx = 4 * fx.
const pllMultiplier = 4

// Timing derives the protocol wait times from the oscillator frequency.
type Timing struct {
	OscillatorHz uint32
}

// NewTiming returns the timing for fx. Zero selects the default oscillator.
func NewTiming(fx uint32) Timing {
	if fx == 0 {
		fx = DefaultOscillatorHz
	}
	return Timing{OscillatorHz: fx}
}

// Fxx is the internal clock in Hz.
func (t Timing) Fxx() float64 {
	fx := t.OscillatorHz
	if fx == 0 {
		fx = DefaultOscillatorHz
	}
	return float64(fx) * pllMultiplier
}

// TCOM precedes every command frame: 620/fxx + 15us.
func (t Timing) TCOM() time.Duration {
	return t.cycles(620) + 15*time.Microsecond
}

// T12 follows the first reset pulse byte.
func (t Timing) T12() time.Duration {
	return t.cycles(30000)
}

// T2C follows the second reset pulse byte.
func (t Timing) T2C() time.Duration {
	return t.cycles(30000)
}

// TWT10 follows a baud rate switch.
func (t Timing) TWT10() time.Duration {
	return t.cycles(2384)
}

func (t Timing) cycles(n float64) time.Duration {
	return time.Duration(n * float64(time.Second) / t.Fxx())
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
