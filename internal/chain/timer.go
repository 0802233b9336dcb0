package chain

import (
	"fmt"
	"time"
)

// TimerChannel is a repeating timer counting clock ticks. Its timeout flag
// is sticky: the handler must clear it or the interrupt re-enters.
type TimerChannel struct {
	period  uint32
	elapsed uint32
	armed   bool
	timeout StickyFlag
}

// Configure sets the repeat interval in clock ticks and restarts the count.
func (t *TimerChannel) Configure(period uint32) error {
	if period == 0 {
		return ErrInvalidPeriod
	}
	t.period = period
	t.elapsed = 0
	return nil
}

// Start arms the channel.
func (t *TimerChannel) Start() error {
	if t.period == 0 {
		return ErrTimerNotConfigured
	}
	t.armed = true
	return nil
}

// Stop disarms the channel. A pending timeout stays pending.
func (t *TimerChannel) Stop() {
	t.armed = false
}

// Period returns the configured period in ticks.
func (t *TimerChannel) Period() uint32 {
	return t.period
}

// Armed reports whether the channel is counting.
func (t *TimerChannel) Armed() bool {
	return t.armed
}

// advance counts ticks and returns the number of expiries that occurred.
func (t *TimerChannel) advance(ticks uint64) int {
	if !t.armed {
		return 0
	}
	total := uint64(t.elapsed) + ticks
	t.elapsed = uint32(total % uint64(t.period))
	return int(total / uint64(t.period))
}

func (t *TimerChannel) reset() {
	*t = TimerChannel{}
}

// PeriodTicks converts a period to clock ticks of the given length.
func PeriodTicks(period, tick time.Duration) (uint32, error) {
	if tick <= 0 {
		return 0, fmt.Errorf("tick must be positive, got %v", tick)
	}
	n := period / tick
	if n <= 0 {
		return 0, fmt.Errorf("period %v shorter than one tick (%v): %w", period, tick, ErrInvalidPeriod)
	}
	if n > time.Duration(^uint32(0)) {
		return 0, fmt.Errorf("period %v exceeds %d ticks of %v", period, ^uint32(0), tick)
	}
	return uint32(n), nil
}
