package chain

import (
	"fmt"
	"sync/atomic"
)

// Transmitter sends one payload over the gated channel.
type Transmitter interface {
	Transmit(payload []byte) error
}

// TransmitGate mirrors the comparator output level. Unlike the indicator it
// follows the level, not the edge: every attempt while open succeeds and
// every attempt while closed is dropped.
type TransmitGate struct {
	modulated atomic.Bool
	open      atomic.Bool
	tx        Transmitter
}

// Latch enables output modulation when the gate is wired to a trigger source.
func (g *TransmitGate) Latch(src Peripheral) {
	g.modulated.Store(true)
}

// Trigger follows the source level. It is ignored until modulation is latched.
func (g *TransmitGate) Trigger(src Peripheral, high bool) {
	if g.modulated.Load() {
		g.open.Store(high)
	}
}

// Open reports whether transmissions are currently accepted.
func (g *TransmitGate) Open() bool {
	return g.open.Load()
}

// AttemptTransmit sends payload if the gate is open and returns
// ErrGateClosed otherwise. It never blocks on the gate.
func (g *TransmitGate) AttemptTransmit(payload []byte) error {
	if !g.open.Load() {
		return ErrGateClosed
	}
	if g.tx == nil {
		return nil
	}
	if err := g.tx.Transmit(payload); err != nil {
		return fmt.Errorf("transmit: %w", err)
	}
	return nil
}

func (g *TransmitGate) reset() {
	g.modulated.Store(false)
	g.open.Store(false)
}
