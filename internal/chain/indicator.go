package chain

// LEDs is the output stage of the indicator pair.
type LEDs interface {
	Set(above, below bool) error
}

// IndicatorPair holds two mutually exclusive outputs: above is on while the
// comparator output is high, below while it is low. It is updated only from
// edge handlers.
type IndicatorPair struct {
	above bool
	below bool
	out   LEDs
	err   error
}

// OnRisingEdge turns below off, then above on.
func (p *IndicatorPair) OnRisingEdge() {
	p.below = false
	p.above = true
	p.drive()
}

// OnFallingEdge turns above off, then below on.
func (p *IndicatorPair) OnFallingEdge() {
	p.above = false
	p.below = true
	p.drive()
}

func (p *IndicatorPair) drive() {
	if p.out == nil {
		return
	}
	p.err = p.out.Set(p.above, p.below)
}

func (p *IndicatorPair) reset() {
	p.above, p.below = false, false
	p.drive()
}
