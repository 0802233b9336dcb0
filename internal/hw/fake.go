package hw

// LEDState is one write to the indicator pair.
type LEDState struct {
	Above bool
	Below bool
}

// FakeLEDs records LED writes for test assertions.
type FakeLEDs struct {
	// Writes contains every Set call in order.
	Writes []LEDState

	// Above and Below hold the current outputs.
	Above bool
	Below bool

	// SetError, if set, will be returned by Set.
	SetError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeLEDs creates FakeLEDs with both outputs off.
func NewFakeLEDs() *FakeLEDs {
	return &FakeLEDs{}
}

// Set records the write.
func (f *FakeLEDs) Set(above, below bool) error {
	if f.SetError != nil {
		return f.SetError
	}
	f.Above, f.Below = above, below
	f.Writes = append(f.Writes, LEDState{Above: above, Below: below})
	return nil
}

// Close turns both outputs off and marks the LEDs as closed.
func (f *FakeLEDs) Close() error {
	f.Above, f.Below = false, false
	f.Closed = true
	return nil
}
