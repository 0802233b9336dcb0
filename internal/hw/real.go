//go:build linux

package hw

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

const chipName = "gpiochip0"

// RealSampler reads the comparator input from a GPIO line. The line is a
// rail-to-rail input: inactive reads 0 mV, active reads vref.
type RealSampler struct {
	chip   *gpiocdev.Chip
	line   *gpiocdev.Line
	vrefMV int
}

// NewRealSampler requests pin as an input with pull-down.
func NewRealSampler(pin, vrefMV int) (*RealSampler, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	line, err := chip.RequestLine(pin, gpiocdev.AsInput, gpiocdev.WithPullDown)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request input pin %d: %w", pin, err)
	}

	return &RealSampler{chip: chip, line: line, vrefMV: vrefMV}, nil
}

// Sample returns the input voltage in millivolts.
func (s *RealSampler) Sample() (int, error) {
	v, err := s.line.Value()
	if err != nil {
		return 0, fmt.Errorf("read input pin: %w", err)
	}
	if v == 0 {
		return 0, nil
	}
	return s.vrefMV, nil
}

// Close releases the input line.
func (s *RealSampler) Close() error {
	var errs []error
	if s.line != nil {
		if err := s.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close input pin: %w", err))
		}
	}
	if s.chip != nil {
		if err := s.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealLEDs drives two active-low LED lines.
type RealLEDs struct {
	chip  *gpiocdev.Chip
	above *gpiocdev.Line
	below *gpiocdev.Line
}

// NewRealLEDs requests both pins as outputs, initially off.
func NewRealLEDs(pinAbove, pinBelow int) (*RealLEDs, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	// Active-low: logical 1 sinks current and lights the LED.
	above, err := chip.RequestLine(pinAbove, gpiocdev.AsActiveLow, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request above pin %d: %w", pinAbove, err)
	}

	below, err := chip.RequestLine(pinBelow, gpiocdev.AsActiveLow, gpiocdev.AsOutput(0))
	if err != nil {
		above.Close()
		chip.Close()
		return nil, fmt.Errorf("request below pin %d: %w", pinBelow, err)
	}

	return &RealLEDs{chip: chip, above: above, below: below}, nil
}

// Set writes the off output first so both are never lit together.
func (l *RealLEDs) Set(above, below bool) error {
	first, second := l.above, l.below
	firstOn, secondOn := above, below
	if above {
		first, second = l.below, l.above
		firstOn, secondOn = below, above
	}
	if err := first.SetValue(boolToValue(firstOn)); err != nil {
		return fmt.Errorf("set led: %w", err)
	}
	if err := second.SetValue(boolToValue(secondOn)); err != nil {
		return fmt.Errorf("set led: %w", err)
	}
	return nil
}

// Close turns both LEDs off, then reconfigures the lines as inputs with
// pull-down (matching Pi boot defaults) before releasing them.
func (l *RealLEDs) Close() error {
	var errs []error
	for _, line := range []*gpiocdev.Line{l.above, l.below} {
		if line == nil {
			continue
		}
		if err := line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("turn off led: %w", err))
		}
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure led pin: %w", err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close led pin: %w", err))
		}
	}
	if l.chip != nil {
		if err := l.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func boolToValue(on bool) int {
	if on {
		return 1
	}
	return 0
}
