//go:build !linux

package hw

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealSampler is not available on non-Linux platforms.
type RealSampler struct{}

// NewRealSampler returns an error on non-Linux platforms.
func NewRealSampler(pin, vrefMV int) (*RealSampler, error) {
	return nil, errUnsupported
}

// Sample is not implemented on non-Linux platforms.
func (s *RealSampler) Sample() (int, error) {
	return 0, errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (s *RealSampler) Close() error {
	return nil
}

// RealLEDs is not available on non-Linux platforms.
type RealLEDs struct{}

// NewRealLEDs returns an error on non-Linux platforms.
func NewRealLEDs(pinAbove, pinBelow int) (*RealLEDs, error) {
	return nil, errUnsupported
}

// Set is not implemented on non-Linux platforms.
func (l *RealLEDs) Set(above, below bool) error {
	return errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (l *RealLEDs) Close() error {
	return nil
}
