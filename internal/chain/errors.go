package chain

import "fmt"

// Error is a constant error of the chain.
type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	// ErrConfiguration is matched by every *ConfigurationError via errors.Is.
	ErrConfiguration = Error("configuration error")
	// ErrGateClosed is the expected outcome of a transmit attempt while the
	// comparator output is low. Callers drop the payload silently.
	ErrGateClosed         = Error("gate closed")
	ErrInvalidPeriod      = Error("timer period must be non-zero")
	ErrTimerNotConfigured = Error("timer not configured")
	ErrInvalidThreshold   = Error("threshold must not be negative")
)

// ConfigurationError reports a rejected wiring operation. The rejected
// operation has no observable effect.
type ConfigurationError struct {
	Op          string
	Source      Peripheral
	Destination Peripheral
	Reason      string
}

func (e *ConfigurationError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Destination, e.Reason)
	}
	return fmt.Sprintf("%s %s -> %s: %s", e.Op, e.Source, e.Destination, e.Reason)
}

// Is reports whether target is ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}
