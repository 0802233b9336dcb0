package hw

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ScriptedSampler replays a fixed list of input voltages. It backs the
// scripted -input mode and tests.
type ScriptedSampler struct {
	// Samples contains scripted millivolt values to return.
	// Each call to Sample() consumes the next value.
	Samples []int

	// index tracks current position in Samples
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Sample()
	ReadError error
}

// NewScriptedSampler creates a ScriptedSampler with the given samples.
func NewScriptedSampler(samples []int) *ScriptedSampler {
	return &ScriptedSampler{Samples: samples}
}

// Sample returns the next scripted value.
// If samples are exhausted, returns the last value repeatedly.
func (f *ScriptedSampler) Sample() (int, error) {
	if f.ReadError != nil {
		return 0, f.ReadError
	}

	if len(f.Samples) == 0 {
		return 0, errors.New("no samples configured")
	}

	mv := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return mv, nil
}

// Close marks the sampler as closed.
func (f *ScriptedSampler) Close() error {
	f.Closed = true
	return nil
}

// Reset rewinds the sampler to the beginning of samples.
func (f *ScriptedSampler) Reset() {
	f.index = 0
	f.Closed = false
}

// ParseSamples parses a comma-separated list of millivolt values,
// e.g. "1200,3300,3300,800".
func ParseSamples(s string) ([]int, error) {
	var out []int
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		mv, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("parse sample %q: %w", field, err)
		}
		if mv < 0 {
			return nil, fmt.Errorf("parse sample %q: negative voltage", field)
		}
		out = append(out, mv)
	}
	if len(out) == 0 {
		return nil, errors.New("no samples")
	}
	return out, nil
}
