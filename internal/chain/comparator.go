package chain

// WindowPolicy decides whether the sampling window stays open after an
// evaluation.
type WindowPolicy int

const (
	// WindowContinuous keeps sampling armed until Disarm.
	WindowContinuous WindowPolicy = iota
	// WindowSingleShot closes the window after one evaluation.
	WindowSingleShot
)

func (p WindowPolicy) String() string {
	switch p {
	case WindowContinuous:
		return "continuous"
	case WindowSingleShot:
		return "single-shot"
	}
	return "unknown"
}

// ParseWindowPolicy parses the String form of a policy.
func ParseWindowPolicy(s string) (WindowPolicy, bool) {
	switch s {
	case "continuous":
		return WindowContinuous, true
	case "single-shot":
		return WindowSingleShot, true
	}
	return WindowContinuous, false
}

// Comparator samples its input against a threshold, but only while armed by
// its trigger source (window mode). Rising and falling flags are independent
// and each must be cleared by its own handler.
type Comparator struct {
	thresholdMV   int
	policy        WindowPolicy
	windowMode    bool
	sampleEnabled bool
	level         Level
	inputMV       int
	evaluations   int
	rising        StickyFlag
	falling       StickyFlag
}

// NewComparator creates a comparator with an indeterminate output.
func NewComparator(thresholdMV int, policy WindowPolicy) *Comparator {
	return &Comparator{thresholdMV: thresholdMV, policy: policy}
}

// Latch enables window mode when the comparator is wired to a trigger source.
func (c *Comparator) Latch(src Peripheral) {
	c.windowMode = true
}

// Trigger arms the sampling window. It is ignored until window mode is latched.
func (c *Comparator) Trigger(src Peripheral, high bool) {
	if c.windowMode {
		c.sampleEnabled = true
	}
}

// High reports whether the last evaluation was above the threshold.
func (c *Comparator) High() bool {
	return c.level == LevelAbove
}

// Disarm closes the sampling window.
func (c *Comparator) Disarm() {
	c.sampleEnabled = false
}

// evaluate compares input against the threshold. It returns whether an
// evaluation happened and the edge it produced, if any. The first
// evaluation from the indeterminate state produces the edge of the new level.
func (c *Comparator) evaluate(inputMV int) (evaluated bool, edge EventType) {
	if !c.sampleEnabled {
		return false, ""
	}
	c.evaluations++
	c.inputMV = inputMV

	next := LevelBelow
	if inputMV > c.thresholdMV {
		next = LevelAbove
	}
	prev := c.level
	c.level = next

	if c.policy == WindowSingleShot {
		c.sampleEnabled = false
	}

	if prev == next {
		return true, ""
	}
	if next == LevelAbove {
		return true, EventRisingEdge
	}
	return true, EventFallingEdge
}

func (c *Comparator) reset() {
	*c = Comparator{thresholdMV: c.thresholdMV, policy: c.policy}
}

// ThresholdFromDAC returns the reference produced by an 8-bit DAC with the
// given supply and select value: vin / 256 * (vosel + 1).
func ThresholdFromDAC(vinMV int, vosel uint8) int {
	return vinMV * (int(vosel) + 1) / 256
}
