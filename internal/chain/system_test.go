package chain

import (
	"bytes"
	"errors"
	"log"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	testPeriod    = 4
	testThreshold = 2500
)

type ledWrite struct{ above, below bool }

type fakeLEDs struct {
	writes []ledWrite
	err    error
}

func (f *fakeLEDs) Set(above, below bool) error {
	f.writes = append(f.writes, ledWrite{above, below})
	return f.err
}

type fakeTx struct {
	sent [][]byte
	err  error
}

func (f *fakeTx) Transmit(p []byte) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, p)
	return nil
}

type harness struct {
	sys    *System
	leds   *fakeLEDs
	tx     *fakeTx
	events []Event
}

func newHarness(t *testing.T, window WindowPolicy) *harness {
	t.Helper()
	h := &harness{leds: &fakeLEDs{}, tx: &fakeTx{}}
	sys, err := NewSystem(Config{PeriodTicks: testPeriod, ThresholdMV: testThreshold, Window: window}, h.leds, h.tx)
	require.NoError(t, err)
	sys.SetObserver(func(ev Event) { h.events = append(h.events, ev) })
	require.NoError(t, sys.Wire())
	require.NoError(t, sys.StartTimer())
	h.sys = sys
	return h
}

// step runs one timer period, presents input and services interrupts.
func (h *harness) step(inputMV int) {
	h.sys.Advance(testPeriod)
	h.sys.Evaluate(inputMV)
	h.sys.ServicePending()
}

func (h *harness) eventTypes() []EventType {
	var out []EventType
	for _, ev := range h.events {
		out = append(out, ev.Type)
	}
	return out
}

func TestNoEvaluationWhileDisarmed(t *testing.T) {
	h := newHarness(t, WindowContinuous)

	// Timer has not expired yet, so the window is closed.
	h.sys.Advance(testPeriod - 1)
	require.False(t, h.sys.Evaluate(4000))
	st := h.sys.State()
	require.Equal(t, 0, st.Evaluations)
	require.Equal(t, LevelUnknown, st.Level)
	require.False(t, st.SampleEnabled)

	h.sys.Advance(1)
	require.True(t, h.sys.Evaluate(4000))
	require.Equal(t, 1, h.sys.State().Evaluations)

	h.sys.DisarmComparator()
	require.False(t, h.sys.Evaluate(100))
	st = h.sys.State()
	require.Equal(t, 1, st.Evaluations)
	require.Equal(t, LevelAbove, st.Level)
}

func TestUnwiredComparatorIgnoresTimer(t *testing.T) {
	sys, err := NewSystem(Config{PeriodTicks: testPeriod, ThresholdMV: testThreshold}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, sys.StartTimer())

	require.Equal(t, 1, sys.Advance(testPeriod))
	require.False(t, sys.Evaluate(4000), "comparator not in window mode must stay inert")
	require.True(t, sys.ServiceTimer())
}

func TestScenarioBelowAtFirstEvaluation(t *testing.T) {
	h := newHarness(t, WindowContinuous)

	h.step(1200)

	st := h.sys.State()
	require.Equal(t, LevelBelow, st.Level)
	require.True(t, st.Below)
	require.False(t, st.Above)
	require.False(t, st.GateOpen)
	require.True(t, errors.Is(h.sys.AttemptTransmit([]byte("x")), ErrGateClosed))
	require.Empty(t, h.tx.sent)
	require.Equal(t, []EventType{EventTimeout, EventFallingEdge}, h.eventTypes())
}

func TestScenarioRisingEdge(t *testing.T) {
	h := newHarness(t, WindowContinuous)
	h.step(1200)
	h.events = nil

	h.step(3300)

	require.Equal(t, []EventType{EventTimeout, EventRisingEdge}, h.eventTypes())
	st := h.sys.State()
	require.Equal(t, LevelAbove, st.Level)
	require.True(t, st.Above)
	require.False(t, st.Below)
	require.True(t, st.GateOpen)
	require.Equal(t, 1, st.Counts.Rising)
	require.Equal(t, ledWrite{above: true}, h.leds.writes[len(h.leds.writes)-1])

	require.NoError(t, h.sys.AttemptTransmit([]byte("status")))
	require.Equal(t, [][]byte{[]byte("status")}, h.tx.sent)
}

func TestScenarioTwoExpiriesBeforeHandler(t *testing.T) {
	h := newHarness(t, WindowContinuous)

	require.Equal(t, 1, h.sys.Advance(testPeriod))
	require.Equal(t, 1, h.sys.Advance(testPeriod))
	require.True(t, h.sys.State().TimeoutPending)

	require.Equal(t, 1, h.sys.ServicePending())
	require.Equal(t, 0, h.sys.ServicePending(), "cleared flag must not re-enter")

	c := h.sys.Counts()
	require.Equal(t, 1, c.Timeouts)
	require.Equal(t, 1, c.MissedTimeouts)
	require.Equal(t, []EventType{EventMissed, EventTimeout}, h.eventTypes())
	require.Equal(t, EventTimeout, h.events[0].Dropped)
}

func TestAdvanceManyPeriodsAtOnce(t *testing.T) {
	h := newHarness(t, WindowContinuous)

	require.Equal(t, 3, h.sys.Advance(3*testPeriod+1))
	h.sys.ServicePending()
	c := h.sys.Counts()
	require.Equal(t, 1, c.Timeouts)
	require.Equal(t, 2, c.MissedTimeouts)

	// Remainder carries into the next period.
	require.Equal(t, 1, h.sys.Advance(testPeriod-1))
}

func TestScenarioConnectBeforeUpstreamLocked(t *testing.T) {
	sys, err := NewSystem(Config{PeriodTicks: testPeriod, ThresholdMV: testThreshold}, nil, nil)
	require.NoError(t, err)

	_, err = sys.Connect(Comparator0, Transmitter0)
	require.True(t, errors.Is(err, ErrConfiguration))
	require.Empty(t, sys.State().Links)
}

func TestWireTwiceFails(t *testing.T) {
	h := newHarness(t, WindowContinuous)
	before := h.sys.State().Links

	err := h.sys.Wire()
	require.True(t, errors.Is(err, ErrConfiguration))
	require.Equal(t, before, h.sys.State().Links)
}

func TestGateFollowsLevelNotEdge(t *testing.T) {
	h := newHarness(t, WindowContinuous)
	h.step(3000)

	for i := 0; i < 5; i++ {
		require.NoError(t, h.sys.AttemptTransmit([]byte("a")))
	}
	// Same level again: no edge, gate still open.
	h.step(3100)
	require.NoError(t, h.sys.AttemptTransmit([]byte("a")))

	h.step(100)
	for i := 0; i < 3; i++ {
		require.ErrorIs(t, h.sys.AttemptTransmit([]byte("a")), ErrGateClosed)
	}

	c := h.sys.Counts()
	require.Equal(t, 6, c.Transmitted)
	require.Equal(t, 3, c.Dropped)
	require.Len(t, h.tx.sent, 6)
}

func TestGateOpensBeforeHandlerRuns(t *testing.T) {
	h := newHarness(t, WindowContinuous)
	h.sys.Advance(testPeriod)
	h.sys.Evaluate(3000)

	// Edge not serviced yet: indicator unchanged, gate already follows level.
	st := h.sys.State()
	require.True(t, st.RisingPending)
	require.False(t, st.Above)
	require.True(t, st.GateOpen)
}

func TestTransmitErrorIsWrapped(t *testing.T) {
	h := newHarness(t, WindowContinuous)
	h.step(3000)
	h.tx.err = errors.New("uart busy")

	err := h.sys.AttemptTransmit([]byte("a"))
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrGateClosed))
	require.Contains(t, err.Error(), "uart busy")
	require.Equal(t, 0, h.sys.Counts().Transmitted)
}

func TestEdgeCoalescedWhenNotServiced(t *testing.T) {
	h := newHarness(t, WindowContinuous)
	h.sys.Advance(testPeriod)

	h.sys.Evaluate(3000) // rising
	h.sys.Evaluate(100)  // falling
	h.sys.Evaluate(3000) // rising again, flag still pending

	c := h.sys.Counts()
	require.Equal(t, 1, c.MissedRising)

	require.Equal(t, 2, h.sys.ServiceComparator())
	st := h.sys.State()
	require.True(t, st.Above, "last applied edge must match the current level")
	require.False(t, st.Below)
	require.False(t, st.RisingPending)
	require.False(t, st.FallingPending)
	require.Equal(t, 1, st.Counts.Rising)
	require.Equal(t, 1, st.Counts.Falling)
}

func TestBothEdgesPendingEndingBelow(t *testing.T) {
	h := newHarness(t, WindowContinuous)
	h.sys.Advance(testPeriod)
	h.sys.Evaluate(3000)
	h.sys.Evaluate(100)

	h.sys.ServiceComparator()
	st := h.sys.State()
	require.True(t, st.Below)
	require.False(t, st.Above)
}

func TestSingleShotWindow(t *testing.T) {
	h := newHarness(t, WindowSingleShot)

	h.sys.Advance(testPeriod)
	require.True(t, h.sys.Evaluate(3000))
	require.False(t, h.sys.Evaluate(100), "window closes after one evaluation")
	require.Equal(t, LevelAbove, h.sys.State().Level)

	h.sys.Advance(testPeriod)
	require.True(t, h.sys.Evaluate(100))
	require.Equal(t, LevelBelow, h.sys.State().Level)
}

func TestIndicatorMutualExclusion(t *testing.T) {
	h := newHarness(t, WindowContinuous)
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 500; i++ {
		switch rng.Intn(4) {
		case 0:
			h.sys.Advance(uint64(rng.Intn(2 * testPeriod)))
		case 1:
			h.sys.Evaluate(rng.Intn(5000))
		case 2:
			h.sys.ServicePending()
		case 3:
			h.sys.AttemptTransmit([]byte("a"))
		}
		st := h.sys.State()
		require.False(t, st.Above && st.Below, "both indicators on at step %d", i)
		if st.Evaluations > 0 {
			require.Equal(t, st.Level == LevelAbove, st.GateOpen, "gate must mirror level at step %d", i)
		}
	}
	for i, w := range h.leds.writes {
		require.False(t, w.above && w.below, "both LEDs written on at write %d", i)
	}
}

func TestIndicatorErrorDoesNotStopChain(t *testing.T) {
	h := newHarness(t, WindowContinuous)
	h.leds.err = errors.New("line busy")

	h.step(3000)
	st := h.sys.State()
	require.True(t, st.Above)
	require.Equal(t, 1, st.Counts.Rising)
}

func TestReset(t *testing.T) {
	h := newHarness(t, WindowContinuous)
	h.step(3000)
	require.NoError(t, h.sys.AttemptTransmit([]byte("a")))

	h.sys.Reset()

	st := h.sys.State()
	require.Empty(t, st.Links)
	require.Equal(t, LevelUnknown, st.Level)
	require.False(t, st.Above || st.Below)
	require.False(t, st.GateOpen)
	require.False(t, st.TimerArmed)
	require.Equal(t, EventCounts{}, st.Counts)
	require.Equal(t, uint32(testPeriod), st.PeriodTicks)
	require.Equal(t, ledWrite{}, h.leds.writes[len(h.leds.writes)-1])

	// After reset the chain can be wired again.
	require.NoError(t, h.sys.Wire())
}

func TestTimerConfiguration(t *testing.T) {
	sys, err := NewSystem(Config{ThresholdMV: testThreshold}, nil, nil)
	require.NoError(t, err)

	require.ErrorIs(t, sys.StartTimer(), ErrTimerNotConfigured)
	require.ErrorIs(t, sys.ConfigureTimer(0), ErrInvalidPeriod)
	require.NoError(t, sys.ConfigureTimer(10))
	require.NoError(t, sys.StartTimer())
	require.Equal(t, 1, sys.Advance(10))

	sys.StopTimer()
	require.Equal(t, 0, sys.Advance(100))
}

func TestNewSystemRejectsNegativeThreshold(t *testing.T) {
	_, err := NewSystem(Config{ThresholdMV: -1}, nil, nil)
	require.ErrorIs(t, err, ErrInvalidThreshold)
}

func TestPeriodTicks(t *testing.T) {
	n, err := PeriodTicks(4*time.Second, time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, uint32(4000), n)

	_, err = PeriodTicks(time.Microsecond, time.Millisecond)
	require.ErrorIs(t, err, ErrInvalidPeriod)

	_, err = PeriodTicks(time.Second, 0)
	require.Error(t, err)
}

func TestThresholdFromDAC(t *testing.T) {
	require.Equal(t, 2500, ThresholdFromDAC(5000, 127))
	require.Equal(t, 5000, ThresholdFromDAC(5000, 255))
	require.Equal(t, 19, ThresholdFromDAC(5000, 0))
}

func TestParseWindowPolicy(t *testing.T) {
	p, ok := ParseWindowPolicy("single-shot")
	require.True(t, ok)
	require.Equal(t, WindowSingleShot, p)
	require.Equal(t, "single-shot", p.String())

	_, ok = ParseWindowPolicy("sometimes")
	require.False(t, ok)
}

// connectUpstream wires and locks only Timer0 -> Comparator0 and starts the timer.
func connectUpstream(t *testing.T, window WindowPolicy) *harness {
	t.Helper()
	h := &harness{leds: &fakeLEDs{}, tx: &fakeTx{}}
	sys, err := NewSystem(Config{PeriodTicks: testPeriod, ThresholdMV: testThreshold, Window: window}, h.leds, h.tx)
	require.NoError(t, err)
	link, err := sys.Connect(Timer0, Comparator0)
	require.NoError(t, err)
	require.NoError(t, sys.Lock(link))
	require.NoError(t, sys.StartTimer())
	h.sys = sys
	return h
}

func connectGate(t *testing.T, sys *System) {
	t.Helper()
	link, err := sys.Connect(Comparator0, Transmitter0)
	require.NoError(t, err)
	require.NoError(t, sys.Lock(link))
}

func TestGateLoadsLevelWhenConnectedAfterDisarm(t *testing.T) {
	h := connectUpstream(t, WindowContinuous)
	h.step(3300)
	h.sys.DisarmComparator()

	connectGate(t, h.sys)

	st := h.sys.State()
	require.Equal(t, LevelAbove, st.Level)
	require.True(t, st.Above)
	require.Equal(t, st.Level == LevelAbove, st.GateOpen)
	require.NoError(t, h.sys.AttemptTransmit([]byte("a")))
	require.Len(t, h.tx.sent, 1)
}

func TestGateLoadsLevelWhenConnectedAfterSingleShot(t *testing.T) {
	h := connectUpstream(t, WindowSingleShot)
	h.sys.Advance(testPeriod)
	require.True(t, h.sys.Evaluate(3300))
	require.False(t, h.sys.Evaluate(1000), "single-shot window closed after one evaluation")
	h.sys.ServicePending()

	connectGate(t, h.sys)
	require.True(t, h.sys.GateOpen())
}

func TestGateStaysClosedWhenConnectedBeforeEvaluation(t *testing.T) {
	h := connectUpstream(t, WindowContinuous)
	connectGate(t, h.sys)

	require.False(t, h.sys.GateOpen())
	require.ErrorIs(t, h.sys.AttemptTransmit([]byte("a")), ErrGateClosed)
}

func TestGateLoadsBelowLevel(t *testing.T) {
	h := connectUpstream(t, WindowContinuous)
	h.step(1000)
	connectGate(t, h.sys)

	require.False(t, h.sys.GateOpen())
}

func TestResetLogsIndicatorError(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	h := newHarness(t, WindowContinuous)
	h.step(3000)
	h.leds.err = errors.New("line busy")

	h.sys.Reset()

	require.Contains(t, buf.String(), "reset: indicator output error: line busy")
	st := h.sys.State()
	require.False(t, st.Above || st.Below)
}
