package chain

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"
)

// Config is the boot-time configuration of the chain.
type Config struct {
	PeriodTicks uint32
	ThresholdMV int
	Window      WindowPolicy
}

// Observer receives events after the producing handler has returned.
// It must not block.
type Observer func(Event)

// State is a consistent copy of the runtime state.
type State struct {
	Tick           uint64
	PeriodTicks    uint32
	TimerArmed     bool
	ThresholdMV    int
	Window         WindowPolicy
	SampleEnabled  bool
	Level          Level
	InputMV        int
	Evaluations    int
	Above          bool
	Below          bool
	GateOpen       bool
	TimeoutPending bool
	RisingPending  bool
	FallingPending bool
	Counts         EventCounts
	Links          []TriggerLink
}

// System is the process-wide chain state. mu plays the role of disabling
// interrupts: raise operations and handlers run with it held, so handlers
// never preempt each other and multi-field reads are consistent.
type System struct {
	mu       sync.Mutex
	tick     uint64
	router   *Router
	timer    TimerChannel
	cmp      *Comparator
	ind      IndicatorPair
	gate     *TransmitGate
	counts   EventCounts
	observer Observer

	transmitted atomic.Int64
	dropped     atomic.Int64
}

// NewSystem initializes the chain peripherals. Nothing is wired and the
// timer is stopped; see Wire and StartTimer.
func NewSystem(cfg Config, leds LEDs, tx Transmitter) (*System, error) {
	if cfg.ThresholdMV < 0 {
		return nil, ErrInvalidThreshold
	}
	s := &System{
		router: NewRouter(),
		cmp:    NewComparator(cfg.ThresholdMV, cfg.Window),
		ind:    IndicatorPair{out: leds},
		gate:   &TransmitGate{tx: tx},
	}
	if cfg.PeriodTicks != 0 {
		if err := s.timer.Configure(cfg.PeriodTicks); err != nil {
			return nil, err
		}
	}
	s.router.AddPrimary(Timer0)
	s.router.Attach(Comparator0, s.cmp)
	s.router.Attach(Transmitter0, s.gate)
	return s, nil
}

// SetObserver installs the event observer. Call before the chain runs.
func (s *System) SetObserver(o Observer) {
	s.mu.Lock()
	s.observer = o
	s.mu.Unlock()
}

// Connect establishes a trigger link. See Router.Connect.
func (s *System) Connect(src, dst Peripheral) (TriggerLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.router.Connect(src, dst)
}

// Lock freezes a trigger link. See Router.Lock.
func (s *System) Lock(link TriggerLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.router.Lock(link)
}

// Wire connects and locks the chain in dependency order:
// timer -> comparator first, then comparator -> transmitter.
func (s *System) Wire() error {
	for _, hop := range []struct{ src, dst Peripheral }{
		{Timer0, Comparator0},
		{Comparator0, Transmitter0},
	} {
		link, err := s.Connect(hop.src, hop.dst)
		if err != nil {
			return err
		}
		if err := s.Lock(link); err != nil {
			return err
		}
	}
	return nil
}

// ConfigureTimer sets the timer period in ticks.
func (s *System) ConfigureTimer(period uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer.Configure(period)
}

// StartTimer arms the timer.
func (s *System) StartTimer() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer.Start()
}

// StopTimer disarms the timer.
func (s *System) StopTimer() {
	s.mu.Lock()
	s.timer.Stop()
	s.mu.Unlock()
}

// DisarmComparator closes the comparator sampling window.
func (s *System) DisarmComparator() {
	s.mu.Lock()
	s.cmp.Disarm()
	s.mu.Unlock()
}

// Advance counts clock ticks on the timer. Every expiry raises the sticky
// timeout flag and propagates the timeout over the trigger links; an expiry
// that finds the flag still pending is dropped and counted as missed.
// It returns the number of expiries.
func (s *System) Advance(ticks uint64) int {
	s.mu.Lock()
	s.tick += ticks
	n := s.timer.advance(ticks)
	var events []Event
	for i := 0; i < n; i++ {
		if !s.timer.timeout.Set() {
			s.counts.MissedTimeouts++
			events = append(events, s.missed(Timer0, EventTimeout))
		}
		s.router.Propagate(Timer0, true)
	}
	s.mu.Unlock()

	s.deliver(events)
	return n
}

// Evaluate presents an input sample to the comparator. It has no effect
// unless the sampling window is armed. On evaluation the output level is
// propagated to the comparator's destinations and an output transition
// raises the matching edge flag. It reports whether an evaluation happened.
func (s *System) Evaluate(inputMV int) bool {
	s.mu.Lock()
	evaluated, edge := s.cmp.evaluate(inputMV)
	if !evaluated {
		s.mu.Unlock()
		return false
	}
	s.router.Propagate(Comparator0, s.cmp.High())

	var events []Event
	switch edge {
	case EventRisingEdge:
		if !s.cmp.rising.Set() {
			s.counts.MissedRising++
			events = append(events, s.missed(Comparator0, EventRisingEdge))
		}
	case EventFallingEdge:
		if !s.cmp.falling.Set() {
			s.counts.MissedFalling++
			events = append(events, s.missed(Comparator0, EventFallingEdge))
		}
	}
	if edge != "" && glog.V(2) {
		glog.Infof("raise %s input=%dmV threshold=%dmV", edge, inputMV, s.cmp.thresholdMV)
	}
	s.mu.Unlock()

	s.deliver(events)
	return true
}

// ServiceTimer is the timer interrupt handler. It reports whether a timeout
// was pending. The flag is cleared as the last action.
func (s *System) ServiceTimer() bool {
	s.mu.Lock()
	if !s.timer.timeout.IsSet() {
		s.mu.Unlock()
		return false
	}
	s.counts.Timeouts++
	ev := Event{Tick: s.tick, Type: EventTimeout, Source: Timer0, Level: s.cmp.level, InputMV: s.cmp.inputMV}
	s.timer.timeout.Clear()
	s.mu.Unlock()

	glog.V(2).Infof("service %s tick=%d", EventTimeout, ev.Tick)
	s.deliver([]Event{ev})
	return true
}

// ServiceComparator is the comparator interrupt handler. Each pending edge
// updates the indicator pair and then has its own flag cleared. When both
// edges are pending, the one matching the current output level is applied
// last so the indicator ends up matching the input.
func (s *System) ServiceComparator() int {
	s.mu.Lock()
	order := []EventType{EventFallingEdge, EventRisingEdge}
	if s.cmp.level == LevelBelow {
		order = []EventType{EventRisingEdge, EventFallingEdge}
	}

	var events []Event
	for _, edge := range order {
		flag := &s.cmp.rising
		if edge == EventFallingEdge {
			flag = &s.cmp.falling
		}
		if !flag.IsSet() {
			continue
		}
		if edge == EventRisingEdge {
			s.ind.OnRisingEdge()
			s.counts.Rising++
		} else {
			s.ind.OnFallingEdge()
			s.counts.Falling++
		}
		if s.ind.err != nil {
			log.Printf("indicator output error: %v", s.ind.err)
			s.ind.err = nil
		}
		events = append(events, Event{Tick: s.tick, Type: edge, Source: Comparator0, Level: s.cmp.level, InputMV: s.cmp.inputMV})
		flag.Clear()
	}
	s.mu.Unlock()

	for _, ev := range events {
		glog.V(2).Infof("service %s tick=%d", ev.Type, ev.Tick)
	}
	s.deliver(events)
	return len(events)
}

// ServicePending runs every handler with a pending flag and returns the
// number of events handled.
func (s *System) ServicePending() int {
	n := 0
	if s.ServiceTimer() {
		n++
	}
	return n + s.ServiceComparator()
}

// AttemptTransmit is the application-level transmit. It returns
// ErrGateClosed while the comparator output is low.
func (s *System) AttemptTransmit(payload []byte) error {
	err := s.gate.AttemptTransmit(payload)
	switch {
	case err == nil:
		s.transmitted.Add(1)
	case errors.Is(err, ErrGateClosed):
		s.dropped.Add(1)
	}
	return err
}

// GateOpen reports the live gate level.
func (s *System) GateOpen() bool {
	return s.gate.Open()
}

// State returns a consistent copy of the runtime state.
func (s *System) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := s.counts
	counts.Transmitted = int(s.transmitted.Load())
	counts.Dropped = int(s.dropped.Load())
	return State{
		Tick:           s.tick,
		PeriodTicks:    s.timer.Period(),
		TimerArmed:     s.timer.Armed(),
		ThresholdMV:    s.cmp.thresholdMV,
		Window:         s.cmp.policy,
		SampleEnabled:  s.cmp.sampleEnabled,
		Level:          s.cmp.level,
		InputMV:        s.cmp.inputMV,
		Evaluations:    s.cmp.evaluations,
		Above:          s.ind.above,
		Below:          s.ind.below,
		GateOpen:       s.gate.Open(),
		TimeoutPending: s.timer.timeout.IsSet(),
		RisingPending:  s.cmp.rising.IsSet(),
		FallingPending: s.cmp.falling.IsSet(),
		Counts:         counts,
		Links:          s.router.Links(),
	}
}

// Counts returns the event counts.
func (s *System) Counts() EventCounts {
	return s.State().Counts
}

// Reset models a full system reset: links, locks, flags, levels and counts
// are cleared. Configured period and threshold are kept.
func (s *System) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	period := s.timer.Period()
	s.timer.reset()
	if period != 0 {
		if err := s.timer.Configure(period); err != nil {
			log.Printf("reset: timer configure error: %v", err)
		}
	}
	s.router.Reset()
	s.cmp.reset()
	s.ind.reset()
	if s.ind.err != nil {
		log.Printf("reset: indicator output error: %v", s.ind.err)
		s.ind.err = nil
	}
	s.gate.reset()
	s.counts = EventCounts{}
	s.transmitted.Store(0)
	s.dropped.Store(0)
	s.tick = 0
}

func (s *System) missed(src Peripheral, dropped EventType) Event {
	log.Printf("missed event: %s from %s still pending at tick=%d", dropped, src, s.tick)
	return Event{Tick: s.tick, Type: EventMissed, Source: src, Level: s.cmp.level, InputMV: s.cmp.inputMV, Dropped: dropped}
}

func (s *System) deliver(events []Event) {
	if len(events) == 0 {
		return
	}
	s.mu.Lock()
	o := s.observer
	s.mu.Unlock()
	if o == nil {
		return
	}
	for _, ev := range events {
		o(ev)
	}
}

func (s State) String() string {
	return fmt.Sprintf("tick=%d level=%s above=%v below=%v gate=%v", s.Tick, s.Level, s.Above, s.Below, s.GateOpen)
}
