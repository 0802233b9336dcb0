package chain

import "github.com/golang/glog"

// TriggerLink is one directed wiring edge. A destination has at most one
// selected source, so a link is identified by its destination.
type TriggerLink struct {
	Source      Peripheral
	Destination Peripheral
	Locked      bool
}

// TriggerInput receives propagated triggers from the source it is wired to.
type TriggerInput interface {
	Trigger(src Peripheral, high bool)
}

// Latcher is implemented by destinations that latch configuration at
// connect-time, e.g. enabling window mode on a comparator.
type Latcher interface {
	Latch(src Peripheral)
}

// Leveler is implemented by sources with a persistent output level. A new
// link loads that level into its destination at connect-time.
type Leveler interface {
	High() bool
}

// Router holds the trigger wiring. It is mutated only during single-threaded
// boot configuration; System serializes Propagate against it.
type Router struct {
	primary map[Peripheral]bool
	inputs  map[Peripheral]TriggerInput
	links   map[Peripheral]*TriggerLink
	order   []Peripheral // destinations, in first-connect order
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{
		primary: make(map[Peripheral]bool),
		inputs:  make(map[Peripheral]TriggerInput),
		links:   make(map[Peripheral]*TriggerLink),
	}
}

// AddPrimary registers a free-running source with no upstream of its own.
func (r *Router) AddPrimary(id Peripheral) {
	r.primary[id] = true
}

// Attach registers a destination that can be wired to a source.
func (r *Router) Attach(id Peripheral, in TriggerInput) {
	r.inputs[id] = in
}

// Connect selects src as the trigger of dst. The source must be finalized
// first: either primary or with its own incoming link locked. Re-selecting
// the source of an unlocked link is allowed; a locked link is rejected.
func (r *Router) Connect(src, dst Peripheral) (TriggerLink, error) {
	fail := func(reason string) (TriggerLink, error) {
		return TriggerLink{}, &ConfigurationError{Op: "connect", Source: src, Destination: dst, Reason: reason}
	}

	if src == dst {
		return fail("source and destination are the same peripheral")
	}
	in, ok := r.inputs[dst]
	if !ok {
		return fail("unknown destination")
	}
	if _, known := r.inputs[src]; !known && !r.primary[src] {
		return fail("unknown source")
	}
	if l, exists := r.links[dst]; exists && l.Locked {
		return fail("link is locked")
	}
	if !r.primary[src] {
		up, exists := r.links[src]
		if !exists || !up.Locked {
			return fail("upstream of source is not locked")
		}
	}

	l, exists := r.links[dst]
	if !exists {
		l = &TriggerLink{Destination: dst}
		r.links[dst] = l
		r.order = append(r.order, dst)
	}
	l.Source = src

	if latcher, ok := in.(Latcher); ok {
		latcher.Latch(src)
	}
	if lv, ok := r.inputs[src].(Leveler); ok {
		in.Trigger(src, lv.High())
	}
	glog.V(2).Infof("connect %s -> %s", src, dst)
	return *l, nil
}

// Lock freezes an established link until Reset.
func (r *Router) Lock(link TriggerLink) error {
	fail := func(reason string) error {
		return &ConfigurationError{Op: "lock", Source: link.Source, Destination: link.Destination, Reason: reason}
	}

	l, exists := r.links[link.Destination]
	if !exists || l.Source != link.Source {
		return fail("link is not established")
	}
	if l.Locked {
		return fail("link is locked")
	}
	l.Locked = true
	glog.V(2).Infof("lock %s -> %s", l.Source, l.Destination)
	return nil
}

// Link returns the link selecting the trigger of dst.
func (r *Router) Link(dst Peripheral) (TriggerLink, bool) {
	l, ok := r.links[dst]
	if !ok {
		return TriggerLink{}, false
	}
	return *l, true
}

// Links returns a copy of all links in connect order.
func (r *Router) Links() []TriggerLink {
	out := make([]TriggerLink, 0, len(r.order))
	for _, dst := range r.order {
		out = append(out, *r.links[dst])
	}
	return out
}

// Propagate delivers a trigger from src to every destination wired to it
// and returns how many received it.
func (r *Router) Propagate(src Peripheral, high bool) int {
	n := 0
	for _, dst := range r.order {
		if r.links[dst].Source != src {
			continue
		}
		r.inputs[dst].Trigger(src, high)
		n++
		if glog.V(2) {
			glog.Infof("propagate %s -> %s high=%v", src, dst, high)
		}
	}
	return n
}

// Reset removes every link, locked or not.
func (r *Router) Reset() {
	r.links = make(map[Peripheral]*TriggerLink)
	r.order = nil
}
