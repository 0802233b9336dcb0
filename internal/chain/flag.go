package chain

import "sync/atomic"

// StickyFlag is a single status bit. It stays set until cleared, regardless
// of further occurrences, so two occurrences before a clear are observed once.
type StickyFlag struct {
	v atomic.Bool
}

// Set raises the flag. It returns false if the flag was already pending, in
// which case the new occurrence is coalesced into the pending one.
func (f *StickyFlag) Set() bool {
	return f.v.CompareAndSwap(false, true)
}

// IsSet reports whether the flag is pending.
func (f *StickyFlag) IsSet() bool {
	return f.v.Load()
}

// Clear is write-one-to-clear. Clearing a clear flag is a no-op.
func (f *StickyFlag) Clear() {
	f.v.Store(false)
}
