package chain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingInput struct {
	latched  []Peripheral
	triggers []bool
}

func (r *recordingInput) Latch(src Peripheral) { r.latched = append(r.latched, src) }

func (r *recordingInput) Trigger(src Peripheral, high bool) { r.triggers = append(r.triggers, high) }

func newTestRouter() (*Router, *recordingInput, *recordingInput) {
	r := NewRouter()
	cmp := &recordingInput{}
	tx := &recordingInput{}
	r.AddPrimary(Timer0)
	r.Attach(Comparator0, cmp)
	r.Attach(Transmitter0, tx)
	return r, cmp, tx
}

func requireConfigError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrConfiguration), "expected ConfigurationError, got %v", err)
	var ce *ConfigurationError
	require.True(t, errors.As(err, &ce))
}

func TestRouterConnectLatchesDestination(t *testing.T) {
	r, cmp, _ := newTestRouter()

	link, err := r.Connect(Timer0, Comparator0)
	require.NoError(t, err)
	require.Equal(t, TriggerLink{Source: Timer0, Destination: Comparator0}, link)
	require.Equal(t, []Peripheral{Timer0}, cmp.latched)
}

func TestRouterDownstreamBeforeUpstreamLocked(t *testing.T) {
	r, _, tx := newTestRouter()

	// Nothing upstream of the comparator yet.
	_, err := r.Connect(Comparator0, Transmitter0)
	requireConfigError(t, err)
	_, ok := r.Link(Transmitter0)
	require.False(t, ok, "rejected connect must not record a link")
	require.Empty(t, tx.latched)

	// Upstream connected but not locked.
	_, err = r.Connect(Timer0, Comparator0)
	require.NoError(t, err)
	_, err = r.Connect(Comparator0, Transmitter0)
	requireConfigError(t, err)
	_, ok = r.Link(Transmitter0)
	require.False(t, ok)
}

func TestRouterDependencyOrder(t *testing.T) {
	r, _, tx := newTestRouter()

	link, err := r.Connect(Timer0, Comparator0)
	require.NoError(t, err)
	require.NoError(t, r.Lock(link))

	link, err = r.Connect(Comparator0, Transmitter0)
	require.NoError(t, err)
	require.NoError(t, r.Lock(link))
	require.Equal(t, []Peripheral{Comparator0}, tx.latched)

	require.Equal(t, []TriggerLink{
		{Source: Timer0, Destination: Comparator0, Locked: true},
		{Source: Comparator0, Destination: Transmitter0, Locked: true},
	}, r.Links())
}

func TestRouterLockedLinkIsImmutable(t *testing.T) {
	r, cmp, _ := newTestRouter()

	link, err := r.Connect(Timer0, Comparator0)
	require.NoError(t, err)
	require.NoError(t, r.Lock(link))

	_, err = r.Connect(Timer0, Comparator0)
	requireConfigError(t, err)
	_, err = r.Connect(Transmitter0, Comparator0)
	requireConfigError(t, err)
	requireConfigError(t, r.Lock(link))

	got, ok := r.Link(Comparator0)
	require.True(t, ok)
	require.Equal(t, TriggerLink{Source: Timer0, Destination: Comparator0, Locked: true}, got)
	require.Len(t, cmp.latched, 1, "rejected connect must not latch again")
}

func TestRouterReselectUnlockedLink(t *testing.T) {
	r, cmp, _ := newTestRouter()
	r.AddPrimary("TIMER0_CH1")

	_, err := r.Connect(Timer0, Comparator0)
	require.NoError(t, err)
	link, err := r.Connect("TIMER0_CH1", Comparator0)
	require.NoError(t, err)
	require.Equal(t, Peripheral("TIMER0_CH1"), link.Source)
	require.Len(t, r.Links(), 1)
	require.Len(t, cmp.latched, 2)

	// The old link value no longer matches the table.
	requireConfigError(t, r.Lock(TriggerLink{Source: Timer0, Destination: Comparator0}))
	require.NoError(t, r.Lock(link))
}

func TestRouterRejectsBadEndpoints(t *testing.T) {
	r, _, _ := newTestRouter()

	_, err := r.Connect(Comparator0, Comparator0)
	requireConfigError(t, err)
	_, err = r.Connect(Timer0, "ADC0")
	requireConfigError(t, err)
	_, err = r.Connect("ADC0", Comparator0)
	requireConfigError(t, err)
	requireConfigError(t, r.Lock(TriggerLink{Source: Timer0, Destination: Comparator0}))
	require.Empty(t, r.Links())
}

func TestRouterPropagateFollowsLinks(t *testing.T) {
	r, cmp, tx := newTestRouter()

	link, _ := r.Connect(Timer0, Comparator0)
	require.NoError(t, r.Lock(link))
	link, _ = r.Connect(Comparator0, Transmitter0)
	require.NoError(t, r.Lock(link))

	require.Equal(t, 1, r.Propagate(Timer0, true))
	require.Equal(t, []bool{true}, cmp.triggers)
	require.Empty(t, tx.triggers)

	require.Equal(t, 1, r.Propagate(Comparator0, false))
	require.Equal(t, []bool{false}, tx.triggers)

	require.Equal(t, 0, r.Propagate(Transmitter0, true))
}

func TestRouterReset(t *testing.T) {
	r, _, _ := newTestRouter()
	link, _ := r.Connect(Timer0, Comparator0)
	require.NoError(t, r.Lock(link))

	r.Reset()
	require.Empty(t, r.Links())

	link, err := r.Connect(Timer0, Comparator0)
	require.NoError(t, err)
	require.False(t, link.Locked)
}

type levelInput struct {
	recordingInput
	high bool
}

func (l *levelInput) High() bool { return l.high }

func TestRouterConnectLoadsSourceLevel(t *testing.T) {
	r := NewRouter()
	cmp := &levelInput{high: true}
	tx := &recordingInput{}
	r.AddPrimary(Timer0)
	r.Attach(Comparator0, cmp)
	r.Attach(Transmitter0, tx)

	link, err := r.Connect(Timer0, Comparator0)
	require.NoError(t, err)
	require.Empty(t, cmp.triggers, "a primary source has no level to load")
	require.NoError(t, r.Lock(link))

	_, err = r.Connect(Comparator0, Transmitter0)
	require.NoError(t, err)
	require.Equal(t, []Peripheral{Comparator0}, tx.latched)
	require.Equal(t, []bool{true}, tx.triggers)
}
