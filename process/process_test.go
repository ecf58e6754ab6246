package process

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/appfleet/appfleet/types"
)

type fakeNotifier struct {
	drained  []*Process
	retiring []*Process
}

func (f *fakeNotifier) ProcessDrained(p *Process) bool {
	f.drained = append(f.drained, p)
	return false
}

func (f *fakeNotifier) ProcessShouldRetire(p *Process) bool {
	f.retiring = append(f.retiring, p)
	return false
}

func TestNewSessionRespectsConcurrency(t *testing.T) {
	p := New(1, "app", 2, 0, nil)

	s1, err := p.NewSession()
	require.NoError(t, err)
	require.NotNil(t, s1)

	s2, err := p.NewSession()
	require.NoError(t, err)
	require.NotNil(t, s2)

	_, err = p.NewSession()
	require.ErrorIs(t, err, types.ErrProcessBusy)
	require.Equal(t, 2, p.Sessions())
}

func TestNewSessionUnboundedConcurrency(t *testing.T) {
	p := New(1, "app", 0, 0, nil)
	for i := 0; i < 50; i++ {
		_, err := p.NewSession()
		require.NoError(t, err)
	}
	require.Equal(t, 50, p.Sessions())
	require.True(t, p.HasCapacity())
}

func TestNewSessionRejectsWhenNotEnabled(t *testing.T) {
	p := New(1, "app", 1, 0, nil)
	p.Enabled = types.DISABLING

	_, err := p.NewSession()
	require.ErrorIs(t, err, types.ErrProcessBusy)
}

func TestSessionClosedDrainsAndNotifiesOnZero(t *testing.T) {
	n := &fakeNotifier{}
	p := New(1, "app", 1, 0, n)

	sess, err := p.NewSession()
	require.NoError(t, err)

	p.Enabled = types.DISABLING
	require.Empty(t, n.drained)

	sess.Close()
	require.Equal(t, 0, p.Sessions())
	require.Equal(t, types.DISABLED, p.Enabled)
	require.Len(t, n.drained, 1)
	require.Same(t, p, n.drained[0])
}

func TestSessionClosedRetiresAtMaxRequests(t *testing.T) {
	n := &fakeNotifier{}
	p := New(1, "app", 0, 2, n)

	for i := 0; i < 2; i++ {
		sess, err := p.NewSession()
		require.NoError(t, err)
		sess.Close()
	}

	require.True(t, p.Retiring())
	require.Len(t, n.retiring, 1)
	require.Same(t, p, n.retiring[0])

	// Crossing the threshold again must not notify a second time.
	sess, err := p.NewSession()
	require.NoError(t, err)
	sess.Close()
	require.Len(t, n.retiring, 1)
}

func TestBusyness(t *testing.T) {
	bounded := New(1, "app", 4, 0, nil)
	require.Zero(t, bounded.Busyness())
	_, err := bounded.NewSession()
	require.NoError(t, err)
	require.Equal(t, 0.25, bounded.Busyness())

	unbounded := New(2, "app", 0, 0, nil)
	_, err = unbounded.NewSession()
	require.NoError(t, err)
	require.Equal(t, float64(1), unbounded.Busyness())
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	p := New(1, "app", 1, 0, nil)
	sess, err := p.NewSession()
	require.NoError(t, err)

	sess.Close()
	sess.Close()
	require.Equal(t, 0, p.Sessions())
}

func TestSessionCloseHookOverridesDirectClose(t *testing.T) {
	p := New(1, "app", 1, 0, nil)
	sess, err := p.NewSession()
	require.NoError(t, err)

	called := false
	sess.SetCloseHook(func() { called = true })
	sess.Close()

	require.True(t, called)
	// sessions is untouched because the hook, not SessionClosed, ran.
	require.Equal(t, 1, p.Sessions())
}
