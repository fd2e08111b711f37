package connectivity

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMonitor_OnOnline_FiresOncePerTransition(t *testing.T) {
	m := New(false, nil)
	var fired atomic.Int32
	m.OnOnline(func() { fired.Add(1) })

	m.SetOnline(true)
	m.SetOnline(true) // duplicate signal, no extra fire
	m.SetOnline(false)
	m.SetOnline(true)

	require.Eventually(t, func() bool { return fired.Load() == 2 },
		time.Second, 5*time.Millisecond)
	require.True(t, m.Online())
}

func TestMonitor_OnOnline_OfflineSignalDoesNotFire(t *testing.T) {
	m := New(true, nil)
	var fired atomic.Int32
	m.OnOnline(func() { fired.Add(1) })

	m.SetOnline(false)
	require.False(t, m.Online())

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, int32(0), fired.Load())
}

func TestMonitor_OnChange_SeesBothTransitions(t *testing.T) {
	m := New(false, nil)
	var ups, downs atomic.Int32
	m.OnChange(func(online bool) {
		if online {
			ups.Add(1)
		} else {
			downs.Add(1)
		}
	})

	m.SetOnline(true)
	m.SetOnline(false)

	require.Eventually(t, func() bool { return ups.Load() == 1 && downs.Load() == 1 },
		time.Second, 5*time.Millisecond)
}
