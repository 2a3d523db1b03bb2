package timeout

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRegisterFires(t *testing.T) {
	h := New()

	var fired atomic.Int32
	h.Register(func() { fired.Add(1) }, 10*time.Millisecond)

	assert.Eventually(t, func() bool { return fired.Load() == 1 },
		time.Second, 5*time.Millisecond)

	// One-shot: nothing further.
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestUnregisterStops(t *testing.T) {
	h := New()

	var fired atomic.Int32
	cookie := h.Register(func() { fired.Add(1) }, 50*time.Millisecond)
	h.Unregister(cookie)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestRefreshPostpones(t *testing.T) {
	h := New()

	var fired atomic.Int32
	cookie := h.Register(func() { fired.Add(1) }, 80*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	h.Refresh(cookie)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load(), "refresh must restart the deadline")

	assert.Eventually(t, func() bool { return fired.Load() == 1 },
		time.Second, 5*time.Millisecond)
}

func TestUnregisterUnknownCookieIsNoop(t *testing.T) {
	h := New()
	h.Unregister(NoCookie)
	h.Refresh(NoCookie)
}
