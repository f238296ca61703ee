package client

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestNotifier_CoalescesBursts(t *testing.T) {
	var calls atomic.Int64
	gate := make(chan struct{})

	n := newNotifier(func() {
		calls.Add(1)
		<-gate
	})
	defer n.Close()

	n.Schedule()
	waitFor(t, "first dispatch", func() bool { return calls.Load() == 1 })

	// A burst of schedules while a dispatch is in flight merges into one
	// pending pass.
	for range 10 {
		n.Schedule()
	}

	gate <- struct{}{}
	waitFor(t, "merged dispatch", func() bool { return calls.Load() == 2 })
	gate <- struct{}{}

	// Nothing further is pending.
	time.Sleep(50 * time.Millisecond)
	if got := calls.Load(); got != 2 {
		t.Errorf("dispatches = %d, want burst coalesced into 2", got)
	}
}

func TestNotifier_NilCallback(t *testing.T) {
	n := newNotifier(nil)
	defer n.Close()

	// Must be a no-op, not a deadlock or panic.
	for range 3 {
		n.Schedule()
	}
}
