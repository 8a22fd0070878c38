package worker

import (
	"sync/atomic"
	"testing"
)

func TestPoolRunsSubmittedJobs(t *testing.T) {
	p := NewPool(2)
	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		p.Submit(func() { ran.Add(1) })
	}
	p.Stop()
	if ran.Load() != 10 {
		t.Fatalf("expected 10 jobs run, got %d", ran.Load())
	}
}

func TestSubmitAfterStopIsDropped(t *testing.T) {
	p := NewPool(1)
	p.Stop()

	var ran atomic.Int32
	// Must not panic on the closed queue; the job is simply lost.
	p.Submit(func() { ran.Add(1) })
	if ran.Load() != 0 {
		t.Fatalf("job ran after stop")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	p := NewPool(1)
	p.Stop()
	p.Stop()
}
