package dispatch

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestGuard_SingleFlight(t *testing.T) {
	var g Guard
	var acquired atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if g.TryAcquire() {
				acquired.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if n := acquired.Load(); n != 1 {
		t.Fatalf("expected exactly one acquisition, got %d", n)
	}
}

func TestGuard_ReleaseReopens(t *testing.T) {
	var g Guard
	if !g.TryAcquire() {
		t.Fatalf("first acquire should succeed")
	}
	if g.TryAcquire() {
		t.Fatalf("second acquire while held should fail")
	}
	g.Release()
	if !g.TryAcquire() {
		t.Fatalf("acquire after release should succeed")
	}
}
