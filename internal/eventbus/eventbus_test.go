package eventbus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	defer b.Close()
	sub := b.Subscribe()

	b.Publish("hello")
	select {
	case e := <-sub:
		if e != "hello" {
			t.Fatalf("unexpected event %v", e)
		}
	case <-time.After(time.Second):
		t.Fatalf("event not delivered")
	}
}

func TestFanOut(t *testing.T) {
	b := New()
	defer b.Close()
	s1 := b.Subscribe()
	s2 := b.Subscribe()

	b.Publish(42)
	for i, sub := range []<-chan Event{s1, s2} {
		select {
		case e := <-sub:
			if e != 42 {
				t.Fatalf("subscriber %d got %v", i, e)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d missed the event", i)
		}
	}
}

func TestFullBufferDropsNotBlocks(t *testing.T) {
	b := New()
	defer b.Close()
	sub := b.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			b.Publish(i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publish blocked on a slow subscriber")
	}
	if n := len(sub); n != subscriberBuffer {
		t.Fatalf("expected a full buffer of %d, got %d", subscriberBuffer, n)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	defer b.Close()
	sub := b.Subscribe()
	b.Unsubscribe(sub)

	if _, ok := <-sub; ok {
		t.Fatalf("unsubscribed channel should be closed")
	}
	// Publishing after unsubscribe must not panic.
	b.Publish("still fine")
}

func TestCloseIdempotent(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	b.Close()
	b.Close()

	if _, ok := <-sub; ok {
		t.Fatalf("close should close subscriber channels")
	}
	late := b.Subscribe()
	if _, ok := <-late; ok {
		t.Fatalf("subscribing after close should return a closed channel")
	}
}
