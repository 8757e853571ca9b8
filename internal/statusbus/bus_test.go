package statusbus

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"docintake/internal/events"
	"docintake/internal/logging"
)

func TestPublishDeliversInOrderToAll(t *testing.T) {
	bus := New(logging.NewNop())
	var a, b []uint64
	bus.Subscribe("a", func(ev events.Event) error { a = append(a, ev.Seq); return nil })
	bus.Subscribe("b", func(ev events.Event) error { b = append(b, ev.Seq); return nil })

	for i := 0; i < 5; i++ {
		bus.Publish(events.Event{Kind: events.KindLog})
	}
	want := []uint64{1, 2, 3, 4, 5}
	for name, got := range map[string][]uint64{"a": a, "b": b} {
		if len(got) != len(want) {
			t.Fatalf("%s received %v", name, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("%s out of order: %v", name, got)
			}
		}
	}
}

func TestFailingSubscriberDoesNotBlockOthers(t *testing.T) {
	bus := New(logging.NewNop())
	received := 0
	bus.Subscribe("errors", func(events.Event) error { return errors.New("render failed") })
	bus.Subscribe("panics", func(events.Event) error { panic("boom") })
	bus.Subscribe("healthy", func(events.Event) error { received++; return nil })

	bus.Publish(events.Event{Kind: events.KindProgress})
	bus.Publish(events.Event{Kind: events.KindResult})

	if received != 2 {
		t.Fatalf("healthy subscriber received %d events, want 2", received)
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := New(nil)
	count := 0
	sub := bus.Subscribe("once", func(events.Event) error { count++; return nil })
	var self *Subscription
	self = bus.Subscribe("self-removing", func(events.Event) error { self.Unsubscribe(); return nil })
	if bus.Len() != 2 {
		t.Fatalf("Len = %d", bus.Len())
	}

	bus.Publish(events.Event{})
	if bus.Len() != 1 {
		t.Fatalf("self-removing handler still registered, Len = %d", bus.Len())
	}
	sub.Unsubscribe()
	sub.Unsubscribe()
	bus.Publish(events.Event{})
	if count != 1 || bus.Len() != 0 {
		t.Fatalf("count=%d len=%d", count, bus.Len())
	}
}

func TestUnsubscribeAll(t *testing.T) {
	bus := New(nil)
	stale := 0
	bus.Subscribe("run-1", func(events.Event) error { stale++; return nil })
	bus.Subscribe("run-1-metrics", func(events.Event) error { stale++; return nil })
	bus.UnsubscribeAll()
	bus.Publish(events.Event{})
	if stale != 0 || bus.Len() != 0 {
		t.Fatalf("stale handlers ran %d times, Len=%d", stale, bus.Len())
	}
}

func TestConcurrentPublishersGetUniqueSequence(t *testing.T) {
	bus := New(nil)
	var mu sync.Mutex
	var last uint64
	ordered := true
	bus.Subscribe("order", func(ev events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		if ev.Seq != last+1 {
			ordered = false
		}
		last = ev.Seq
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				bus.Publish(events.Event{Kind: events.KindLog})
			}
		}()
	}
	wg.Wait()
	if !ordered || last != 200 {
		t.Fatalf("ordered=%v last=%d", ordered, last)
	}
}

func TestHandlerMayPublish(t *testing.T) {
	bus := New(logging.NewNop())
	var seen []string
	bus.Subscribe("relay", func(ev events.Event) error {
		if ev.Kind == events.KindError {
			bus.Publish(events.Event{Kind: events.KindLog, Message: "relayed " + ev.Message})
		}
		return nil
	})
	bus.Subscribe("record", func(ev events.Event) error {
		seen = append(seen, fmt.Sprintf("%d:%s", ev.Seq, ev.Message))
		return nil
	})

	done := make(chan events.Event, 1)
	go func() { done <- bus.Publish(events.Event{Kind: events.KindError, Message: "ocr failed"}) }()
	select {
	case ev := <-done:
		if ev.Seq != 1 {
			t.Fatalf("outer seq = %d, want 1", ev.Seq)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("publishing from a handler deadlocked")
	}

	want := []string{"1:ocr failed", "2:relayed ocr failed"}
	if len(seen) != len(want) || seen[0] != want[0] || seen[1] != want[1] {
		t.Fatalf("delivery order = %v, want %v", seen, want)
	}
}
