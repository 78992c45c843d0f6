package event_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/1ureka/syncpad/internal/event"
)

func TestBusDeliversInOrder(t *testing.T) {
	bus := event.NewBus()
	var got []string
	bus.Subscribe(func(ev event.Event) { got = append(got, "a:"+ev.Kind.String()) })
	bus.Subscribe(func(ev event.Event) { got = append(got, "b:"+ev.Kind.String()) })

	bus.Publish(event.Event{Kind: event.DeletedFile, Name: "x"})

	want := []string{"a:deletedFile", "b:deletedFile"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("handler %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBusCancel(t *testing.T) {
	bus := event.NewBus()
	count := 0
	cancel := bus.Subscribe(func(event.Event) { count++ })

	bus.Publish(event.Event{Kind: event.Paths})
	cancel()
	cancel() // second call is a no-op
	bus.Publish(event.Event{Kind: event.Paths})

	if count != 1 {
		t.Fatalf("handler ran %d times, want 1", count)
	}
}

// TestBusRecoversPanic verifies that a panicking handler neither escapes
// Publish nor stops later handlers.
func TestBusRecoversPanic(t *testing.T) {
	bus := event.NewBus()
	reached := false
	bus.Subscribe(func(event.Event) { panic("boom") })
	bus.Subscribe(func(event.Event) { reached = true })

	bus.Publish(event.Event{Kind: event.GotFile})

	if !reached {
		t.Fatal("second handler did not run after first panicked")
	}
}

func TestBusHandlerMaySubscribe(t *testing.T) {
	bus := event.NewBus()
	inner := 0
	bus.Subscribe(func(event.Event) {
		bus.Subscribe(func(event.Event) { inner++ })
	})

	bus.Publish(event.Event{})
	if inner != 0 {
		t.Errorf("handler added during publish ran in the same publish")
	}
	bus.Publish(event.Event{})
	if inner != 1 {
		t.Errorf("inner handler ran %d times, want 1", inner)
	}
}

func TestBusConcurrentPublish(t *testing.T) {
	bus := event.NewBus()
	var mu sync.Mutex
	count := 0
	bus.Subscribe(func(event.Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(event.Event{Kind: event.CaptureReport})
		}()
	}
	wg.Wait()

	if count != 20 {
		t.Fatalf("count = %d, want 20", count)
	}
}

func TestNilBusPublish(t *testing.T) {
	var bus *event.Bus
	bus.Publish(event.Event{Kind: event.Paths})
}

func TestBusExpect(t *testing.T) {
	bus := event.NewBus()
	wait := bus.Expect(func(ev event.Event) bool { return ev.Kind == event.GotFile })

	bus.Publish(event.Event{Kind: event.Paths})
	bus.Publish(event.Event{Kind: event.GotFile, Name: "a.pdf"})
	bus.Publish(event.Event{Kind: event.GotFile, Name: "b.pdf"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := wait(ctx)
	if err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if ev.Name != "a.pdf" {
		t.Errorf("got %q, want first match a.pdf", ev.Name)
	}
}

func TestBusExpectTimeout(t *testing.T) {
	bus := event.NewBus()
	wait := bus.Expect(func(event.Event) bool { return false })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := wait(ctx); err == nil {
		t.Fatal("expected deadline error")
	}
}
