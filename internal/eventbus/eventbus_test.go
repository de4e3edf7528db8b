package eventbus

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/wsiflow/tilesched/pkg/model"
)

func newTestBus() *Bus {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPublish_DeliversInOrderPerSubscriber(t *testing.T) {
	b := newTestBus()
	sub := b.Subscribe(context.Background(), "job_1", 8)

	for i := 0; i < 5; i++ {
		b.Publish("job_1", model.Event{EntityID: "job_1", Progress: float64(i) / 4})
	}

	for i := 0; i < 5; i++ {
		select {
		case evt := <-sub.Events:
			if evt.Progress != float64(i)/4 {
				t.Fatalf("event %d: progress = %v, want %v", i, evt.Progress, float64(i)/4)
			}
		default:
			t.Fatalf("event %d: expected buffered event", i)
		}
	}
}

func TestPublish_DropsOldestOnOverflow(t *testing.T) {
	b := newTestBus()
	sub := b.Subscribe(context.Background(), "job_1", 2)

	b.Publish("job_1", model.Event{Reason: "first"})
	b.Publish("job_1", model.Event{Reason: "second"})
	b.Publish("job_1", model.Event{Reason: "third"}) // buffer full, "first" dropped

	first := <-sub.Events
	second := <-sub.Events
	if first.Reason != "second" || second.Reason != "third" {
		t.Fatalf("got %q, %q; want oldest dropped so second, third survive", first.Reason, second.Reason)
	}
}

func TestPublish_NeverBlocksProducer(t *testing.T) {
	b := newTestBus()
	b.Subscribe(context.Background(), "job_1", 1) // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			b.Publish("job_1", model.Event{Progress: float64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full, undrained subscriber buffer")
	}
}

func TestSubscribe_NoCrossEntityDelivery(t *testing.T) {
	b := newTestBus()
	subA := b.Subscribe(context.Background(), "job_a", 4)
	subB := b.Subscribe(context.Background(), "job_b", 4)

	b.Publish("job_a", model.Event{EntityID: "job_a"})

	select {
	case <-subA.Events:
	default:
		t.Fatal("job_a subscriber should have received its event")
	}
	select {
	case <-subB.Events:
		t.Fatal("job_b subscriber should not receive job_a's event")
	default:
	}
}

func TestClose_DetachesSubscriber(t *testing.T) {
	b := newTestBus()
	sub := b.Subscribe(context.Background(), "job_1", 4)
	sub.Close()
	sub.Close() // must not panic

	b.mu.Lock()
	_, stillPresent := b.subs["job_1"]
	b.mu.Unlock()
	if stillPresent {
		t.Fatal("closed subscriber's entity bucket should have been cleaned up")
	}
}

// TestClose_RaceWithPublishNeverPanics exercises a consumer calling Close
// (as internal/cli's watch command does on Ctrl-C) concurrently with a
// producer still calling Publish (as a running job's progress updates
// do) for the same subscriber. A send racing a close must never panic
// with "send on closed channel".
func TestClose_RaceWithPublishNeverPanics(t *testing.T) {
	b := newTestBus()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		sub := b.Subscribe(context.Background(), "job_1", 1)

		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Publish("job_1", model.Event{EntityID: "job_1", Progress: float64(j)})
			}
		}()
		go func() {
			defer wg.Done()
			sub.Close()
		}()
	}
	wg.Wait()
}
