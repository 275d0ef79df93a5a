package eventbus

import (
	"sync"
	"testing"
)

func TestPublishFansOutAndDropsWhenFull(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(4)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: TypeDecisionMade})
	b.Publish(Event{Type: TypeRulesPublished})

	if e := <-a; e.Type != TypeDecisionMade || e.Time.IsZero() {
		t.Fatalf("first event on a = %+v", e)
	}
	select {
	case e := <-a:
		t.Fatalf("a should have dropped the second event, got %+v", e)
	default:
	}
	if got := len(c); got != 2 {
		t.Fatalf("c buffered %d events, want 2", got)
	}
	if b.Dropped() != 1 {
		t.Fatalf("Dropped = %d, want 1", b.Dropped())
	}
}

func TestUnsubscribeDuringPublish(t *testing.T) {
	t.Parallel()
	b := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		_, unsub := b.Subscribe(1)
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Publish(Event{Type: TypeDecisionMade})
			}
		}()
		go func() {
			defer wg.Done()
			unsub()
			unsub()
		}()
	}
	wg.Wait()
}
