package jobs

import (
	"testing"
	"time"
)

func TestBroadcaster(t *testing.T) {
	b := NewBroadcaster(nil)
	ch, unsubscribe := b.Subscribe(4)

	b.UpdateStatus("Capturing page 1/3...")
	b.UpdateMetrics(Metrics{CapturedPages: 1, TotalPages: 3})

	select {
	case u := <-ch:
		if u.Kind != "status" || u.Status != "Capturing page 1/3..." {
			t.Errorf("first update = %+v", u)
		}
	case <-time.After(time.Second):
		t.Fatal("no status update")
	}
	select {
	case u := <-ch:
		if u.Kind != "metrics" || u.Metrics == nil || u.Metrics.CapturedPages != 1 {
			t.Errorf("second update = %+v", u)
		}
	case <-time.After(time.Second):
		t.Fatal("no metrics update")
	}

	status, m := b.Last()
	if status != "Capturing page 1/3..." || m.TotalPages != 3 {
		t.Errorf("Last() = %q, %+v", status, m)
	}

	unsubscribe()
	unsubscribe()
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after unsubscribe")
	}
	// Publishing with no subscribers must not block or panic.
	b.UpdateStatus("done")
}

func TestBroadcaster_DropsForSlowSubscriber(t *testing.T) {
	b := NewBroadcaster(nil)
	ch, unsubscribe := b.Subscribe(1)
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.UpdateStatus("tick")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("UpdateStatus blocked on a slow subscriber")
	}
	if len(ch) != 1 {
		t.Errorf("buffered = %d, want 1", len(ch))
	}
}
