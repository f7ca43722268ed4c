package progress

import "testing"

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := New()
	sub := b.Subscribe(10)
	defer sub.Close()

	b.Publish(Event{Kind: JobStarted, RunnerID: "run-1"})
	ev := <-sub.Events()
	if ev.Kind != JobStarted || ev.RunnerID != "run-1" {
		t.Errorf("got %+v", ev)
	}
}

func TestPublishMonotonicProgress(t *testing.T) {
	b := New()
	sub := b.Subscribe(10)
	defer sub.Close()

	b.Publish(Event{Kind: JobProgress, RunnerID: "run-1", Current: 5, Total: 10})
	b.Publish(Event{Kind: JobProgress, RunnerID: "run-1", Current: 3, Total: 10})
	b.Publish(Event{Kind: JobProgress, RunnerID: "run-1", Current: 7, Total: 10})

	got := []int{}
	for i := 0; i < 2; i++ {
		got = append(got, (<-sub.Events()).Current)
	}
	if got[0] != 5 || got[1] != 7 {
		t.Errorf("progress events = %v, want [5 7] (backward 3 dropped)", got)
	}
}

func TestCloseUnregistersSubscriber(t *testing.T) {
	b := New()
	sub := b.Subscribe(1)
	sub.Close()
	if b.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount = %d, want 0 after Close", b.SubscriberCount())
	}
	b.Publish(Event{Kind: JobStarted})
}
