package events

import "testing"

func TestEmitAndSubscribe(t *testing.T) {
	handle := NewHandle(DefaultConfig(), nil)
	live, unsubscribe := handle.Subscribe()
	defer unsubscribe()

	handle.Emit(TestEvent("hello"))

	evt := <-live
	if evt.ID != 1 {
		t.Fatalf("expected id 1, got %d", evt.ID)
	}
	if evt.Data.Kind != KindTest || evt.Data.Message != "hello" {
		t.Fatalf("unexpected event data: %+v", evt.Data)
	}
}

func TestReplaySinceReturnsEventsNewerThanID(t *testing.T) {
	handle := NewHandle(DefaultConfig(), nil)
	for i := 0; i < 5; i++ {
		handle.Emit(TestEvent("msg"))
	}

	replayed := handle.ReplaySince(2)
	if len(replayed) != 3 {
		t.Fatalf("expected 3 replayed events, got %d", len(replayed))
	}
	if replayed[0].ID != 3 {
		t.Fatalf("expected first replayed id 3, got %d", replayed[0].ID)
	}
}

func TestSubscriberCountReflectsLiveSubscribers(t *testing.T) {
	handle := NewHandle(DefaultConfig(), nil)
	if handle.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", handle.SubscriberCount())
	}

	_, unsub1 := handle.Subscribe()
	_, unsub2 := handle.Subscribe()
	if handle.SubscriberCount() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", handle.SubscriberCount())
	}

	unsub1()
	if handle.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber after unsubscribe, got %d", handle.SubscriberCount())
	}
	unsub2()
}

func TestReplayBufferEvictsOldestBeyondCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReplayBufferSize = 3
	handle := NewHandle(cfg, nil)

	for i := 0; i < 5; i++ {
		handle.Emit(TestEvent("msg"))
	}

	replayed := handle.ReplaySince(0)
	if len(replayed) != 3 {
		t.Fatalf("expected ring buffer capped at 3, got %d", len(replayed))
	}
	if replayed[0].ID != 3 {
		t.Fatalf("expected oldest retained event to be id 3, got %d", replayed[0].ID)
	}
}

func TestLaggedSubscriberDropsEventsWithoutBlockingEmit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferSize = 1
	var lagged []int
	handle := NewHandle(cfg, func(subscriberID int, skipped int) {
		lagged = append(lagged, subscriberID)
	})

	live, unsubscribe := handle.Subscribe()
	defer unsubscribe()

	handle.Emit(TestEvent("one"))
	handle.Emit(TestEvent("two")) // subscriber channel (cap 1) already full; should not block

	if len(lagged) == 0 {
		t.Fatal("expected lag callback to fire for overflowing subscriber")
	}
	<-live // drain the one buffered event so the test doesn't leak goroutines
}

func TestSetEmitHookReceivesEveryEmittedEvent(t *testing.T) {
	handle := NewHandle(DefaultConfig(), nil)
	var got []StampedEvent
	handle.SetEmitHook(func(evt StampedEvent) { got = append(got, evt) })

	handle.Emit(TestEvent("one"))
	handle.Emit(TestEvent("two"))

	if len(got) != 2 || got[0].Data.Message != "one" || got[1].Data.Message != "two" {
		t.Fatalf("unexpected hook calls: %+v", got)
	}
}

func TestEventsEmittedTracksTotalCount(t *testing.T) {
	handle := NewHandle(DefaultConfig(), nil)
	for i := 0; i < 3; i++ {
		handle.Emit(TestEvent("msg"))
	}
	if handle.EventsEmitted() != 3 {
		t.Fatalf("expected 3 events emitted, got %d", handle.EventsEmitted())
	}
}
