package stream

import (
	"context"
	"testing"
	"time"
)

func TestSubscribeReceivesPublishedEvents(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := s.Subscribe(ctx)

	evt := Event{ID: "e1", Kind: KindBidAccepted, AuctionID: 3, Party: "alice", Amount: 500}
	s.Publish(evt)

	select {
	case got := <-ch:
		if got.ID != "e1" || got.Kind != KindBidAccepted || got.AuctionID != 3 {
			t.Fatalf("unexpected event: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSubscriberChannelClosesWithContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx)
	cancel()

	select {
	case _, open := <-ch:
		if open {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel did not close after context cancel")
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = s.Subscribe(ctx) // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			s.Publish(Event{ID: "e", Kind: KindAuctionCreated})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
}

func TestFanoutPublishesToAllSinks(t *testing.T) {
	var a, b []Event
	fan := Fanout{
		sinkFunc(func(e Event) { a = append(a, e) }),
		nil,
		sinkFunc(func(e Event) { b = append(b, e) }),
	}
	fan.Publish(Event{Kind: KindAuctionSettled})
	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("fanout missed a sink: a=%d b=%d", len(a), len(b))
	}
}

type sinkFunc func(Event)

func (f sinkFunc) Publish(e Event) { f(e) }
