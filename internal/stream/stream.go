package stream

import (
	"context"
	"sync"
	"time"
)

// Event kinds emitted by the auction engine. Ordering of published events
// matches the order the underlying operations committed.
const (
	KindAuctionCreated  = "auction.created"
	KindBidAccepted     = "bid.accepted"
	KindAuctionSettled  = "auction.settled"
	KindRefundWithdrawn = "refund.withdrawn"
)

// Event is a single auction notification. Party is the seller for created
// events, the bidder for bid events, the winner for settlement events (empty
// when the auction closed without bids) and the withdrawing party for refunds.
type Event struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	AuctionID uint64    `json:"auction_id"`
	Party     string    `json:"party,omitempty"`
	Item      string    `json:"item,omitempty"`
	Amount    int64     `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives events fire-and-forget; delivery needs no acknowledgment.
type Sink interface {
	Publish(evt Event)
}

// Fanout publishes to several sinks in order.
type Fanout []Sink

func (f Fanout) Publish(evt Event) {
	for _, s := range f {
		if s != nil {
			s.Publish(evt)
		}
	}
}

// Stream fan-outs auction events to all active subscribers (SSE clients).
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (s *Stream) Publish(evt Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
