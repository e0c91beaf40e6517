package auction

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tejaswini232005/Decentralized-Auction-House/internal/funds"
	"github.com/tejaswini232005/Decentralized-Auction-House/internal/ids"
	"github.com/tejaswini232005/Decentralized-Auction-House/internal/ledger"
	"github.com/tejaswini232005/Decentralized-Auction-House/internal/obs"
	"github.com/tejaswini232005/Decentralized-Auction-House/internal/policy"
	"github.com/tejaswini232005/Decentralized-Auction-House/internal/stream"
)

// Service defines the auction registry and state machine operations. Every
// time-sensitive operation takes the current time from the caller; the engine
// never reads a clock itself.
type Service interface {
	Create(ctx context.Context, seller, itemName, itemDescription string, startingPrice int64, duration time.Duration, now time.Time) (Auction, error)
	Get(ctx context.Context, id uint64) (Auction, error)
	ListActive(ctx context.Context, now time.Time) ([]Auction, error)
	TimeRemaining(ctx context.Context, id uint64, now time.Time) (time.Duration, error)
	PlaceBid(ctx context.Context, id uint64, bidder string, amount int64, now time.Time) (Auction, error)
	Settle(ctx context.Context, id uint64, now time.Time) (Settlement, error)
	WithdrawRefund(ctx context.Context, id uint64, party string) (int64, error)
	RefundBalance(ctx context.Context, id uint64, party string) (int64, error)
}

// Config wires the collaborators into a Service implementation. Zero fields
// get in-process defaults suitable for tests and the smoke binary.
type Config struct {
	Book       *ledger.Book
	Policy     *policy.Policy
	Transferor funds.Transferor
	Payouts    *funds.Queue
	Sink       stream.Sink
}

func (c Config) withDefaults() Config {
	if c.Book == nil {
		c.Book = ledger.NewBook()
	}
	if c.Policy == nil {
		c.Policy, _ = policy.New("platform", 0)
	}
	if c.Transferor == nil {
		c.Transferor = funds.NewRecorder()
	}
	if c.Payouts == nil {
		c.Payouts = funds.NewQueue(c.Transferor)
	}
	return c
}

// InMemory implements Service with in-process concurrency safety.
// All mutations to auction records and their ledger entries run under one
// exclusive section, so no operation ever observes a torn write. Fund
// transfers happen after state is committed and the lock released: a
// re-entrant call from a transfer recipient sees final state and finds no
// further work to do.
type InMemory struct {
	mu       sync.RWMutex
	auctions []*Auction

	book       *ledger.Book
	policy     *policy.Policy
	transferor funds.Transferor
	payouts    *funds.Queue
	sink       stream.Sink
}

// NewInMemory creates a fresh registry with the given collaborators.
func NewInMemory(cfg Config) *InMemory {
	cfg = cfg.withDefaults()
	return &InMemory{
		book:       cfg.Book,
		policy:     cfg.Policy,
		transferor: cfg.Transferor,
		payouts:    cfg.Payouts,
		sink:       cfg.Sink,
	}
}

// Book exposes the refund ledger for read-only inspection.
func (s *InMemory) Book() *ledger.Book { return s.book }

func (s *InMemory) Create(ctx context.Context, seller, itemName, itemDescription string, startingPrice int64, duration time.Duration, now time.Time) (Auction, error) {
	seller = strings.TrimSpace(seller)
	itemName = strings.TrimSpace(itemName)
	if seller == "" || itemName == "" {
		return Auction{}, ErrInvalidInput
	}
	if startingPrice <= 0 {
		return Auction{}, ErrInvalidInput
	}
	if duration < MinDuration || duration > MaxDuration {
		return Auction{}, ErrInvalidInput
	}

	s.mu.Lock()
	a := &Auction{
		ID:              uint64(len(s.auctions)),
		Seller:          seller,
		ItemName:        itemName,
		ItemDescription: itemDescription,
		StartingPrice:   startingPrice,
		CreatedAt:       now.UTC(),
		EndTime:         now.UTC().Add(duration),
		Active:          true,
	}
	s.auctions = append(s.auctions, a)
	out := *a

	// Published before unlock so the event order matches commit order.
	// Both sinks are non-blocking.
	obs.AuctionCreated()
	s.publish(stream.Event{
		ID:        ids.New(),
		Kind:      stream.KindAuctionCreated,
		AuctionID: out.ID,
		Party:     out.Seller,
		Item:      out.ItemName,
		Amount:    out.StartingPrice,
		Timestamp: now.UTC(),
	})
	s.mu.Unlock()
	return out, nil
}

func (s *InMemory) Get(ctx context.Context, id uint64) (Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id >= uint64(len(s.auctions)) {
		return Auction{}, ErrNotFound
	}
	return *s.auctions[id], nil
}

// ListActive returns a snapshot of auctions still open for bidding at now,
// in ascending id order.
func (s *InMemory) ListActive(ctx context.Context, now time.Time) ([]Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Auction
	for _, a := range s.auctions {
		if a.Open(now) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *InMemory) TimeRemaining(ctx context.Context, id uint64, now time.Time) (time.Duration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id >= uint64(len(s.auctions)) {
		return 0, ErrNotFound
	}
	remaining := s.auctions[id].EndTime.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// PlaceBid validates the bid against the auction state, credits the previous
// bidder's refundable balance and records the new highest bid. Preconditions
// are checked in a fixed order and the first failure wins; no state changes
// on any failure. Payment collection for the bid amount is assumed atomic
// with this call at the host boundary.
func (s *InMemory) PlaceBid(ctx context.Context, id uint64, bidder string, amount int64, now time.Time) (Auction, error) {
	bidder = strings.TrimSpace(bidder)
	if bidder == "" {
		return Auction{}, ErrInvalidInput
	}

	s.mu.Lock()
	if id >= uint64(len(s.auctions)) {
		s.mu.Unlock()
		obs.BidRejected("not_found")
		return Auction{}, ErrNotFound
	}
	a := s.auctions[id]
	if !a.Open(now) {
		s.mu.Unlock()
		obs.BidRejected("closed")
		return Auction{}, ErrAuctionClosed
	}
	if bidder == a.Seller {
		s.mu.Unlock()
		obs.BidRejected("seller")
		return Auction{}, ErrSellerBid
	}
	if amount <= a.StartingPrice {
		s.mu.Unlock()
		obs.BidRejected("too_low")
		return Auction{}, ErrBidTooLow
	}
	if amount <= a.CurrentBid {
		s.mu.Unlock()
		obs.BidRejected("not_high_enough")
		return Auction{}, ErrBidNotHighEnough
	}

	// The superseded bid becomes refundable to its owner. Credits accumulate
	// across repeated outbids within the same auction.
	if a.HasBids() {
		s.book.Credit(a.ID, a.CurrentBidder, a.CurrentBid)
	}
	a.CurrentBid = amount
	a.CurrentBidder = bidder
	out := *a

	obs.BidAccepted()
	s.publish(stream.Event{
		ID:        ids.New(),
		Kind:      stream.KindBidAccepted,
		AuctionID: out.ID,
		Party:     bidder,
		Amount:    amount,
		Timestamp: now.UTC(),
	})
	s.mu.Unlock()
	return out, nil
}

// Settle finalizes an ended auction exactly once. The active/settled flags
// flip before any value moves, so a re-entrant call during payout observes a
// settled auction and fails with ErrAlreadySettled instead of re-triggering
// the payout. Payout transfers that fail are queued for retry; the
// settlement itself never reverts.
func (s *InMemory) Settle(ctx context.Context, id uint64, now time.Time) (Settlement, error) {
	s.mu.Lock()
	if id >= uint64(len(s.auctions)) {
		s.mu.Unlock()
		return Settlement{}, ErrNotFound
	}
	a := s.auctions[id]
	if now.Before(a.EndTime) {
		s.mu.Unlock()
		return Settlement{}, ErrAuctionStillActive
	}
	if a.Settled || !a.Active {
		s.mu.Unlock()
		return Settlement{}, ErrAlreadySettled
	}

	a.Active = false
	a.Settled = true

	result := Settlement{
		AuctionID: a.ID,
		SettledAt: now.UTC(),
	}
	var seller, owner string
	if a.HasBids() {
		result.Winner = a.CurrentBidder
		result.FinalPrice = a.CurrentBid
		result.Fee, result.SellerAmount = s.policy.Split(a.CurrentBid)
		seller = a.Seller
		owner = s.policy.Owner()
	}

	obs.AuctionSettled()
	s.publish(stream.Event{
		ID:        ids.New(),
		Kind:      stream.KindAuctionSettled,
		AuctionID: result.AuctionID,
		Party:     result.Winner,
		Amount:    result.FinalPrice,
		Timestamp: now.UTC(),
	})
	s.mu.Unlock()

	// Value moves only after the one-way transition above is committed.
	if result.Winner != "" {
		ref := fmt.Sprintf("settle-%d", result.AuctionID)
		if result.SellerAmount > 0 {
			if err := s.transferor.Transfer(ctx, seller, result.SellerAmount, ref+"-seller"); err != nil {
				s.deferPayout(seller, result.SellerAmount, ref+"-seller", err)
				result.DeferredPayouts++
			}
		}
		if result.Fee > 0 {
			if err := s.transferor.Transfer(ctx, owner, result.Fee, ref+"-fee"); err != nil {
				s.deferPayout(owner, result.Fee, ref+"-fee", err)
				result.DeferredPayouts++
			}
		}
	}
	return result, nil
}

// WithdrawRefund pays out the party's accumulated refundable balance for the
// auction. The balance is zeroed before the transfer starts, so a re-entrant
// call from the recipient finds nothing to withdraw. If the transfer fails
// the balance is credited back and ErrTransferFailed returned, leaving the
// party able to retry.
func (s *InMemory) WithdrawRefund(ctx context.Context, id uint64, party string) (int64, error) {
	party = strings.TrimSpace(party)
	if party == "" {
		return 0, ErrInvalidInput
	}

	s.mu.RLock()
	known := id < uint64(len(s.auctions))
	s.mu.RUnlock()
	if !known {
		return 0, ErrNotFound
	}

	amount := s.book.Debit(id, party)
	if amount == 0 {
		return 0, ErrNothingToWithdraw
	}

	ref := fmt.Sprintf("refund-%d-%s", id, ids.New())
	if err := s.transferor.Transfer(ctx, party, amount, ref); err != nil {
		// Compensate: restore the balance so the withdrawal can be retried.
		s.book.Credit(id, party, amount)
		return 0, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	obs.RefundWithdrawn()
	s.publish(stream.Event{
		ID:        ids.New(),
		Kind:      stream.KindRefundWithdrawn,
		AuctionID: id,
		Party:     party,
		Amount:    amount,
		Timestamp: time.Now().UTC(),
	})
	return amount, nil
}

func (s *InMemory) RefundBalance(ctx context.Context, id uint64, party string) (int64, error) {
	s.mu.RLock()
	known := id < uint64(len(s.auctions))
	s.mu.RUnlock()
	if !known {
		return 0, ErrNotFound
	}
	return s.book.BalanceOf(id, party), nil
}

func (s *InMemory) deferPayout(to string, amount int64, ref string, cause error) {
	s.payouts.Enqueue(to, amount, ref)
	obs.LogRequest(map[string]any{
		"level":     "warn",
		"msg":       "payout deferred",
		"to":        to,
		"amount":    amount,
		"reference": ref,
		"error":     cause.Error(),
	})
}

func (s *InMemory) publish(evt stream.Event) {
	if s.sink != nil {
		s.sink.Publish(evt)
	}
}
