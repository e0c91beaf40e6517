package auction

import (
	"errors"
	"time"
)

// Auction duration bounds enforced at creation.
const (
	MinDuration = 5 * time.Minute
	MaxDuration = 7 * 24 * time.Hour
)

// Auction is a time-bounded listing open for ascending-price bidding.
// Amounts are minor units. Records are never deleted; Active/Settled encode
// the lifecycle: open for bidding iff Active && !Settled, and once Settled
// flips true, Active is false forever.
type Auction struct {
	ID              uint64    `json:"id"`
	Seller          string    `json:"seller"`
	ItemName        string    `json:"item_name"`
	ItemDescription string    `json:"item_description,omitempty"`
	StartingPrice   int64     `json:"starting_price"`
	CurrentBid      int64     `json:"current_bid"`
	CurrentBidder   string    `json:"current_bidder,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	EndTime         time.Time `json:"end_time"`
	Active          bool      `json:"active"`
	Settled         bool      `json:"settled"`
}

// HasBids reports whether any bid has been accepted.
func (a Auction) HasBids() bool {
	return a.CurrentBidder != "" && a.CurrentBid > 0
}

// Open reports whether the auction accepts bids at the given time.
func (a Auction) Open(now time.Time) bool {
	return a.Active && !a.Settled && now.Before(a.EndTime)
}

// Settlement is the outcome of settling an auction. Winner is empty and all
// amounts are zero when the auction closed without bids. DeferredPayouts
// counts transfers that did not go through synchronously and were queued for
// retry; the settlement itself is final either way.
type Settlement struct {
	AuctionID       uint64    `json:"auction_id"`
	Winner          string    `json:"winner,omitempty"`
	FinalPrice      int64     `json:"final_price"`
	Fee             int64     `json:"fee"`
	SellerAmount    int64     `json:"seller_amount"`
	SettledAt       time.Time `json:"settled_at"`
	DeferredPayouts int       `json:"deferred_payouts,omitempty"`
}

var (
	ErrInvalidInput       = errors.New("auction: invalid input")
	ErrNotFound           = errors.New("auction: not found")
	ErrAuctionClosed      = errors.New("auction: closed for bidding")
	ErrAuctionStillActive = errors.New("auction: still active")
	ErrSellerBid          = errors.New("auction: seller cannot bid on own auction")
	ErrBidTooLow          = errors.New("auction: bid must exceed starting price")
	ErrBidNotHighEnough   = errors.New("auction: bid must exceed current bid")
	ErrAlreadySettled     = errors.New("auction: already settled")
	ErrNothingToWithdraw  = errors.New("auction: nothing to withdraw")
	ErrTransferFailed     = errors.New("auction: transfer failed")
)
