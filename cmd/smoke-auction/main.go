package main

import (
	"context"
	"log"
	"time"

	"github.com/tejaswini232005/Decentralized-Auction-House/internal/auction"
	"github.com/tejaswini232005/Decentralized-Auction-House/internal/funds"
	"github.com/tejaswini232005/Decentralized-Auction-House/internal/ledger"
	"github.com/tejaswini232005/Decentralized-Auction-House/internal/policy"
)

// Runs a full auction lifecycle against the in-memory engine and checks that
// every minor unit of escrow is accounted for at the end.
func main() {
	log.SetFlags(0)

	pol, err := policy.New("platform", 250)
	if err != nil {
		log.Fatalf("policy: %v", err)
	}
	rec := funds.NewRecorder()
	svc := auction.NewInMemory(auction.Config{
		Book:       ledger.NewBook(),
		Policy:     pol,
		Transferor: rec,
	})

	ctx := context.Background()
	start := time.Now()

	a, err := svc.Create(ctx, "alice", "smoke item", "end-to-end check", 1_000, time.Hour, start)
	if err != nil {
		log.Fatalf("create: %v", err)
	}
	if _, err := svc.PlaceBid(ctx, a.ID, "bob", 1_500, start.Add(time.Minute)); err != nil {
		log.Fatalf("bob bid: %v", err)
	}
	if _, err := svc.PlaceBid(ctx, a.ID, "carol", 2_000, start.Add(2*time.Minute)); err != nil {
		log.Fatalf("carol bid: %v", err)
	}

	refund, err := svc.WithdrawRefund(ctx, a.ID, "bob")
	if err != nil {
		log.Fatalf("bob withdraw: %v", err)
	}
	if refund != 1_500 {
		log.Fatalf("bob refund = %d, want 1500", refund)
	}

	res, err := svc.Settle(ctx, a.ID, start.Add(2*time.Hour))
	if err != nil {
		log.Fatalf("settle: %v", err)
	}
	if res.Winner != "carol" || res.FinalPrice != 2_000 {
		log.Fatalf("settlement = %+v", res)
	}
	if res.Fee+res.SellerAmount != res.FinalPrice {
		log.Fatalf("fee split leaks: %d + %d != %d", res.Fee, res.SellerAmount, res.FinalPrice)
	}

	// every unit that entered escrow must have left as a payment
	paidOut := rec.TotalTo("bob") + rec.TotalTo("alice") + rec.TotalTo("platform")
	if paidOut != 1_500+2_000 {
		log.Fatalf("escrow conservation failed: paid out %d, want 3500", paidOut)
	}

	log.Printf("OK: auction %d settled, winner=%s price=%d fee=%d seller=%d refund=%d",
		a.ID, res.Winner, res.FinalPrice, res.Fee, res.SellerAmount, refund)
}
