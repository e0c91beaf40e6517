package ledger

import "sync"

// Amounts are minor units (int64). No floats anywhere in money paths.

// Book tracks refundable balances owed to outbid parties, keyed by
// (auction id, party address). It is the only component allowed to move
// value between "escrowed" and "owed" states; the auction state machine
// issues instructions but never holds money itself.
type Book struct {
	mu       sync.RWMutex
	balances map[key]int64
}

type key struct {
	auctionID uint64
	party     string
}

// NewBook creates an empty refund book.
func NewBook() *Book {
	return &Book{balances: make(map[key]int64)}
}

// Credit adds amount to the party's refundable balance for the auction.
// Repeated credits accumulate; they never overwrite. Non-positive amounts
// are ignored.
func (b *Book) Credit(auctionID uint64, party string, amount int64) {
	if amount <= 0 || party == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[key{auctionID, party}] += amount
}

// Debit atomically reads and zeroes the party's balance, returning the prior
// value. Used exclusively by refund withdrawal; the zero-before-transfer
// ordering there depends on this being a single atomic step.
func (b *Book) Debit(auctionID uint64, party string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := key{auctionID, party}
	amount := b.balances[k]
	if amount != 0 {
		delete(b.balances, k)
	}
	return amount
}

// BalanceOf returns the refundable balance for the party. Unknown keys read
// as zero by contract, not by accident.
func (b *Book) BalanceOf(auctionID uint64, party string) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.balances[key{auctionID, party}]
}
