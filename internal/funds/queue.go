package funds

import (
	"context"
	"sync"
	"time"

	"github.com/tejaswini232005/Decentralized-Auction-House/internal/obs"
)

// Queue retries payouts whose initial transfer failed. Settlement marks an
// auction settled before any value moves, so a failed payout cannot unwind
// the settlement; it lands here and is retried until the collaborator
// accepts it. Queue depth is exported as the pending_payouts gauge.
type Queue struct {
	transferor Transferor

	mu      sync.Mutex
	pending []Payment
}

// NewQueue creates a Queue that retries through transferor.
func NewQueue(transferor Transferor) *Queue {
	return &Queue{transferor: transferor}
}

// Enqueue records a payout for later retry.
func (q *Queue) Enqueue(to string, amount int64, reference string) {
	q.mu.Lock()
	q.pending = append(q.pending, Payment{
		To:        to,
		Amount:    amount,
		Reference: reference,
		CreatedAt: time.Now().UTC(),
	})
	n := len(q.pending)
	q.mu.Unlock()
	obs.SetPendingPayouts(n)
}

// Pending returns the number of payouts waiting for retry.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Flush attempts every pending payout once, keeping the ones that still fail.
// Returns the number of payouts that went through.
func (q *Queue) Flush(ctx context.Context) int {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()

	var kept []Payment
	paid := 0
	for _, p := range batch {
		if err := q.transferor.Transfer(ctx, p.To, p.Amount, p.Reference); err != nil {
			kept = append(kept, p)
			continue
		}
		paid++
	}

	q.mu.Lock()
	// New enqueues may have arrived while transferring; keep commit order.
	q.pending = append(kept, q.pending...)
	n := len(q.pending)
	q.mu.Unlock()
	obs.SetPendingPayouts(n)
	return paid
}

// Start flushes the queue at the given interval until the returned stop
// function is called.
func (q *Queue) Start(interval time.Duration) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				q.Flush(ctx)
			}
		}
	}()
	return cancel
}
