package funds

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTransferFailed wraps any failure reported by the transfer collaborator.
// Callers must treat it as retryable and never discard it silently.
var ErrTransferFailed = errors.New("funds: transfer failed")

// Transferor moves value to a target address. It is the boundary to whatever
// payment substrate hosts the engine; success or failure is reported
// synchronously and a failed transfer must not be partially applied.
type Transferor interface {
	Transfer(ctx context.Context, to string, amount int64, reference string) error
}

// TransferorFunc adapts a function to the Transferor interface.
type TransferorFunc func(ctx context.Context, to string, amount int64, reference string) error

func (f TransferorFunc) Transfer(ctx context.Context, to string, amount int64, reference string) error {
	return f(ctx, to, amount, reference)
}

// Payment is a recorded outbound transfer.
type Payment struct {
	To        string    `json:"to"`
	Amount    int64     `json:"amount"`
	Reference string    `json:"reference"`
	CreatedAt time.Time `json:"created_at"`
}

// Recorder is an in-process Transferor that records every payment. It backs
// tests and the smoke binary; production deployments plug a real substrate in.
type Recorder struct {
	mu       sync.Mutex
	payments []Payment
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Transfer(ctx context.Context, to string, amount int64, reference string) error {
	if to == "" || amount <= 0 {
		return ErrTransferFailed
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments = append(r.payments, Payment{
		To:        to,
		Amount:    amount,
		Reference: reference,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

// Payments returns a snapshot of all recorded payments.
func (r *Recorder) Payments() []Payment {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Payment, len(r.payments))
	copy(out, r.payments)
	return out
}

// TotalTo sums all recorded payments to the given address.
func (r *Recorder) TotalTo(to string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for _, p := range r.payments {
		if p.To == to {
			total += p.Amount
		}
	}
	return total
}
