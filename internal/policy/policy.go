package policy

import (
	"errors"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// MaxFeeBasisPoints caps the platform fee at 10%.
const MaxFeeBasisPoints = 1000

var (
	ErrUnauthorized = errors.New("policy: caller is not the platform owner")
	ErrInvalidInput = errors.New("policy: invalid input")
)

// Policy holds the platform-wide fee parameters. Only the current owner may
// change them; ownership transfer replaces the owner atomically.
type Policy struct {
	mu             sync.RWMutex
	feeBasisPoints int64
	owner          string
}

// New creates a Policy owned by owner with the given fee rate.
func New(owner string, feeBasisPoints int64) (*Policy, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, ErrInvalidInput
	}
	if feeBasisPoints < 0 || feeBasisPoints > MaxFeeBasisPoints {
		return nil, ErrInvalidInput
	}
	return &Policy{feeBasisPoints: feeBasisPoints, owner: owner}, nil
}

// SetFeeRate replaces the fee rate. Fails unless caller is the current owner.
func (p *Policy) SetFeeRate(caller string, basisPoints int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if caller != p.owner {
		return ErrUnauthorized
	}
	if basisPoints < 0 || basisPoints > MaxFeeBasisPoints {
		return ErrInvalidInput
	}
	p.feeBasisPoints = basisPoints
	return nil
}

// TransferOwnership replaces the platform owner.
func (p *Policy) TransferOwnership(caller, newOwner string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if caller != p.owner {
		return ErrUnauthorized
	}
	newOwner = strings.TrimSpace(newOwner)
	if newOwner == "" {
		return ErrInvalidInput
	}
	p.owner = newOwner
	return nil
}

// Owner returns the current platform owner address.
func (p *Policy) Owner() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.owner
}

// FeeBasisPoints returns the current fee rate.
func (p *Policy) FeeBasisPoints() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.feeBasisPoints
}

// Split divides a winning bid into platform fee and seller proceeds under the
// current rate: fee = floor(amount * bps / 10000). fee + sellerAmount always
// equals amount exactly.
func (p *Policy) Split(amount int64) (fee, sellerAmount int64) {
	p.mu.RLock()
	bps := p.feeBasisPoints
	p.mu.RUnlock()
	return split(amount, bps)
}

func split(amount, bps int64) (fee, sellerAmount int64) {
	if amount <= 0 || bps <= 0 {
		return 0, amount
	}
	fee = decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(bps)).
		Div(decimal.NewFromInt(10000)).
		Floor().
		IntPart()
	return fee, amount - fee
}
