package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/tejaswini232005/Decentralized-Auction-House/internal/auction"
	"github.com/tejaswini232005/Decentralized-Auction-House/internal/funds"
	"github.com/tejaswini232005/Decentralized-Auction-House/internal/ids"
	"github.com/tejaswini232005/Decentralized-Auction-House/internal/obs"
	"github.com/tejaswini232005/Decentralized-Auction-House/internal/policy"
	"github.com/tejaswini232005/Decentralized-Auction-House/internal/stream"
)

// Store implements auction.Service on Postgres. Every mutating operation runs
// inside one SQL transaction with the auction row locked, so a crash between
// operations never leaves partially-applied state and concurrent operations
// on the same auction serialize on the row lock. Fund transfers run after
// commit, mirroring the in-memory engine's state-before-transfer ordering.
type Store struct {
	db         *sql.DB
	policy     *policy.Policy
	transferor funds.Transferor
	payouts    *funds.Queue
	sink       stream.Sink
}

var _ auction.Service = (*Store)(nil)

// Open connects to Postgres and returns a Store wired to the collaborators.
func Open(dsn string, cfg auction.Config) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests.
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return New(db, cfg), nil
}

// New wraps an existing database handle.
func New(db *sql.DB, cfg auction.Config) *Store {
	if cfg.Policy == nil {
		cfg.Policy, _ = policy.New("platform", 0)
	}
	if cfg.Transferor == nil {
		cfg.Transferor = funds.NewRecorder()
	}
	if cfg.Payouts == nil {
		cfg.Payouts = funds.NewQueue(cfg.Transferor)
	}
	return &Store{
		db:         db,
		policy:     cfg.Policy,
		transferor: cfg.Transferor,
		payouts:    cfg.Payouts,
		sink:       cfg.Sink,
	}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Create(ctx context.Context, seller, itemName, itemDescription string, startingPrice int64, duration time.Duration, now time.Time) (auction.Auction, error) {
	seller = trimmed(seller)
	itemName = trimmed(itemName)
	if seller == "" || itemName == "" || startingPrice <= 0 {
		return auction.Auction{}, auction.ErrInvalidInput
	}
	if duration < auction.MinDuration || duration > auction.MaxDuration {
		return auction.Auction{}, auction.ErrInvalidInput
	}

	createdAt := now.UTC()
	endTime := createdAt.Add(duration)

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return auction.Auction{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var id uint64
	if err := tx.QueryRowContext(ctx, `
		insert into auctions(id, seller, item_name, item_description, starting_price, created_at, end_time, active, settled)
		select coalesce(max(id)+1, 0), $1, $2, $3, $4, $5, $6, true, false from auctions
		returning id
	`, seller, itemName, itemDescription, startingPrice, createdAt, endTime).Scan(&id); err != nil {
		return auction.Auction{}, err
	}
	if err := tx.Commit(); err != nil {
		return auction.Auction{}, err
	}

	out := auction.Auction{
		ID:              id,
		Seller:          seller,
		ItemName:        itemName,
		ItemDescription: itemDescription,
		StartingPrice:   startingPrice,
		CreatedAt:       createdAt,
		EndTime:         endTime,
		Active:          true,
	}
	obs.AuctionCreated()
	s.publish(stream.Event{
		ID:        ids.New(),
		Kind:      stream.KindAuctionCreated,
		AuctionID: id,
		Party:     seller,
		Item:      itemName,
		Amount:    startingPrice,
		Timestamp: createdAt,
	})
	return out, nil
}

const auctionColumns = `id, seller, item_name, item_description, starting_price, current_bid, current_bidder, created_at, end_time, active, settled`

func scanAuction(row interface{ Scan(...any) error }) (auction.Auction, error) {
	var a auction.Auction
	err := row.Scan(&a.ID, &a.Seller, &a.ItemName, &a.ItemDescription, &a.StartingPrice,
		&a.CurrentBid, &a.CurrentBidder, &a.CreatedAt, &a.EndTime, &a.Active, &a.Settled)
	if errors.Is(err, sql.ErrNoRows) {
		return auction.Auction{}, auction.ErrNotFound
	}
	if err != nil {
		return auction.Auction{}, err
	}
	return a, nil
}

func (s *Store) Get(ctx context.Context, id uint64) (auction.Auction, error) {
	row := s.db.QueryRowContext(ctx, `select `+auctionColumns+` from auctions where id=$1`, id)
	return scanAuction(row)
}

func (s *Store) ListActive(ctx context.Context, now time.Time) ([]auction.Auction, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+auctionColumns+` from auctions
		where active and not settled and end_time > $1
		order by id asc
	`, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []auction.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) TimeRemaining(ctx context.Context, id uint64, now time.Time) (time.Duration, error) {
	var endTime time.Time
	err := s.db.QueryRowContext(ctx, `select end_time from auctions where id=$1`, id).Scan(&endTime)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, auction.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	remaining := endTime.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (s *Store) PlaceBid(ctx context.Context, id uint64, bidder string, amount int64, now time.Time) (auction.Auction, error) {
	bidder = trimmed(bidder)
	if bidder == "" {
		return auction.Auction{}, auction.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return auction.Auction{}, err
	}
	defer func() { _ = tx.Rollback() }()

	a, err := scanAuction(tx.QueryRowContext(ctx, `select `+auctionColumns+` from auctions where id=$1 for update`, id))
	if err != nil {
		if errors.Is(err, auction.ErrNotFound) {
			obs.BidRejected("not_found")
		}
		return auction.Auction{}, err
	}

	// Same precondition order as the in-memory engine; first failure wins.
	switch {
	case !a.Open(now):
		obs.BidRejected("closed")
		return auction.Auction{}, auction.ErrAuctionClosed
	case bidder == a.Seller:
		obs.BidRejected("seller")
		return auction.Auction{}, auction.ErrSellerBid
	case amount <= a.StartingPrice:
		obs.BidRejected("too_low")
		return auction.Auction{}, auction.ErrBidTooLow
	case amount <= a.CurrentBid:
		obs.BidRejected("not_high_enough")
		return auction.Auction{}, auction.ErrBidNotHighEnough
	}

	if a.HasBids() {
		if _, err := tx.ExecContext(ctx, `
			insert into refund_balances(auction_id, party, amount)
			values ($1, $2, $3)
			on conflict (auction_id, party) do update
			set amount = refund_balances.amount + excluded.amount
		`, a.ID, a.CurrentBidder, a.CurrentBid); err != nil {
			return auction.Auction{}, err
		}
	}
	if _, err := tx.ExecContext(ctx, `
		update auctions set current_bid = $2, current_bidder = $3 where id = $1
	`, a.ID, amount, bidder); err != nil {
		return auction.Auction{}, err
	}
	if err := tx.Commit(); err != nil {
		return auction.Auction{}, err
	}

	a.CurrentBid = amount
	a.CurrentBidder = bidder
	obs.BidAccepted()
	s.publish(stream.Event{
		ID:        ids.New(),
		Kind:      stream.KindBidAccepted,
		AuctionID: a.ID,
		Party:     bidder,
		Amount:    amount,
		Timestamp: now.UTC(),
	})
	return a, nil
}

func (s *Store) Settle(ctx context.Context, id uint64, now time.Time) (auction.Settlement, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return auction.Settlement{}, err
	}
	defer func() { _ = tx.Rollback() }()

	a, err := scanAuction(tx.QueryRowContext(ctx, `select `+auctionColumns+` from auctions where id=$1 for update`, id))
	if err != nil {
		return auction.Settlement{}, err
	}
	if now.Before(a.EndTime) {
		return auction.Settlement{}, auction.ErrAuctionStillActive
	}
	if a.Settled || !a.Active {
		return auction.Settlement{}, auction.ErrAlreadySettled
	}

	if _, err := tx.ExecContext(ctx, `
		update auctions set active = false, settled = true where id = $1
	`, a.ID); err != nil {
		return auction.Settlement{}, err
	}
	// The one-way transition is durable before any value moves.
	if err := tx.Commit(); err != nil {
		return auction.Settlement{}, err
	}

	result := auction.Settlement{
		AuctionID: a.ID,
		SettledAt: now.UTC(),
	}
	if a.HasBids() {
		result.Winner = a.CurrentBidder
		result.FinalPrice = a.CurrentBid
		result.Fee, result.SellerAmount = s.policy.Split(a.CurrentBid)

		ref := fmt.Sprintf("settle-%d", a.ID)
		if result.SellerAmount > 0 {
			if err := s.transferor.Transfer(ctx, a.Seller, result.SellerAmount, ref+"-seller"); err != nil {
				s.payouts.Enqueue(a.Seller, result.SellerAmount, ref+"-seller")
				result.DeferredPayouts++
			}
		}
		if result.Fee > 0 {
			owner := s.policy.Owner()
			if err := s.transferor.Transfer(ctx, owner, result.Fee, ref+"-fee"); err != nil {
				s.payouts.Enqueue(owner, result.Fee, ref+"-fee")
				result.DeferredPayouts++
			}
		}
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
	return result, nil
}

func (s *Store) WithdrawRefund(ctx context.Context, id uint64, party string) (int64, error) {
	party = trimmed(party)
	if party == "" {
		return 0, auction.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `select 1 from auctions where id=$1`, id).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, auction.ErrNotFound
		}
		return 0, err
	}

	var amount int64
	err = tx.QueryRowContext(ctx, `
		select amount from refund_balances where auction_id=$1 and party=$2 for update
	`, id, party).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && amount == 0) {
		return 0, auction.ErrNothingToWithdraw
	}
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `
		delete from refund_balances where auction_id=$1 and party=$2
	`, id, party); err != nil {
		return 0, err
	}
	// Balance is durably zeroed before the transfer starts: a re-entrant
	// withdrawal attempt sees no balance and fails with NothingToWithdraw.
	if err := tx.Commit(); err != nil {
		return 0, err
	}

	if err := s.transferor.Transfer(ctx, party, amount, fmt.Sprintf("refund-%d-%s", id, ids.New())); err != nil {
		if cerr := s.recredit(ctx, id, party, amount); cerr != nil {
			// The balance could not be restored; park the payout for retry
			// instead so the money is never dropped.
			s.payouts.Enqueue(party, amount, fmt.Sprintf("refund-%d", id))
		}
		return 0, fmt.Errorf("%w: %v", auction.ErrTransferFailed, err)
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

func (s *Store) RefundBalance(ctx context.Context, id uint64, party string) (int64, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, `select 1 from auctions where id=$1`, id).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, auction.ErrNotFound
		}
		return 0, err
	}
	var amount int64
	err := s.db.QueryRowContext(ctx, `
		select amount from refund_balances where auction_id=$1 and party=$2
	`, id, party).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		// Unknown keys read as zero by contract.
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return amount, nil
}

func (s *Store) recredit(ctx context.Context, id uint64, party string, amount int64) error {
	_, err := s.db.ExecContext(ctx, `
		insert into refund_balances(auction_id, party, amount)
		values ($1, $2, $3)
		on conflict (auction_id, party) do update
		set amount = refund_balances.amount + excluded.amount
	`, id, party, amount)
	return err
}

func (s *Store) publish(evt stream.Event) {
	if s.sink != nil {
		s.sink.Publish(evt)
	}
}

func trimmed(s string) string { return strings.TrimSpace(s) }
