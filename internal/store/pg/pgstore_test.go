package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/tejaswini232005/Decentralized-Auction-House/internal/auction"
	"github.com/tejaswini232005/Decentralized-Auction-House/internal/funds"
	"github.com/tejaswini232005/Decentralized-Auction-House/internal/policy"
)

var testTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T, transferor funds.Transferor) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	pol, err := policy.New("platform", 250)
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	store := New(db, auction.Config{Policy: pol, Transferor: transferor})
	return store, mock
}

func auctionRow(id uint64, seller string, startingPrice, currentBid int64, bidder string, endTime time.Time, active, settled bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "seller", "item_name", "item_description", "starting_price",
		"current_bid", "current_bidder", "created_at", "end_time", "active", "settled",
	}).AddRow(id, seller, "clock", "", startingPrice, currentBid, bidder, testTime, endTime, active, settled)
}

func TestGetNotFound(t *testing.T) {
	store, mock := newMockStore(t, funds.NewRecorder())
	mock.ExpectQuery(`select (.+) from auctions where id=\$1`).
		WithArgs(uint64(9)).
		WillReturnError(sql.ErrNoRows)

	if _, err := store.Get(context.Background(), 9); !errors.Is(err, auction.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGetReturnsRecord(t *testing.T) {
	store, mock := newMockStore(t, funds.NewRecorder())
	end := testTime.Add(time.Hour)
	mock.ExpectQuery(`select (.+) from auctions where id=\$1`).
		WithArgs(uint64(2)).
		WillReturnRows(auctionRow(2, "alice", 100, 150, "bob", end, true, false))

	a, err := store.Get(context.Background(), 2)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a.ID != 2 || a.Seller != "alice" || a.CurrentBid != 150 || a.CurrentBidder != "bob" {
		t.Fatalf("unexpected auction: %+v", a)
	}
	if !a.Open(testTime) {
		t.Fatalf("auction should be open at %v", testTime)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRefundBalanceUnknownKeyReadsZero(t *testing.T) {
	store, mock := newMockStore(t, funds.NewRecorder())
	mock.ExpectQuery(`select 1 from auctions where id=\$1`).
		WithArgs(uint64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery(`select amount from refund_balances`).
		WithArgs(uint64(1), "nobody").
		WillReturnError(sql.ErrNoRows)

	bal, err := store.RefundBalance(context.Background(), 1, "nobody")
	if err != nil {
		t.Fatalf("refund balance: %v", err)
	}
	if bal != 0 {
		t.Fatalf("balance = %d, want 0", bal)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestWithdrawNothingToWithdraw(t *testing.T) {
	store, mock := newMockStore(t, funds.NewRecorder())
	mock.ExpectBegin()
	mock.ExpectQuery(`select 1 from auctions where id=\$1`).
		WithArgs(uint64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery(`select amount from refund_balances`).
		WithArgs(uint64(1), "bob").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	if _, err := store.WithdrawRefund(context.Background(), 1, "bob"); !errors.Is(err, auction.ErrNothingToWithdraw) {
		t.Fatalf("got %v, want ErrNothingToWithdraw", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestWithdrawZerosBalanceBeforeTransfer(t *testing.T) {
	recorder := funds.NewRecorder()
	store, mock := newMockStore(t, recorder)

	mock.ExpectBegin()
	mock.ExpectQuery(`select 1 from auctions where id=\$1`).
		WithArgs(uint64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery(`select amount from refund_balances`).
		WithArgs(uint64(1), "bob").
		WillReturnRows(sqlmock.NewRows([]string{"amount"}).AddRow(int64(500)))
	mock.ExpectExec(`delete from refund_balances`).
		WithArgs(uint64(1), "bob").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	paid, err := store.WithdrawRefund(context.Background(), 1, "bob")
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if paid != 500 {
		t.Fatalf("paid %d, want 500", paid)
	}
	if got := recorder.TotalTo("bob"); got != 500 {
		t.Fatalf("transferred %d, want 500", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestWithdrawRecreditsWhenTransferFails(t *testing.T) {
	failing := funds.TransferorFunc(func(ctx context.Context, to string, amount int64, ref string) error {
		return funds.ErrTransferFailed
	})
	store, mock := newMockStore(t, failing)

	mock.ExpectBegin()
	mock.ExpectQuery(`select 1 from auctions where id=\$1`).
		WithArgs(uint64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery(`select amount from refund_balances`).
		WithArgs(uint64(1), "bob").
		WillReturnRows(sqlmock.NewRows([]string{"amount"}).AddRow(int64(500)))
	mock.ExpectExec(`delete from refund_balances`).
		WithArgs(uint64(1), "bob").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	// Compensation path restores the balance.
	mock.ExpectExec(`insert into refund_balances`).
		WithArgs(uint64(1), "bob", int64(500)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if _, err := store.WithdrawRefund(context.Background(), 1, "bob"); !errors.Is(err, auction.ErrTransferFailed) {
		t.Fatalf("got %v, want ErrTransferFailed", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSettleMarksBeforePayouts(t *testing.T) {
	recorder := funds.NewRecorder()
	store, mock := newMockStore(t, recorder)
	end := testTime.Add(-time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery(`select (.+) from auctions where id=\$1 for update`).
		WithArgs(uint64(0)).
		WillReturnRows(auctionRow(0, "seller", 100, 10000, "bob", end, true, false))
	mock.ExpectExec(`update auctions set active = false, settled = true`).
		WithArgs(uint64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := store.Settle(context.Background(), 0, testTime)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if res.Winner != "bob" || res.FinalPrice != 10000 {
		t.Fatalf("unexpected settlement: %+v", res)
	}
	if res.Fee != 250 || res.SellerAmount != 9750 {
		t.Fatalf("unexpected split: %+v", res)
	}
	if got := recorder.TotalTo("seller"); got != 9750 {
		t.Fatalf("seller received %d, want 9750", got)
	}
	if got := recorder.TotalTo("platform"); got != 250 {
		t.Fatalf("platform received %d, want 250", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSettleAlreadySettled(t *testing.T) {
	store, mock := newMockStore(t, funds.NewRecorder())
	end := testTime.Add(-time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery(`select (.+) from auctions where id=\$1 for update`).
		WithArgs(uint64(0)).
		WillReturnRows(auctionRow(0, "seller", 100, 10000, "bob", end, false, true))
	mock.ExpectRollback()

	if _, err := store.Settle(context.Background(), 0, testTime); !errors.Is(err, auction.ErrAlreadySettled) {
		t.Fatalf("got %v, want ErrAlreadySettled", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPlaceBidCreditsPreviousBidder(t *testing.T) {
	store, mock := newMockStore(t, funds.NewRecorder())
	end := testTime.Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(`select (.+) from auctions where id=\$1 for update`).
		WithArgs(uint64(0)).
		WillReturnRows(auctionRow(0, "seller", 100, 150, "bob", end, true, false))
	mock.ExpectExec(`insert into refund_balances`).
		WithArgs(uint64(0), "bob", int64(150)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`update auctions set current_bid`).
		WithArgs(uint64(0), int64(200), "carol").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	a, err := store.PlaceBid(context.Background(), 0, "carol", 200, testTime)
	if err != nil {
		t.Fatalf("place bid: %v", err)
	}
	if a.CurrentBid != 200 || a.CurrentBidder != "carol" {
		t.Fatalf("unexpected state: %+v", a)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPlaceBidRejectsTie(t *testing.T) {
	store, mock := newMockStore(t, funds.NewRecorder())
	end := testTime.Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(`select (.+) from auctions where id=\$1 for update`).
		WithArgs(uint64(0)).
		WillReturnRows(auctionRow(0, "seller", 100, 150, "bob", end, true, false))
	mock.ExpectRollback()

	if _, err := store.PlaceBid(context.Background(), 0, "carol", 150, testTime); !errors.Is(err, auction.ErrBidNotHighEnough) {
		t.Fatalf("got %v, want ErrBidNotHighEnough", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
