package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tejaswini232005/Decentralized-Auction-House/internal/auction"
	"github.com/tejaswini232005/Decentralized-Auction-House/internal/identity"
	"github.com/tejaswini232005/Decentralized-Auction-House/internal/policy"
)

type createAuctionRequest struct {
	ItemName        string `json:"item_name"`
	ItemDescription string `json:"item_description"`
	StartingPrice   int64  `json:"starting_price"`
	DurationSeconds int64  `json:"duration_seconds"`
}

type placeBidRequest struct {
	Amount int64 `json:"amount"`
}

func (a *API) handleAuctionsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createAuction(w, r)
	case http.MethodGet:
		a.listActiveAuctions(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) createAuction(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity.CallerFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var req createAuctionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	created, err := a.svc.Create(r.Context(), caller, req.ItemName, req.ItemDescription,
		req.StartingPrice, time.Duration(req.DurationSeconds)*time.Second, a.clock())
	if err != nil {
		a.writeAuctionError(w, r, err)
		return
	}
	a.audit(r.Context(), "auction.create", "auction", strconv.FormatUint(created.ID, 10), map[string]string{
		"seller": created.Seller,
		"item":   created.ItemName,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/auctions/%d", created.ID))
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) listActiveAuctions(w http.ResponseWriter, r *http.Request) {
	now := a.clock()
	items, err := a.svc.ListActive(r.Context(), now)
	if err != nil {
		a.writeAuctionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"as_of": now.UTC().Format(time.RFC3339),
	})
}

// handleAuctionResource routes /v1/auctions/{id} and its sub-resources.
func (a *API) handleAuctionResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/auctions/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, r, http.StatusNotFound, "auction id is required")
		return
	}
	id, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "auction id must be a non-negative integer")
		return
	}

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.getAuction(w, r, id)
	case len(parts) == 2 && parts[1] == "time-remaining":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.timeRemaining(w, r, id)
	case len(parts) == 2 && parts[1] == "bids":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.placeBid(w, r, id)
	case len(parts) == 2 && parts[1] == "settle":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.settleAuction(w, r, id)
	case len(parts) == 2 && parts[1] == "withdraw":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.withdrawRefund(w, r, id)
	case len(parts) == 3 && parts[1] == "refunds":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.refundBalance(w, r, id, parts[2])
	default:
		writeError(w, r, http.StatusNotFound, "unknown auction resource")
	}
}

func (a *API) getAuction(w http.ResponseWriter, r *http.Request, id uint64) {
	got, err := a.svc.Get(r.Context(), id)
	if err != nil {
		a.writeAuctionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, got)
}

func (a *API) timeRemaining(w http.ResponseWriter, r *http.Request, id uint64) {
	now := a.clock()
	remaining, err := a.svc.TimeRemaining(r.Context(), id, now)
	if err != nil {
		a.writeAuctionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"auction_id":        id,
		"remaining_seconds": int64(remaining / time.Second),
		"as_of":             now.UTC().Format(time.RFC3339),
	})
}

func (a *API) placeBid(w http.ResponseWriter, r *http.Request, id uint64) {
	caller, ok := identity.CallerFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var req placeBidRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := a.svc.PlaceBid(r.Context(), id, caller, req.Amount, a.clock())
	if err != nil {
		a.writeAuctionError(w, r, err)
		return
	}
	a.audit(r.Context(), "auction.bid", "auction", strconv.FormatUint(id, 10), map[string]string{
		"bidder": caller,
		"amount": strconv.FormatInt(req.Amount, 10),
	})
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) settleAuction(w http.ResponseWriter, r *http.Request, id uint64) {
	result, err := a.svc.Settle(r.Context(), id, a.clock())
	if err != nil {
		a.writeAuctionError(w, r, err)
		return
	}
	a.audit(r.Context(), "auction.settle", "auction", strconv.FormatUint(id, 10), map[string]string{
		"winner":      result.Winner,
		"final_price": strconv.FormatInt(result.FinalPrice, 10),
	})
	writeJSON(w, http.StatusOK, result)
}

func (a *API) withdrawRefund(w http.ResponseWriter, r *http.Request, id uint64) {
	caller, ok := identity.CallerFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	amount, err := a.svc.WithdrawRefund(r.Context(), id, caller)
	if err != nil {
		a.writeAuctionError(w, r, err)
		return
	}
	a.audit(r.Context(), "auction.withdraw", "auction", strconv.FormatUint(id, 10), map[string]string{
		"party":  caller,
		"amount": strconv.FormatInt(amount, 10),
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"auction_id": id,
		"party":      caller,
		"amount":     amount,
	})
}

func (a *API) refundBalance(w http.ResponseWriter, r *http.Request, id uint64, party string) {
	amount, err := a.svc.RefundBalance(r.Context(), id, party)
	if err != nil {
		a.writeAuctionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"auction_id": id,
		"party":      party,
		"amount":     amount,
	})
}

// writeAuctionError maps the engine's error taxonomy onto HTTP statuses.
// Conflicts are state the caller can re-check; ErrTransferFailed means the
// outbound payment leg failed and the call may be retried.
func (a *API) writeAuctionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auction.ErrInvalidInput) || errors.Is(err, policy.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auction.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, policy.ErrUnauthorized):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, auction.ErrAuctionClosed),
		errors.Is(err, auction.ErrAuctionStillActive),
		errors.Is(err, auction.ErrSellerBid),
		errors.Is(err, auction.ErrBidTooLow),
		errors.Is(err, auction.ErrBidNotHighEnough),
		errors.Is(err, auction.ErrAlreadySettled),
		errors.Is(err, auction.ErrNothingToWithdraw):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auction.ErrTransferFailed):
		writeError(w, r, http.StatusBadGateway, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
