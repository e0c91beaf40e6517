package httpapi

import (
	"net/http"

	"github.com/tejaswini232005/Decentralized-Auction-House/internal/identity"
)

type setFeeRequest struct {
	BasisPoints int64 `json:"basis_points"`
}

type transferOwnershipRequest struct {
	NewOwner string `json:"new_owner"`
}

func (a *API) handlePolicy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"owner":            a.policy.Owner(),
		"fee_basis_points": a.policy.FeeBasisPoints(),
	})
}

func (a *API) handlePolicyFee(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	caller, ok := identity.CallerFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var req setFeeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.policy.SetFeeRate(caller, req.BasisPoints); err != nil {
		a.writeAuctionError(w, r, err)
		return
	}
	a.audit(r.Context(), "policy.set_fee", "policy", "platform", map[string]string{
		"caller": caller,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"owner":            a.policy.Owner(),
		"fee_basis_points": a.policy.FeeBasisPoints(),
	})
}

func (a *API) handlePolicyOwnership(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	caller, ok := identity.CallerFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var req transferOwnershipRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.policy.TransferOwnership(caller, req.NewOwner); err != nil {
		a.writeAuctionError(w, r, err)
		return
	}
	a.audit(r.Context(), "policy.transfer_ownership", "policy", "platform", map[string]string{
		"previous_owner": caller,
		"new_owner":      req.NewOwner,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"owner":            a.policy.Owner(),
		"fee_basis_points": a.policy.FeeBasisPoints(),
	})
}
