package httpapi

import (
	"net/http"
	"time"

	"github.com/tejaswini232005/Decentralized-Auction-House/internal/identity"
)

type tokenRequest struct {
	Address string   `json:"address"`
	Roles   []string `json:"roles"`
	TTLSecs int64    `json:"ttl_seconds"`
}

// handleAuthToken issues a development token for the given address. Real
// deployments put an identity provider in front and disable this route.
func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Address == "" {
		writeError(w, r, http.StatusBadRequest, "address is required")
		return
	}
	ttl := time.Duration(req.TTLSecs) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	token, err := identity.GenerateToken(req.Address, req.Roles, ttl)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"token_type": "Bearer",
		"expires_in": int64(ttl / time.Second),
	})
}
