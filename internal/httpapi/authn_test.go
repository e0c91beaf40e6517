package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		name   string
		header string
		want   string
	}{
		{"well formed", "Bearer abc.def.ghi", "abc.def.ghi"},
		{"lowercase scheme", "bearer abc", "abc"},
		{"missing header", "", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz", ""},
		{"scheme only", "Bearer", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			if got := extractBearerToken(r); got != tc.want {
				t.Fatalf("extractBearerToken = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestIsPublic(t *testing.T) {
	cases := []struct {
		method string
		path   string
		want   bool
	}{
		{http.MethodGet, "/healthz", true},
		{http.MethodGet, "/metrics", true},
		{http.MethodPost, "/v1/auth/token", true},
		{http.MethodGet, "/v1/auctions", true},
		{http.MethodGet, "/v1/auctions/3/refunds/bob", true},
		{http.MethodGet, "/v1/policy", true},
		{http.MethodPost, "/v1/auctions", false},
		{http.MethodPost, "/v1/auctions/3/bids", false},
		{http.MethodPut, "/v1/policy/fee", false},
		{http.MethodPost, "/v1/policy/transfer-ownership", false},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(tc.method, tc.path, nil)
		if got := isPublic(r); got != tc.want {
			t.Errorf("isPublic(%s %s) = %v, want %v", tc.method, tc.path, got, tc.want)
		}
	}
}
