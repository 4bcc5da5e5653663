package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/tuanvle/txscope/internal/core/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, APIKey: "test-key"})
}

func TestClient_FetchPage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-API-Key"); got != "test-key" {
			t.Errorf("missing api key header, got %q", got)
		}
		if !strings.Contains(r.URL.Path, "/v1/mainnet/accounts/0xabc/transfers") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("page"); got != "2" {
			t.Errorf("expected page=2, got %q", got)
		}
		if got := r.URL.Query().Get("limit"); got != "50" {
			t.Errorf("expected limit=50, got %q", got)
		}
		json.NewEncoder(w).Encode(Page{
			Records: []domain.TransferRecord{
				{TxHash: "0x1", Value: "1.5", Kind: domain.TransferKindNative},
			},
			Page:         2,
			TotalPages:   4,
			TotalRecords: 200,
		})
	})

	page, err := client.FetchPage(context.Background(), "0xabc", domain.NetworkMainnet, 2, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.TotalPages != 4 {
		t.Errorf("expected 4 total pages, got %d", page.TotalPages)
	}
	if len(page.Records) != 1 || page.Records[0].TxHash != "0x1" {
		t.Errorf("unexpected records: %+v", page.Records)
	}
}

func TestClient_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	err := client.AccountExists(context.Background(), "0xmissing", domain.NetworkMainnet)
	if err == nil {
		t.Fatal("expected error for missing account")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("404 marker missing from error: %v", err)
	}
	if !strings.Contains(strings.ToLower(err.Error()), "account not found") {
		t.Errorf("error message must name the missing account condition: %v", err)
	}
}

func TestClient_RateLimited(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.FetchPage(context.Background(), "0xabc", domain.NetworkMainnet, 1, 100)
	if err == nil {
		t.Fatal("expected rate limit error")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("429 marker missing from error: %v", err)
	}
	if !strings.Contains(err.Error(), "30") {
		t.Errorf("retry-after value missing from error: %v", err)
	}
}

func TestClient_ServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.FetchPage(context.Background(), "0xabc", domain.NetworkMainnet, 1, 100)
	if err == nil {
		t.Fatal("expected server error")
	}
	if !strings.Contains(err.Error(), "503") {
		t.Errorf("status code missing from error: %v", err)
	}
}

func TestClient_MalformedJSON(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"records": [`)
	})

	_, err := client.FetchPage(context.Background(), "0xabc", domain.NetworkMainnet, 1, 100)
	if err == nil {
		t.Fatal("expected decode error")
	}
	// The json error type survives wrapping so the classifier can see it.
	var syntaxErr *json.SyntaxError
	if !errors.As(err, &syntaxErr) {
		t.Errorf("expected wrapped *json.SyntaxError, got %T: %v", err, err)
	}
}

func TestClient_TransportErrorSurfacesAsURLError(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1"})

	_, err := client.FetchPage(context.Background(), "0xabc", domain.NetworkMainnet, 1, 100)
	if err == nil {
		t.Fatal("expected transport error")
	}
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		t.Errorf("expected *url.Error, got %T: %v", err, err)
	}
}
