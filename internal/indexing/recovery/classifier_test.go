package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/tuanvle/txscope/internal/core/domain"
)

func badJSONError(t *testing.T) error {
	t.Helper()
	var v map[string]any
	err := json.Unmarshal([]byte(`{"records": [`), &v)
	if err == nil {
		t.Fatal("expected a JSON syntax error")
	}
	return err
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want domain.ErrorKind
	}{
		{
			name: "failed network fetch",
			err:  &url.Error{Op: "Get", URL: "https://api.example.com", Err: errors.New("dial tcp: connect: no route to host")},
			want: domain.ErrorKindNetwork,
		},
		{
			name: "malformed response body",
			err:  badJSONError(t),
			want: domain.ErrorKindParsing,
		},
		{
			name: "account not found",
			err:  errors.New("Account not found (404)"),
			want: domain.ErrorKindAPI,
		},
		{
			name: "rate limited",
			err:  errors.New("Rate limit exceeded (429), retry after 2s"),
			want: domain.ErrorKindAPI,
		},
		{
			name: "server error",
			err:  errors.New("Server error (500)"),
			want: domain.ErrorKindAPI,
		},
		{
			name: "timeout phrase",
			err:  errors.New("timeout waiting for step fetching_records after 30s"),
			want: domain.ErrorKindNetwork,
		},
		{
			name: "connection refused",
			err:  errors.New("connection refused"),
			want: domain.ErrorKindNetwork,
		},
		{
			name: "deadline exceeded",
			err:  fmt.Errorf("fetch page 3: %w", context.DeadlineExceeded),
			want: domain.ErrorKindNetwork,
		},
		{
			name: "validation error",
			err:  &domain.ValidationError{Field: "account", Reason: "must not be empty"},
			want: domain.ErrorKindValidation,
		},
		{
			name: "wrapped validation error",
			err:  fmt.Errorf("initializing: %w", &domain.ValidationError{Field: "period", Reason: "unknown"}),
			want: domain.ErrorKindValidation,
		},
		{
			name: "unknown error defaults to api",
			err:  errors.New("something unexpected"),
			want: domain.ErrorKindAPI,
		},
		{
			name: "nil defaults to api",
			err:  nil,
			want: domain.ErrorKindAPI,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	// Retryability is a pure function of kind, never of message content.
	retryable := map[domain.ErrorKind]bool{
		domain.ErrorKindAPI:        true,
		domain.ErrorKindNetwork:    true,
		domain.ErrorKindParsing:    false,
		domain.ErrorKindValidation: false,
	}

	for kind, want := range retryable {
		if got := IsRetryable(kind); got != want {
			t.Errorf("IsRetryable(%s) = %v, want %v", kind, got, want)
		}
	}
}
