package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"

	"github.com/tuanvle/txscope/internal/core/domain"
)

// Classify maps an arbitrary error to exactly one ErrorKind. It is total:
// any input, including nil, yields a kind and never panics. Unrecognized
// errors land in the api_error bucket.
func Classify(err error) domain.ErrorKind {
	if err == nil {
		return domain.ErrorKindAPI
	}

	// Typed checks first: these are unambiguous regardless of message text.
	var vErr *domain.ValidationError
	if errors.As(err, &vErr) {
		return domain.ErrorKindValidation
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return domain.ErrorKindNetwork
	}

	var synErr *json.SyntaxError
	if errors.As(err, &synErr) {
		return domain.ErrorKindParsing
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return domain.ErrorKindParsing
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrorKindNetwork
	}

	s := err.Error()
	sLower := strings.ToLower(s)

	// HTTP status markers and known upstream phrases.
	if strings.Contains(s, "404") || strings.Contains(s, "429") || strings.Contains(s, "500") ||
		strings.Contains(sLower, "rate limit") ||
		strings.Contains(sLower, "server error") ||
		strings.Contains(sLower, "account not found") {
		return domain.ErrorKindAPI
	}

	// Timeout and connectivity phrases.
	if strings.Contains(sLower, "timeout") || strings.Contains(sLower, "timed out") ||
		strings.Contains(sLower, "connection refused") ||
		strings.Contains(sLower, "connection reset") ||
		strings.Contains(sLower, "network") ||
		strings.Contains(sLower, "connection") {
		return domain.ErrorKindNetwork
	}

	return domain.ErrorKindAPI
}

// IsRetryable reports whether blind re-execution has a reasonable chance of
// succeeding for this kind. Malformed data and invalid input never do.
func IsRetryable(kind domain.ErrorKind) bool {
	switch kind {
	case domain.ErrorKindAPI, domain.ErrorKindNetwork:
		return true
	default:
		return false
	}
}
