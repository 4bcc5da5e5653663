package domain

import (
	"fmt"
	"time"
)

// Network identifies which chain environment to index.
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkTestnet Network = "testnet"
)

// Period is the statistics timeframe requested by the caller.
type Period string

const (
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
	PeriodYearly  Period = "yearly"
)

// Query identifies one indexing request.
type Query struct {
	Account string  `json:"account"`
	Network Network `json:"network"`
	Period  Period  `json:"period"`
}

// Validate checks the query fields before a session starts.
func (q Query) Validate() error {
	if q.Account == "" {
		return &ValidationError{Field: "account", Reason: "must not be empty"}
	}
	switch q.Network {
	case NetworkMainnet, NetworkTestnet:
	default:
		return &ValidationError{Field: "network", Reason: fmt.Sprintf("unknown network %q", q.Network)}
	}
	switch q.Period {
	case PeriodWeekly, PeriodMonthly, PeriodYearly:
	default:
		return &ValidationError{Field: "period", Reason: fmt.Sprintf("unknown period %q", q.Period)}
	}
	return nil
}

// CacheKey returns the stable cache key for this query's results.
func (q Query) CacheKey() string {
	return fmt.Sprintf("%s:%s:%s", q.Account, q.Network, q.Period)
}

// Window converts the period into a concrete time window ending at now.
func (q Query) Window(now time.Time) (start, end time.Time) {
	end = now
	switch q.Period {
	case PeriodWeekly:
		start = now.AddDate(0, 0, -7)
	case PeriodMonthly:
		start = now.AddDate(0, -1, 0)
	case PeriodYearly:
		start = now.AddDate(-1, 0, 0)
	default:
		start = now.AddDate(0, -1, 0)
	}
	return start, end
}
