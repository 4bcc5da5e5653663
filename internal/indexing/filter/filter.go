package filter

import "github.com/tuanvle/txscope/internal/core/domain"

// Filter decides whether a transfer record stays in the working set.
type Filter interface {
	// Keep reports whether the record passes the filter
	Keep(r domain.TransferRecord) bool
}

// FilterFunc adapts a function to the Filter interface.
type FilterFunc func(r domain.TransferRecord) bool

func (f FilterFunc) Keep(r domain.TransferRecord) bool { return f(r) }

// Apply returns the records passing every filter, preserving order.
func Apply(records []domain.TransferRecord, filters ...Filter) []domain.TransferRecord {
	out := make([]domain.TransferRecord, 0, len(records))
next:
	for _, r := range records {
		for _, f := range filters {
			if !f.Keep(r) {
				continue next
			}
		}
		out = append(out, r)
	}
	return out
}
