package filter

import (
	"time"

	"github.com/tuanvle/txscope/internal/core/domain"
)

// Window keeps records whose timestamp falls inside [start, end].
func Window(start, end time.Time) Filter {
	return FilterFunc(func(r domain.TransferRecord) bool {
		ts := time.Unix(int64(r.Timestamp), 0)
		return !ts.Before(start) && !ts.After(end)
	})
}

// ByKinds keeps records of the given transfer kinds.
func ByKinds(kinds ...domain.TransferKind) Filter {
	set := make(map[domain.TransferKind]struct{}, len(kinds))
	for _, k := range kinds {
		set[k] = struct{}{}
	}
	return FilterFunc(func(r domain.TransferRecord) bool {
		_, ok := set[r.Kind]
		return ok
	})
}
