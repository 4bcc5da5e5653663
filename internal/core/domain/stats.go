package domain

import "time"

// AccountStats is the aggregated result of one indexing session.
type AccountStats struct {
	ID            string         `json:"id"`
	Account       string         `json:"account"`
	Network       Network        `json:"network"`
	Period        Period         `json:"period"`
	WindowStart   time.Time      `json:"window_start"`
	WindowEnd     time.Time      `json:"window_end"`
	TransferCount int            `json:"transfer_count"`
	IncomingCount int            `json:"incoming_count"`
	OutgoingCount int            `json:"outgoing_count"`
	TotalVolume   float64        `json:"total_volume"`
	Categories    map[string]int `json:"categories"`
	ContractCalls int            `json:"contract_calls"`
	Complete      bool           `json:"complete"` // false for degraded partial stats
	GeneratedAt   time.Time      `json:"generated_at"`
}

// VolumeSummary is the intermediate output of the aggregation step.
type VolumeSummary struct {
	Total    float64 `json:"total"`
	Incoming int     `json:"incoming"`
	Outgoing int     `json:"outgoing"`
}

// PartialArtifacts collects whatever each completed step produced, so a
// halted session can still surface usable data.
type PartialArtifacts struct {
	Records       []TransferRecord `json:"-"`
	Filtered      []TransferRecord `json:"-"`
	Volume        *VolumeSummary   `json:"volume,omitempty"`
	Categories    map[string]int   `json:"categories,omitempty"`
	ContractCalls *int             `json:"contract_calls,omitempty"`
	Stats         *AccountStats    `json:"stats,omitempty"`
}
