package models

import "github.com/shopspring/decimal"

// AllocationAttempt is the request body for one allocate call: any mix of
// chemical, glassware, and equipment sub-attempts applied to one request as
// a single all-or-nothing unit.
type AllocationAttempt struct {
	SourceLabID string                    `json:"source_lab_id"`
	Chemicals   []QuantityAttemptLine     `json:"chemicals"`
	Glassware   []QuantityAttemptLine     `json:"glassware"`
	Equipment   []EquipmentAttemptLine    `json:"equipment"`
}

// QuantityAttemptLine targets one chemical or glassware line by ID.
type QuantityAttemptLine struct {
	ExperimentID string          `json:"experiment_id"`
	LineID       string          `json:"line_id"`
	Quantity     decimal.Decimal `json:"quantity"`
}

// EquipmentAttemptLine targets one equipment line with a set of scanned
// physical item identifiers.
type EquipmentAttemptLine struct {
	ExperimentID string   `json:"experiment_id"`
	LineID       string   `json:"line_id"`
	ItemIDs      []string `json:"item_ids"`
}

// Empty reports whether the attempt carries no sub-attempts at all.
func (a *AllocationAttempt) Empty() bool {
	return len(a.Chemicals) == 0 && len(a.Glassware) == 0 && len(a.Equipment) == 0
}
