package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Request lifecycle statuses. pending/approved/rejected are set by external
// commands; partially_fulfilled and fulfilled are derived from line state;
// completed is an explicit administrative close from fulfilled.
const (
	StatusPending            = "pending"
	StatusApproved           = "approved"
	StatusRejected           = "rejected"
	StatusPartiallyFulfilled = "partially_fulfilled"
	StatusFulfilled          = "fulfilled"
	StatusCompleted          = "completed"
)

// LabRequest is the aggregate root: one request with all its experiments and
// resource lines, persisted and versioned as a single unit of consistency.
type LabRequest struct {
	ID          string       `json:"id"`
	LabID       string       `json:"lab_id"`
	RequestedBy int          `json:"requested_by"`
	Status      string       `json:"status"`
	Experiments []Experiment `json:"experiments"` // insertion order mirrors the request form
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	Version     int64        `json:"version"`
}

type Experiment struct {
	ID             string          `json:"id"`
	ExperimentName string          `json:"experiment_name"`
	Chemicals      []ChemicalLine  `json:"chemicals"`
	EquipmentItems []EquipmentLine `json:"equipment_items"`
	Glassware      []GlasswareLine `json:"glassware"`
}

// QuantityAllocation is one fulfillment event against a quantity-fungible
// (chemical or glassware) line.
type QuantityAllocation struct {
	Quantity    decimal.Decimal `json:"quantity"`
	AllocatedBy int             `json:"allocated_by"`
	AllocatedAt time.Time       `json:"allocated_at"`
	SourceLabID string          `json:"source_lab_id"`
}

// ItemAllocation is one fulfillment event against an equipment line. Equipment
// is tracked by unique physical item identifier, never by bare count.
type ItemAllocation struct {
	ItemIDs     []string  `json:"item_ids"`
	AllocatedBy int       `json:"allocated_by"`
	AllocatedAt time.Time `json:"allocated_at"`
}

type ChemicalLine struct {
	ID                string               `json:"id"`
	ReferenceID       string               `json:"reference_id"`
	DisplayName       string               `json:"display_name"`
	Unit              string               `json:"unit"`
	RequestedQuantity decimal.Decimal      `json:"requested_quantity"`
	AllocationHistory []QuantityAllocation `json:"allocation_history"`
}

type GlasswareLine struct {
	ID                string               `json:"id"`
	ReferenceID       string               `json:"reference_id"`
	DisplayName       string               `json:"display_name"`
	Unit              string               `json:"unit"`
	RequestedQuantity decimal.Decimal      `json:"requested_quantity"`
	AllocationHistory []QuantityAllocation `json:"allocation_history"`
}

type EquipmentLine struct {
	ID                string           `json:"id"`
	Name              string           `json:"name"`
	Variant           string           `json:"variant"`
	RequestedQuantity int              `json:"requested_quantity"`
	AllocationHistory []ItemAllocation `json:"allocation_history"`
}

// CreateLabRequestRequest is the request body for submitting a new lab request.
// Line IDs are assigned server-side; callers supply catalog references only.
type CreateLabRequestRequest struct {
	LabID       string                   `json:"lab_id"`
	Experiments []CreateExperimentInput  `json:"experiments"`
}

type CreateExperimentInput struct {
	ExperimentName string                 `json:"experiment_name"`
	Chemicals      []CreateQuantityLine   `json:"chemicals"`
	EquipmentItems []CreateEquipmentLine  `json:"equipment_items"`
	Glassware      []CreateQuantityLine   `json:"glassware"`
}

type CreateQuantityLine struct {
	ReferenceID       string          `json:"reference_id"`
	DisplayName       string          `json:"display_name"`
	Unit              string          `json:"unit"`
	RequestedQuantity decimal.Decimal `json:"requested_quantity"`
}

type CreateEquipmentLine struct {
	Name              string `json:"name"`
	Variant           string `json:"variant"`
	RequestedQuantity int    `json:"requested_quantity"`
}
