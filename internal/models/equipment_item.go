package models

import "time"

// Equipment item custody states. available → allocated → available (on
// return) → retired. An allocated item cannot be reserved by any other line.
const (
	ItemAvailable = "available"
	ItemAllocated = "allocated"
	ItemRetired   = "retired"
)

// EquipmentItem is one row of the global item registry: a unique physical
// equipment unit identified by an externally supplied (scanned) tag.
type EquipmentItem struct {
	ItemID             string     `json:"item_id"`
	Name               string     `json:"name"`
	Variant            string     `json:"variant"`
	State              string     `json:"state"`
	HolderRequestID    *string    `json:"holder_request_id,omitempty"`
	HolderExperimentID *string    `json:"holder_experiment_id,omitempty"`
	RegisteredAt       time.Time  `json:"registered_at"`
	AllocatedAt        *time.Time `json:"allocated_at,omitempty"`
	ReturnedAt         *time.Time `json:"returned_at,omitempty"`
	RetiredAt          *time.Time `json:"retired_at,omitempty"`
}

// RegisterItemRequest is the request body for pre-registering a scanned item
// tag. Item IDs arrive as already-decoded strings from the QR collaborator.
type RegisterItemRequest struct {
	ItemID  string `json:"item_id"`
	Name    string `json:"name"`
	Variant string `json:"variant"`
}
