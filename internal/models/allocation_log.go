package models

import "time"

// AllocationLog is one append-only audit row recording who did what to a
// request or an equipment item. Written on every state-changing operation.
type AllocationLog struct {
	ID          int       `json:"id"`
	UserID      int       `json:"user_id"`
	ActionType  string    `json:"action_type"` // ALLOCATE, APPROVE, REJECT, COMPLETE, RELEASE, RETIRE
	RequestID   *string   `json:"request_id,omitempty"`
	ItemID      *string   `json:"item_id,omitempty"`
	Description string    `json:"description"`
	IPAddress   *string   `json:"ip_address,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
