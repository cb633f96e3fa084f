// Package ledger holds the pure, side-effect-free arithmetic over a
// LabRequest aggregate already loaded in memory: allocated/remaining
// quantities derived from append-only allocation history, and status
// derivation. Nothing here locks or touches storage; the aggregate is
// only ever mutated while checked out under the repository's version lock.
package ledger

import (
	"github.com/shopspring/decimal"

	"labstore-backend/internal/models"
)

// AllocatedQuantity sums the allocation history of a quantity-fungible line.
func AllocatedQuantity(history []models.QuantityAllocation) decimal.Decimal {
	total := decimal.Zero
	for _, a := range history {
		total = total.Add(a.Quantity)
	}
	return total
}

// RemainingChemical returns requested minus allocated for a chemical line.
func RemainingChemical(line *models.ChemicalLine) decimal.Decimal {
	return line.RequestedQuantity.Sub(AllocatedQuantity(line.AllocationHistory))
}

// RemainingGlassware returns requested minus allocated for a glassware line.
func RemainingGlassware(line *models.GlasswareLine) decimal.Decimal {
	return line.RequestedQuantity.Sub(AllocatedQuantity(line.AllocationHistory))
}

// AllocatedItems counts the item identifiers recorded across an equipment
// line's history.
func AllocatedItems(line *models.EquipmentLine) int {
	n := 0
	for _, a := range line.AllocationHistory {
		n += len(a.ItemIDs)
	}
	return n
}

// RemainingEquipment returns requested minus allocated item count.
func RemainingEquipment(line *models.EquipmentLine) int {
	return line.RequestedQuantity - AllocatedItems(line)
}

// HistoryContainsItem reports whether itemID already appears anywhere in the
// line's allocation history. The multiset of recorded item IDs must never
// contain duplicates.
func HistoryContainsItem(line *models.EquipmentLine, itemID string) bool {
	for _, a := range line.AllocationHistory {
		for _, id := range a.ItemIDs {
			if id == itemID {
				return true
			}
		}
	}
	return false
}

// AppendQuantityAllocation appends a fulfillment event to a chemical or
// glassware line. The caller must already have validated that the entry does
// not push remaining below zero.
func AppendQuantityAllocation(history []models.QuantityAllocation, entry models.QuantityAllocation) []models.QuantityAllocation {
	return append(history, entry)
}

// AppendItemAllocation appends a fulfillment event to an equipment line.
// Validation (no duplicates, within remaining) is the caller's job.
func AppendItemAllocation(history []models.ItemAllocation, entry models.ItemAllocation) []models.ItemAllocation {
	return append(history, entry)
}

// DeriveStatus recomputes a request's lifecycle status from its lines.
// pending and rejected are external transitions and pass through unchanged,
// as does the administrative completed state. Otherwise: all lines satisfied
// → fulfilled; any allocation at all → partially_fulfilled; else approved.
func DeriveStatus(req *models.LabRequest) string {
	switch req.Status {
	case models.StatusPending, models.StatusRejected, models.StatusCompleted:
		return req.Status
	}

	allSatisfied := true
	anyAllocated := false

	for i := range req.Experiments {
		exp := &req.Experiments[i]
		for j := range exp.Chemicals {
			alloc := AllocatedQuantity(exp.Chemicals[j].AllocationHistory)
			if alloc.GreaterThan(decimal.Zero) {
				anyAllocated = true
			}
			if alloc.LessThan(exp.Chemicals[j].RequestedQuantity) {
				allSatisfied = false
			}
		}
		for j := range exp.Glassware {
			alloc := AllocatedQuantity(exp.Glassware[j].AllocationHistory)
			if alloc.GreaterThan(decimal.Zero) {
				anyAllocated = true
			}
			if alloc.LessThan(exp.Glassware[j].RequestedQuantity) {
				allSatisfied = false
			}
		}
		for j := range exp.EquipmentItems {
			alloc := AllocatedItems(&exp.EquipmentItems[j])
			if alloc > 0 {
				anyAllocated = true
			}
			if alloc < exp.EquipmentItems[j].RequestedQuantity {
				allSatisfied = false
			}
		}
	}

	if allSatisfied {
		return models.StatusFulfilled
	}
	if anyAllocated {
		return models.StatusPartiallyFulfilled
	}
	return models.StatusApproved
}

// FindExperiment locates an experiment by ID within the aggregate.
func FindExperiment(req *models.LabRequest, experimentID string) *models.Experiment {
	for i := range req.Experiments {
		if req.Experiments[i].ID == experimentID {
			return &req.Experiments[i]
		}
	}
	return nil
}

// FindChemicalLine locates a chemical line by ID within an experiment.
func FindChemicalLine(exp *models.Experiment, lineID string) *models.ChemicalLine {
	for i := range exp.Chemicals {
		if exp.Chemicals[i].ID == lineID {
			return &exp.Chemicals[i]
		}
	}
	return nil
}

// FindGlasswareLine locates a glassware line by ID within an experiment.
func FindGlasswareLine(exp *models.Experiment, lineID string) *models.GlasswareLine {
	for i := range exp.Glassware {
		if exp.Glassware[i].ID == lineID {
			return &exp.Glassware[i]
		}
	}
	return nil
}

// FindEquipmentLine locates an equipment line by ID within an experiment.
func FindEquipmentLine(exp *models.Experiment, lineID string) *models.EquipmentLine {
	for i := range exp.EquipmentItems {
		if exp.EquipmentItems[i].ID == lineID {
			return &exp.EquipmentItems[i]
		}
	}
	return nil
}
