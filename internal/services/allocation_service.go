package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"labstore-backend/internal/ledger"
	"labstore-backend/internal/metrics"
	"labstore-backend/internal/models"
)

// maxSaveRetries bounds the optimistic-concurrency retry loop. A conflicting
// writer on the same request forces a reload-and-revalidate; after this many
// conflicts the caller gets models.ErrContention and may retry from scratch.
const maxSaveRetries = 3

// RequestStore checks aggregates in and out under optimistic concurrency.
// Save must be a single atomic compare-and-swap on the version field.
type RequestStore interface {
	Load(ctx context.Context, id string) (*models.LabRequest, error)
	Save(ctx context.Context, req *models.LabRequest, expectedVersion int64) error
	Create(ctx context.Context, req *models.LabRequest) error
	List(ctx context.Context, status, labID string) ([]models.LabRequest, error)
}

// ItemRegistry is the single source of truth for physical-item custody.
// Reserve must be atomic per item ID: no two concurrent reserves of one item
// may both succeed.
type ItemRegistry interface {
	Reserve(ctx context.Context, itemID, requestID, experimentID string) error
	Release(ctx context.Context, itemID string) error
	Get(ctx context.Context, itemID string) (*models.EquipmentItem, error)
}

// AllocationService validates and applies allocation attempts against one
// LabRequest aggregate. It is the sole writer of allocation truth.
type AllocationService struct {
	Store    RequestStore
	Registry ItemRegistry
}

func NewAllocationService(store RequestStore, registry ItemRegistry) *AllocationService {
	return &AllocationService{Store: store, Registry: registry}
}

// Allocate applies one allocation attempt to one request as a single logical
// transaction: every sub-attempt succeeds or none do. Equipment reservations
// made in the registry survive a version conflict (the retry recognises them
// as its own and does not re-reserve) but are released on any terminal
// failure.
func (s *AllocationService) Allocate(ctx context.Context, requestID string, attempt *models.AllocationAttempt, userID int) (*models.LabRequest, error) {
	if attempt.Empty() {
		return nil, models.ErrInvalidQuantity
	}

	// reserved tracks every item this operation has locked in the registry,
	// across save-retries, so a terminal failure can roll all of them back.
	reserved := make(map[string]bool)

	updated, err := s.allocateWithRetry(ctx, requestID, attempt, userID, reserved)
	if err != nil {
		s.releaseAll(ctx, reserved)
		metrics.AllocationsTotal.WithLabelValues(outcomeLabel(err)).Inc()
		return nil, err
	}

	metrics.AllocationsTotal.WithLabelValues("ok").Inc()
	return updated, nil
}

func (s *AllocationService) allocateWithRetry(ctx context.Context, requestID string, attempt *models.AllocationAttempt, userID int, reserved map[string]bool) (*models.LabRequest, error) {
	for try := 0; try < maxSaveRetries; try++ {
		if try > 0 {
			metrics.AllocationRetriesTotal.Inc()
		}

		req, err := s.Store.Load(ctx, requestID)
		if err != nil {
			return nil, err
		}

		if req.Status != models.StatusApproved && req.Status != models.StatusPartiallyFulfilled {
			return nil, models.ErrInvalidState
		}

		if err := s.applyAttempt(ctx, req, attempt, userID, reserved); err != nil {
			return nil, err
		}

		req.Status = ledger.DeriveStatus(req)
		req.UpdatedAt = time.Now().UTC()

		err = s.Store.Save(ctx, req, req.Version)
		if err == nil {
			req.Version++
			return req, nil
		}
		if !errors.Is(err, models.ErrVersionConflict) {
			return nil, err
		}
		// Another writer got in first. Reload and revalidate against the
		// fresh aggregate; registry reservations stay in place.
		log.Printf("[Allocation] Version conflict on request %s, retrying (%d/%d)", requestID, try+1, maxSaveRetries)
	}
	return nil, models.ErrContention
}

// applyAttempt validates the whole attempt against the freshly loaded
// aggregate and, only after everything passes, appends the allocation
// history entries. Validation order follows the all-or-nothing contract:
// quantity checks and duplicate checks happen before any registry reserve.
func (s *AllocationService) applyAttempt(ctx context.Context, req *models.LabRequest, attempt *models.AllocationAttempt, userID int, reserved map[string]bool) error {
	now := time.Now().UTC()

	type chemTarget struct {
		line  *models.ChemicalLine
		entry models.QuantityAllocation
	}
	type glassTarget struct {
		line  *models.GlasswareLine
		entry models.QuantityAllocation
	}
	type equipTarget struct {
		line         *models.EquipmentLine
		experimentID string
		entry        models.ItemAllocation
	}

	var chems []chemTarget
	var glasses []glassTarget
	var equips []equipTarget

	// An attempt may name the same line more than once. Quantities accepted
	// earlier in this attempt count against remaining, so the sub-attempts
	// cannot overshoot a line between them.
	pendingChem := make(map[*models.ChemicalLine]decimal.Decimal)
	pendingGlass := make(map[*models.GlasswareLine]decimal.Decimal)
	pendingItems := make(map[*models.EquipmentLine]int)

	for _, sub := range attempt.Chemicals {
		exp := ledger.FindExperiment(req, sub.ExperimentID)
		if exp == nil {
			return &models.LineError{ExperimentID: sub.ExperimentID, LineID: sub.LineID, Err: models.ErrLineNotFound}
		}
		line := ledger.FindChemicalLine(exp, sub.LineID)
		if line == nil {
			return &models.LineError{ExperimentID: sub.ExperimentID, LineID: sub.LineID, Err: models.ErrLineNotFound}
		}
		if sub.Quantity.LessThanOrEqual(decimal.Zero) {
			return &models.LineError{ExperimentID: sub.ExperimentID, LineID: sub.LineID, Err: models.ErrInvalidQuantity}
		}
		if sub.Quantity.GreaterThan(ledger.RemainingChemical(line).Sub(pendingChem[line])) {
			return &models.LineError{ExperimentID: sub.ExperimentID, LineID: sub.LineID, Err: models.ErrOverAllocation}
		}
		pendingChem[line] = pendingChem[line].Add(sub.Quantity)
		chems = append(chems, chemTarget{line, models.QuantityAllocation{
			Quantity:    sub.Quantity,
			AllocatedBy: userID,
			AllocatedAt: now,
			SourceLabID: attempt.SourceLabID,
		}})
	}

	for _, sub := range attempt.Glassware {
		exp := ledger.FindExperiment(req, sub.ExperimentID)
		if exp == nil {
			return &models.LineError{ExperimentID: sub.ExperimentID, LineID: sub.LineID, Err: models.ErrLineNotFound}
		}
		line := ledger.FindGlasswareLine(exp, sub.LineID)
		if line == nil {
			return &models.LineError{ExperimentID: sub.ExperimentID, LineID: sub.LineID, Err: models.ErrLineNotFound}
		}
		if sub.Quantity.LessThanOrEqual(decimal.Zero) {
			return &models.LineError{ExperimentID: sub.ExperimentID, LineID: sub.LineID, Err: models.ErrInvalidQuantity}
		}
		if sub.Quantity.GreaterThan(ledger.RemainingGlassware(line).Sub(pendingGlass[line])) {
			return &models.LineError{ExperimentID: sub.ExperimentID, LineID: sub.LineID, Err: models.ErrOverAllocation}
		}
		pendingGlass[line] = pendingGlass[line].Add(sub.Quantity)
		glasses = append(glasses, glassTarget{line, models.QuantityAllocation{
			Quantity:    sub.Quantity,
			AllocatedBy: userID,
			AllocatedAt: now,
			SourceLabID: attempt.SourceLabID,
		}})
	}

	// Duplicate checks span the whole attempt, not just one line: the same
	// scanned tag listed twice anywhere in the call is a caller error.
	seen := make(map[string]bool)
	for _, sub := range attempt.Equipment {
		exp := ledger.FindExperiment(req, sub.ExperimentID)
		if exp == nil {
			return &models.LineError{ExperimentID: sub.ExperimentID, LineID: sub.LineID, Err: models.ErrLineNotFound}
		}
		line := ledger.FindEquipmentLine(exp, sub.LineID)
		if line == nil {
			return &models.LineError{ExperimentID: sub.ExperimentID, LineID: sub.LineID, Err: models.ErrLineNotFound}
		}
		if len(sub.ItemIDs) == 0 {
			return &models.LineError{ExperimentID: sub.ExperimentID, LineID: sub.LineID, Err: models.ErrInvalidQuantity}
		}
		for _, itemID := range sub.ItemIDs {
			if itemID == "" {
				return &models.ItemError{ItemID: itemID, Err: models.ErrUnknownItem}
			}
			if seen[itemID] {
				return &models.ItemError{ItemID: itemID, Err: models.ErrDuplicateItemID}
			}
			seen[itemID] = true
			if ledger.HistoryContainsItem(line, itemID) {
				return &models.ItemError{ItemID: itemID, Err: models.ErrDuplicateItemID}
			}
		}
		if len(sub.ItemIDs) > ledger.RemainingEquipment(line)-pendingItems[line] {
			return &models.LineError{ExperimentID: sub.ExperimentID, LineID: sub.LineID, Err: models.ErrOverAllocation}
		}
		pendingItems[line] += len(sub.ItemIDs)
		equips = append(equips, equipTarget{line, sub.ExperimentID, models.ItemAllocation{
			ItemIDs:     append([]string(nil), sub.ItemIDs...),
			AllocatedBy: userID,
			AllocatedAt: now,
		}})
	}

	// Reserve physical items last, after all validation passed. A failed
	// reserve aborts the attempt; items reserved earlier in it are rolled
	// back by the caller via releaseAll. Items already reserved by this
	// operation (a previous try that hit a version conflict) are skipped,
	// which is what makes the save-retry loop safe.
	for _, t := range equips {
		for _, itemID := range t.entry.ItemIDs {
			if reserved[itemID] {
				continue
			}
			if err := s.Registry.Reserve(ctx, itemID, req.ID, t.experimentID); err != nil {
				return &models.ItemError{ItemID: itemID, Err: err}
			}
			reserved[itemID] = true
		}
	}

	for _, t := range chems {
		t.line.AllocationHistory = ledger.AppendQuantityAllocation(t.line.AllocationHistory, t.entry)
	}
	for _, t := range glasses {
		t.line.AllocationHistory = ledger.AppendQuantityAllocation(t.line.AllocationHistory, t.entry)
	}
	for _, t := range equips {
		t.line.AllocationHistory = ledger.AppendItemAllocation(t.line.AllocationHistory, t.entry)
	}

	return nil
}

// releaseAll is the compensating rollback: every item this operation managed
// to reserve goes back to available when the attempt fails terminally.
func (s *AllocationService) releaseAll(ctx context.Context, reserved map[string]bool) {
	for itemID := range reserved {
		if err := s.Registry.Release(ctx, itemID); err != nil {
			log.Printf("[Allocation] Failed to release item %s during rollback: %v", itemID, err)
		}
	}
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrLineNotFound):
		return "not_found"
	case errors.Is(err, models.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, models.ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, models.ErrOverAllocation):
		return "over_allocation"
	case errors.Is(err, models.ErrDuplicateItemID):
		return "duplicate_item"
	case errors.Is(err, models.ErrAlreadyAllocated):
		return "already_allocated"
	case errors.Is(err, models.ErrUnknownItem):
		return "unknown_item"
	case errors.Is(err, models.ErrContention):
		return "contention"
	default:
		return "error"
	}
}
