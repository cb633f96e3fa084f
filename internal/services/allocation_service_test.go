package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labstore-backend/internal/ledger"
	"labstore-backend/internal/models"
	"labstore-backend/internal/repositories/memory"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// seedRequest stores an approved request with one chemical line (100 mL) and
// one equipment line (quantity 2) under fixed IDs.
func seedRequest(t *testing.T, store RequestStore, id, status string) {
	t.Helper()
	now := time.Now().UTC()
	req := &models.LabRequest{
		ID:          id,
		LabID:       "lab-7",
		RequestedBy: 1,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
		Experiments: []models.Experiment{
			{
				ID:             "exp-1",
				ExperimentName: "Acid titration",
				Chemicals: []models.ChemicalLine{
					{ID: "chem-1", ReferenceID: "CH-HCL", DisplayName: "HCl 0.1M", Unit: "mL", RequestedQuantity: dec("100")},
				},
				EquipmentItems: []models.EquipmentLine{
					{ID: "equip-1", Name: "Burette", Variant: "50 mL", RequestedQuantity: 2},
				},
			},
		},
	}
	require.NoError(t, store.Create(context.Background(), req))
}

func registerItems(t *testing.T, registry *memory.ItemRegistry, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, registry.Register(context.Background(), &models.EquipmentItem{
			ItemID: id, Name: "Burette", Variant: "50 mL",
		}))
	}
}

func chemAttempt(qty string) *models.AllocationAttempt {
	return &models.AllocationAttempt{
		SourceLabID: "store",
		Chemicals:   []models.QuantityAttemptLine{{ExperimentID: "exp-1", LineID: "chem-1", Quantity: dec(qty)}},
	}
}

func equipAttempt(itemIDs ...string) *models.AllocationAttempt {
	return &models.AllocationAttempt{
		SourceLabID: "store",
		Equipment:   []models.EquipmentAttemptLine{{ExperimentID: "exp-1", LineID: "equip-1", ItemIDs: itemIDs}},
	}
}

func TestAllocateChemicalPartialThenFulfilled(t *testing.T) {
	store := memory.NewRequestStore()
	registry := memory.NewItemRegistry()
	svc := NewAllocationService(store, registry)
	ctx := context.Background()

	seedRequest(t, store, "req-1", models.StatusApproved)
	registerItems(t, registry, "EQ-001", "EQ-002")

	updated, err := svc.Allocate(ctx, "req-1", chemAttempt("40"), 9)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPartiallyFulfilled, updated.Status)
	assert.True(t, ledger.RemainingChemical(&updated.Experiments[0].Chemicals[0]).Equal(dec("60")))

	// Satisfy the equipment line too, then the chemical remainder
	_, err = svc.Allocate(ctx, "req-1", equipAttempt("EQ-001", "EQ-002"), 9)
	require.NoError(t, err)

	updated, err = svc.Allocate(ctx, "req-1", chemAttempt("60"), 9)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFulfilled, updated.Status)
	assert.True(t, ledger.RemainingChemical(&updated.Experiments[0].Chemicals[0]).IsZero())

	// Fulfilled requests accept no further allocation
	_, err = svc.Allocate(ctx, "req-1", chemAttempt("1"), 9)
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestAllocateOverAllocation(t *testing.T) {
	store := memory.NewRequestStore()
	svc := NewAllocationService(store, memory.NewItemRegistry())
	ctx := context.Background()

	seedRequest(t, store, "req-1", models.StatusApproved)

	_, err := svc.Allocate(ctx, "req-1", chemAttempt("40"), 9)
	require.NoError(t, err)

	_, err = svc.Allocate(ctx, "req-1", chemAttempt("61"), 9)
	assert.ErrorIs(t, err, models.ErrOverAllocation)

	// The failed attempt must not have touched the aggregate
	req, err := store.Load(ctx, "req-1")
	require.NoError(t, err)
	assert.True(t, ledger.RemainingChemical(&req.Experiments[0].Chemicals[0]).Equal(dec("60")))
}

func TestAllocateEquipmentThenAlreadyAllocated(t *testing.T) {
	store := memory.NewRequestStore()
	registry := memory.NewItemRegistry()
	svc := NewAllocationService(store, registry)
	ctx := context.Background()

	seedRequest(t, store, "req-1", models.StatusApproved)
	seedRequest(t, store, "req-2", models.StatusApproved)
	registerItems(t, registry, "EQ-001", "EQ-002")

	updated, err := svc.Allocate(ctx, "req-1", equipAttempt("EQ-001", "EQ-002"), 9)
	require.NoError(t, err)
	assert.Equal(t, 0, ledger.RemainingEquipment(&updated.Experiments[0].EquipmentItems[0]))

	item, err := registry.Get(ctx, "EQ-001")
	require.NoError(t, err)
	assert.Equal(t, models.ItemAllocated, item.State)
	require.NotNil(t, item.HolderRequestID)
	assert.Equal(t, "req-1", *item.HolderRequestID)

	// A second request cannot take an item already out
	_, err = svc.Allocate(ctx, "req-2", equipAttempt("EQ-001"), 9)
	assert.ErrorIs(t, err, models.ErrAlreadyAllocated)

	var itemErr *models.ItemError
	require.ErrorAs(t, err, &itemErr)
	assert.Equal(t, "EQ-001", itemErr.ItemID)
}

func TestAllocateConcurrentSameItemExactlyOneWins(t *testing.T) {
	store := memory.NewRequestStore()
	registry := memory.NewItemRegistry()
	svc := NewAllocationService(store, registry)
	ctx := context.Background()

	seedRequest(t, store, "req-1", models.StatusApproved)
	seedRequest(t, store, "req-2", models.StatusApproved)
	registerItems(t, registry, "EQ-010")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{"req-1", "req-2"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = svc.Allocate(ctx, id, equipAttempt("EQ-010"), 9)
		}(i, id)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, models.ErrAlreadyAllocated)
		}
	}
	assert.Equal(t, 1, successes)

	item, err := registry.Get(ctx, "EQ-010")
	require.NoError(t, err)
	assert.Equal(t, models.ItemAllocated, item.State)
}

func TestAllocateInvalidQuantityNoMutation(t *testing.T) {
	store := memory.NewRequestStore()
	svc := NewAllocationService(store, memory.NewItemRegistry())
	ctx := context.Background()

	seedRequest(t, store, "req-1", models.StatusApproved)

	for _, qty := range []string{"0", "-5"} {
		_, err := svc.Allocate(ctx, "req-1", chemAttempt(qty), 9)
		assert.ErrorIs(t, err, models.ErrInvalidQuantity)
	}

	req, err := store.Load(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, req.Status)
	assert.Empty(t, req.Experiments[0].Chemicals[0].AllocationHistory)
	assert.Equal(t, int64(1), req.Version)
}

func TestAllocateRejectedRequest(t *testing.T) {
	store := memory.NewRequestStore()
	svc := NewAllocationService(store, memory.NewItemRegistry())

	seedRequest(t, store, "req-1", models.StatusRejected)

	_, err := svc.Allocate(context.Background(), "req-1", chemAttempt("10"), 9)
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestAllocateEmptyAttempt(t *testing.T) {
	store := memory.NewRequestStore()
	svc := NewAllocationService(store, memory.NewItemRegistry())

	seedRequest(t, store, "req-1", models.StatusApproved)

	_, err := svc.Allocate(context.Background(), "req-1", &models.AllocationAttempt{}, 9)
	assert.ErrorIs(t, err, models.ErrInvalidQuantity)
}

func TestAllocateUnknownRequest(t *testing.T) {
	svc := NewAllocationService(memory.NewRequestStore(), memory.NewItemRegistry())

	_, err := svc.Allocate(context.Background(), "missing", chemAttempt("10"), 9)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAllocateLineNotFound(t *testing.T) {
	store := memory.NewRequestStore()
	svc := NewAllocationService(store, memory.NewItemRegistry())

	seedRequest(t, store, "req-1", models.StatusApproved)

	attempt := &models.AllocationAttempt{
		Chemicals: []models.QuantityAttemptLine{{ExperimentID: "exp-1", LineID: "missing", Quantity: dec("10")}},
	}
	_, err := svc.Allocate(context.Background(), "req-1", attempt, 9)
	assert.ErrorIs(t, err, models.ErrLineNotFound)

	var lineErr *models.LineError
	require.ErrorAs(t, err, &lineErr)
	assert.Equal(t, "missing", lineErr.LineID)

	attempt = &models.AllocationAttempt{
		Chemicals: []models.QuantityAttemptLine{{ExperimentID: "missing", LineID: "chem-1", Quantity: dec("10")}},
	}
	_, err = svc.Allocate(context.Background(), "req-1", attempt, 9)
	assert.ErrorIs(t, err, models.ErrLineNotFound)
}

func TestAllocateDuplicateItemWithinAttempt(t *testing.T) {
	store := memory.NewRequestStore()
	registry := memory.NewItemRegistry()
	svc := NewAllocationService(store, registry)
	ctx := context.Background()

	seedRequest(t, store, "req-1", models.StatusApproved)
	registerItems(t, registry, "EQ-001")

	_, err := svc.Allocate(ctx, "req-1", equipAttempt("EQ-001", "EQ-001"), 9)
	assert.ErrorIs(t, err, models.ErrDuplicateItemID)

	// Nothing was reserved
	item, err := registry.Get(ctx, "EQ-001")
	require.NoError(t, err)
	assert.Equal(t, models.ItemAvailable, item.State)
}

func TestAllocateDuplicateItemAgainstHistory(t *testing.T) {
	store := memory.NewRequestStore()
	registry := memory.NewItemRegistry()
	svc := NewAllocationService(store, registry)
	ctx := context.Background()

	seedRequest(t, store, "req-1", models.StatusApproved)
	registerItems(t, registry, "EQ-001", "EQ-002")

	_, err := svc.Allocate(ctx, "req-1", equipAttempt("EQ-001"), 9)
	require.NoError(t, err)

	// Releasing the physical item does not blank its history entry; the same
	// tag can never be recorded twice on one line
	require.NoError(t, registry.Release(ctx, "EQ-001"))

	_, err = svc.Allocate(ctx, "req-1", equipAttempt("EQ-001"), 9)
	assert.ErrorIs(t, err, models.ErrDuplicateItemID)
}

func TestAllocateRollbackReleasesReservedItems(t *testing.T) {
	store := memory.NewRequestStore()
	registry := memory.NewItemRegistry()
	svc := NewAllocationService(store, registry)
	ctx := context.Background()

	seedRequest(t, store, "req-1", models.StatusApproved)
	registerItems(t, registry, "EQ-001")

	// EQ-404 was never registered: the reserve fails after EQ-001 was taken,
	// and the compensating release must put EQ-001 back
	_, err := svc.Allocate(ctx, "req-1", equipAttempt("EQ-001", "EQ-404"), 9)
	assert.ErrorIs(t, err, models.ErrUnknownItem)

	item, err := registry.Get(ctx, "EQ-001")
	require.NoError(t, err)
	assert.Equal(t, models.ItemAvailable, item.State)

	req, err := store.Load(ctx, "req-1")
	require.NoError(t, err)
	assert.Empty(t, req.Experiments[0].EquipmentItems[0].AllocationHistory)
}

func TestAllocateRepeatedChemicalLineInOneAttempt(t *testing.T) {
	store := memory.NewRequestStore()
	svc := NewAllocationService(store, memory.NewItemRegistry())
	ctx := context.Background()

	seedRequest(t, store, "req-1", models.StatusApproved)

	// Two sub-attempts of 60 on a 100 mL line overshoot together even though
	// each one fits on its own
	attempt := &models.AllocationAttempt{
		SourceLabID: "store",
		Chemicals: []models.QuantityAttemptLine{
			{ExperimentID: "exp-1", LineID: "chem-1", Quantity: dec("60")},
			{ExperimentID: "exp-1", LineID: "chem-1", Quantity: dec("60")},
		},
	}
	_, err := svc.Allocate(ctx, "req-1", attempt, 9)
	assert.ErrorIs(t, err, models.ErrOverAllocation)

	req, err := store.Load(ctx, "req-1")
	require.NoError(t, err)
	assert.Empty(t, req.Experiments[0].Chemicals[0].AllocationHistory)
	assert.True(t, ledger.RemainingChemical(&req.Experiments[0].Chemicals[0]).Equal(dec("100")))

	// Repeated sub-attempts that fit together still pass
	attempt = &models.AllocationAttempt{
		SourceLabID: "store",
		Chemicals: []models.QuantityAttemptLine{
			{ExperimentID: "exp-1", LineID: "chem-1", Quantity: dec("60")},
			{ExperimentID: "exp-1", LineID: "chem-1", Quantity: dec("40")},
		},
	}
	updated, err := svc.Allocate(ctx, "req-1", attempt, 9)
	require.NoError(t, err)
	assert.Len(t, updated.Experiments[0].Chemicals[0].AllocationHistory, 2)
	assert.True(t, ledger.RemainingChemical(&updated.Experiments[0].Chemicals[0]).IsZero())
}

func TestAllocateRepeatedEquipmentLineInOneAttempt(t *testing.T) {
	store := memory.NewRequestStore()
	registry := memory.NewItemRegistry()
	svc := NewAllocationService(store, registry)
	ctx := context.Background()

	seedRequest(t, store, "req-1", models.StatusApproved)
	registerItems(t, registry, "EQ-001", "EQ-002", "EQ-003", "EQ-004")

	// Two sub-attempts of 2 items each against a 2-unit line
	attempt := &models.AllocationAttempt{
		SourceLabID: "store",
		Equipment: []models.EquipmentAttemptLine{
			{ExperimentID: "exp-1", LineID: "equip-1", ItemIDs: []string{"EQ-001", "EQ-002"}},
			{ExperimentID: "exp-1", LineID: "equip-1", ItemIDs: []string{"EQ-003", "EQ-004"}},
		},
	}
	_, err := svc.Allocate(ctx, "req-1", attempt, 9)
	assert.ErrorIs(t, err, models.ErrOverAllocation)

	// Nothing was reserved or recorded
	for _, itemID := range []string{"EQ-001", "EQ-002", "EQ-003", "EQ-004"} {
		item, err := registry.Get(ctx, itemID)
		require.NoError(t, err)
		assert.Equal(t, models.ItemAvailable, item.State)
	}
	req, err := store.Load(ctx, "req-1")
	require.NoError(t, err)
	assert.Empty(t, req.Experiments[0].EquipmentItems[0].AllocationHistory)
	assert.Equal(t, 2, ledger.RemainingEquipment(&req.Experiments[0].EquipmentItems[0]))
}

func TestAllocateMixedAttemptIsAtomic(t *testing.T) {
	store := memory.NewRequestStore()
	registry := memory.NewItemRegistry()
	svc := NewAllocationService(store, registry)
	ctx := context.Background()

	seedRequest(t, store, "req-1", models.StatusApproved)
	registerItems(t, registry, "EQ-001")

	// Valid chemical sub-attempt plus an over-allocating equipment one:
	// neither may be applied
	attempt := &models.AllocationAttempt{
		SourceLabID: "store",
		Chemicals:   []models.QuantityAttemptLine{{ExperimentID: "exp-1", LineID: "chem-1", Quantity: dec("10")}},
		Equipment:   []models.EquipmentAttemptLine{{ExperimentID: "exp-1", LineID: "equip-1", ItemIDs: []string{"EQ-001", "EQ-002", "EQ-003"}}},
	}
	_, err := svc.Allocate(ctx, "req-1", attempt, 9)
	assert.ErrorIs(t, err, models.ErrOverAllocation)

	req, err := store.Load(ctx, "req-1")
	require.NoError(t, err)
	assert.Empty(t, req.Experiments[0].Chemicals[0].AllocationHistory)
	assert.Equal(t, models.StatusApproved, req.Status)
}

// conflictOnceStore simulates a concurrent writer winning the race exactly
// once: the first Save bumps the stored version out from under the caller.
type conflictOnceStore struct {
	*memory.RequestStore
	mu         sync.Mutex
	conflicted bool
}

func (s *conflictOnceStore) Save(ctx context.Context, req *models.LabRequest, expectedVersion int64) error {
	s.mu.Lock()
	first := !s.conflicted
	s.conflicted = true
	s.mu.Unlock()

	if first {
		other, err := s.RequestStore.Load(ctx, req.ID)
		if err != nil {
			return err
		}
		if err := s.RequestStore.Save(ctx, other, other.Version); err != nil {
			return err
		}
	}
	return s.RequestStore.Save(ctx, req, expectedVersion)
}

func TestAllocateRetriesOnVersionConflict(t *testing.T) {
	store := &conflictOnceStore{RequestStore: memory.NewRequestStore()}
	registry := memory.NewItemRegistry()
	svc := NewAllocationService(store, registry)
	ctx := context.Background()

	seedRequest(t, store.RequestStore, "req-1", models.StatusApproved)
	registerItems(t, registry, "EQ-001")

	updated, err := svc.Allocate(ctx, "req-1", equipAttempt("EQ-001"), 9)
	require.NoError(t, err)

	// Exactly one history entry despite the retry: the second pass skipped
	// the reserve it already held
	assert.Len(t, updated.Experiments[0].EquipmentItems[0].AllocationHistory, 1)

	item, err := registry.Get(ctx, "EQ-001")
	require.NoError(t, err)
	assert.Equal(t, models.ItemAllocated, item.State)
}

// alwaysConflictStore refuses every save.
type alwaysConflictStore struct {
	*memory.RequestStore
}

func (s *alwaysConflictStore) Save(ctx context.Context, req *models.LabRequest, expectedVersion int64) error {
	return models.ErrVersionConflict
}

func TestAllocateContentionReleasesReservations(t *testing.T) {
	store := &alwaysConflictStore{RequestStore: memory.NewRequestStore()}
	registry := memory.NewItemRegistry()
	svc := NewAllocationService(store, registry)
	ctx := context.Background()

	seedRequest(t, store.RequestStore, "req-1", models.StatusApproved)
	registerItems(t, registry, "EQ-001")

	_, err := svc.Allocate(ctx, "req-1", equipAttempt("EQ-001"), 9)
	assert.ErrorIs(t, err, models.ErrContention)

	// Terminal failure rolled the reservation back
	item, err := registry.Get(ctx, "EQ-001")
	require.NoError(t, err)
	assert.Equal(t, models.ItemAvailable, item.State)
}
