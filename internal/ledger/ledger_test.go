package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labstore-backend/internal/models"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestRemainingChemical(t *testing.T) {
	line := &models.ChemicalLine{RequestedQuantity: dec("100")}
	assert.True(t, RemainingChemical(line).Equal(dec("100")))

	line.AllocationHistory = AppendQuantityAllocation(line.AllocationHistory, models.QuantityAllocation{Quantity: dec("40")})
	assert.True(t, RemainingChemical(line).Equal(dec("60")))

	line.AllocationHistory = AppendQuantityAllocation(line.AllocationHistory, models.QuantityAllocation{Quantity: dec("60")})
	assert.True(t, RemainingChemical(line).IsZero())
}

func TestRemainingChemicalDecimalPrecision(t *testing.T) {
	// 0.1 + 0.2 must leave exactly 0.7 of 1.0, no float drift
	line := &models.ChemicalLine{RequestedQuantity: dec("1.0")}
	line.AllocationHistory = AppendQuantityAllocation(line.AllocationHistory, models.QuantityAllocation{Quantity: dec("0.1")})
	line.AllocationHistory = AppendQuantityAllocation(line.AllocationHistory, models.QuantityAllocation{Quantity: dec("0.2")})
	assert.True(t, RemainingChemical(line).Equal(dec("0.7")))
}

func TestRemainingEquipment(t *testing.T) {
	line := &models.EquipmentLine{RequestedQuantity: 3}
	assert.Equal(t, 3, RemainingEquipment(line))

	line.AllocationHistory = AppendItemAllocation(line.AllocationHistory, models.ItemAllocation{ItemIDs: []string{"EQ-001", "EQ-002"}})
	assert.Equal(t, 1, RemainingEquipment(line))
	assert.Equal(t, 2, AllocatedItems(line))
}

func TestHistoryContainsItem(t *testing.T) {
	line := &models.EquipmentLine{RequestedQuantity: 4}
	line.AllocationHistory = AppendItemAllocation(line.AllocationHistory, models.ItemAllocation{ItemIDs: []string{"EQ-001"}})
	line.AllocationHistory = AppendItemAllocation(line.AllocationHistory, models.ItemAllocation{ItemIDs: []string{"EQ-002", "EQ-003"}})

	assert.True(t, HistoryContainsItem(line, "EQ-001"))
	assert.True(t, HistoryContainsItem(line, "EQ-003"))
	assert.False(t, HistoryContainsItem(line, "EQ-004"))
}

func newTestRequest(status string) *models.LabRequest {
	return &models.LabRequest{
		ID:     "req-1",
		Status: status,
		Experiments: []models.Experiment{
			{
				ID:             "exp-1",
				ExperimentName: "Titration",
				Chemicals: []models.ChemicalLine{
					{ID: "chem-1", DisplayName: "HCl", Unit: "mL", RequestedQuantity: dec("100")},
				},
				EquipmentItems: []models.EquipmentLine{
					{ID: "equip-1", Name: "Burette", RequestedQuantity: 2},
				},
			},
		},
	}
}

func TestDeriveStatusPassThrough(t *testing.T) {
	for _, status := range []string{models.StatusPending, models.StatusRejected, models.StatusCompleted} {
		req := newTestRequest(status)
		assert.Equal(t, status, DeriveStatus(req))
	}
}

func TestDeriveStatusApprovedNoAllocations(t *testing.T) {
	req := newTestRequest(models.StatusApproved)
	assert.Equal(t, models.StatusApproved, DeriveStatus(req))
}

func TestDeriveStatusPartiallyFulfilled(t *testing.T) {
	req := newTestRequest(models.StatusApproved)
	chem := &req.Experiments[0].Chemicals[0]
	chem.AllocationHistory = AppendQuantityAllocation(chem.AllocationHistory, models.QuantityAllocation{Quantity: dec("40")})

	assert.Equal(t, models.StatusPartiallyFulfilled, DeriveStatus(req))
}

func TestDeriveStatusFulfilled(t *testing.T) {
	req := newTestRequest(models.StatusApproved)
	chem := &req.Experiments[0].Chemicals[0]
	chem.AllocationHistory = AppendQuantityAllocation(chem.AllocationHistory, models.QuantityAllocation{Quantity: dec("100")})
	equip := &req.Experiments[0].EquipmentItems[0]
	equip.AllocationHistory = AppendItemAllocation(equip.AllocationHistory, models.ItemAllocation{ItemIDs: []string{"EQ-001", "EQ-002"}})

	assert.Equal(t, models.StatusFulfilled, DeriveStatus(req))
}

func TestDeriveStatusEquipmentOutstandingBlocksFulfilled(t *testing.T) {
	req := newTestRequest(models.StatusApproved)
	chem := &req.Experiments[0].Chemicals[0]
	chem.AllocationHistory = AppendQuantityAllocation(chem.AllocationHistory, models.QuantityAllocation{Quantity: dec("100")})

	// Chemical satisfied but equipment line still has remaining
	assert.Equal(t, models.StatusPartiallyFulfilled, DeriveStatus(req))
}

func TestFindHelpers(t *testing.T) {
	req := newTestRequest(models.StatusApproved)

	exp := FindExperiment(req, "exp-1")
	require.NotNil(t, exp)
	assert.Equal(t, "Titration", exp.ExperimentName)
	assert.Nil(t, FindExperiment(req, "missing"))

	require.NotNil(t, FindChemicalLine(exp, "chem-1"))
	assert.Nil(t, FindChemicalLine(exp, "missing"))

	require.NotNil(t, FindEquipmentLine(exp, "equip-1"))
	assert.Nil(t, FindEquipmentLine(exp, "missing"))

	assert.Nil(t, FindGlasswareLine(exp, "missing"))
}
