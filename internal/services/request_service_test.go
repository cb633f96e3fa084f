package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labstore-backend/internal/models"
	"labstore-backend/internal/repositories/memory"
)

func validCreateInput() *models.CreateLabRequestRequest {
	return &models.CreateLabRequestRequest{
		LabID: "lab-7",
		Experiments: []models.CreateExperimentInput{
			{
				ExperimentName: "Acid titration",
				Chemicals: []models.CreateQuantityLine{
					{ReferenceID: "CH-HCL", DisplayName: "HCl 0.1M", Unit: "mL", RequestedQuantity: dec("100")},
				},
				EquipmentItems: []models.CreateEquipmentLine{
					{Name: "Burette", Variant: "50 mL", RequestedQuantity: 2},
				},
				Glassware: []models.CreateQuantityLine{
					{ReferenceID: "GL-FLASK", DisplayName: "Conical flask", Unit: "pcs", RequestedQuantity: dec("4")},
				},
			},
		},
	}
}

func TestCreateRequest(t *testing.T) {
	svc := NewRequestService(memory.NewRequestStore())
	ctx := context.Background()

	req, err := svc.CreateRequest(ctx, validCreateInput(), 3)
	require.NoError(t, err)

	assert.NotEmpty(t, req.ID)
	assert.Equal(t, models.StatusPending, req.Status)
	assert.Equal(t, 3, req.RequestedBy)
	assert.Equal(t, int64(1), req.Version)

	require.Len(t, req.Experiments, 1)
	exp := req.Experiments[0]
	assert.NotEmpty(t, exp.ID)
	require.Len(t, exp.Chemicals, 1)
	assert.NotEmpty(t, exp.Chemicals[0].ID)
	assert.Empty(t, exp.Chemicals[0].AllocationHistory)
	require.Len(t, exp.EquipmentItems, 1)
	require.Len(t, exp.Glassware, 1)

	// Stored, not just returned
	loaded, err := svc.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, loaded.ID)
}

func TestCreateRequestValidation(t *testing.T) {
	svc := NewRequestService(memory.NewRequestStore())
	ctx := context.Background()

	input := validCreateInput()
	input.LabID = ""
	_, err := svc.CreateRequest(ctx, input, 3)
	assert.Error(t, err)

	input = validCreateInput()
	input.Experiments = nil
	_, err = svc.CreateRequest(ctx, input, 3)
	assert.Error(t, err)

	input = validCreateInput()
	input.Experiments[0].ExperimentName = ""
	_, err = svc.CreateRequest(ctx, input, 3)
	assert.Error(t, err)
}

func TestCreateRequestNonPositiveQuantities(t *testing.T) {
	svc := NewRequestService(memory.NewRequestStore())
	ctx := context.Background()

	input := validCreateInput()
	input.Experiments[0].Chemicals[0].RequestedQuantity = dec("0")
	_, err := svc.CreateRequest(ctx, input, 3)
	assert.ErrorIs(t, err, models.ErrInvalidQuantity)

	input = validCreateInput()
	input.Experiments[0].EquipmentItems[0].RequestedQuantity = -1
	_, err = svc.CreateRequest(ctx, input, 3)
	assert.ErrorIs(t, err, models.ErrInvalidQuantity)

	input = validCreateInput()
	input.Experiments[0].Glassware[0].RequestedQuantity = dec("-2")
	_, err = svc.CreateRequest(ctx, input, 3)
	assert.ErrorIs(t, err, models.ErrInvalidQuantity)
}

func TestApproveAndRejectFromPending(t *testing.T) {
	store := memory.NewRequestStore()
	svc := NewRequestService(store)
	ctx := context.Background()

	seedRequest(t, store, "req-1", models.StatusPending)
	seedRequest(t, store, "req-2", models.StatusPending)

	approved, err := svc.ApproveRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, approved.Status)
	assert.Equal(t, int64(2), approved.Version)

	rejected, err := svc.RejectRequest(ctx, "req-2")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, rejected.Status)
}

func TestTransitionInvalidStates(t *testing.T) {
	store := memory.NewRequestStore()
	svc := NewRequestService(store)
	ctx := context.Background()

	seedRequest(t, store, "req-approved", models.StatusApproved)
	seedRequest(t, store, "req-rejected", models.StatusRejected)
	seedRequest(t, store, "req-pending", models.StatusPending)

	// Approve and reject only apply to pending requests
	_, err := svc.ApproveRequest(ctx, "req-approved")
	assert.ErrorIs(t, err, models.ErrInvalidState)
	_, err = svc.RejectRequest(ctx, "req-approved")
	assert.ErrorIs(t, err, models.ErrInvalidState)
	_, err = svc.ApproveRequest(ctx, "req-rejected")
	assert.ErrorIs(t, err, models.ErrInvalidState)

	// Complete requires fulfilled
	_, err = svc.CompleteRequest(ctx, "req-pending")
	assert.ErrorIs(t, err, models.ErrInvalidState)
	_, err = svc.CompleteRequest(ctx, "req-approved")
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestCompleteFromFulfilled(t *testing.T) {
	store := memory.NewRequestStore()
	svc := NewRequestService(store)
	ctx := context.Background()

	seedRequest(t, store, "req-1", models.StatusFulfilled)

	completed, err := svc.CompleteRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, completed.Status)

	// Completed is terminal
	_, err = svc.CompleteRequest(ctx, "req-1")
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestTransitionUnknownRequest(t *testing.T) {
	svc := NewRequestService(memory.NewRequestStore())

	_, err := svc.ApproveRequest(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestListRequestsFilters(t *testing.T) {
	store := memory.NewRequestStore()
	svc := NewRequestService(store)
	ctx := context.Background()

	seedRequest(t, store, "req-1", models.StatusPending)
	seedRequest(t, store, "req-2", models.StatusApproved)

	all, err := svc.ListRequests(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pending, err := svc.ListRequests(ctx, models.StatusPending, "")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "req-1", pending[0].ID)

	none, err := svc.ListRequests(ctx, "", "other-lab")
	require.NoError(t, err)
	assert.Empty(t, none)
}
