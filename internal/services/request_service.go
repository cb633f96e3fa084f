package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"labstore-backend/internal/models"
)

// RequestService handles the request lifecycle around the allocation engine:
// creation in pending, the external approve/reject transitions (accepted at
// face value, never derived), and the administrative fulfilled → completed
// close.
type RequestService struct {
	Store RequestStore
}

func NewRequestService(store RequestStore) *RequestService {
	return &RequestService{Store: store}
}

// CreateRequest builds a new pending aggregate from the submitted form.
// Experiment and line IDs are assigned here; experiment order is preserved.
func (s *RequestService) CreateRequest(ctx context.Context, req *models.CreateLabRequestRequest, userID int) (*models.LabRequest, error) {
	if req.LabID == "" {
		return nil, errors.New("lab_id is required")
	}
	if len(req.Experiments) == 0 {
		return nil, errors.New("at least one experiment is required")
	}

	now := time.Now().UTC()
	aggregate := &models.LabRequest{
		ID:          uuid.NewString(),
		LabID:       req.LabID,
		RequestedBy: userID,
		Status:      models.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}

	for _, expInput := range req.Experiments {
		if expInput.ExperimentName == "" {
			return nil, errors.New("experiment_name is required")
		}
		exp := models.Experiment{
			ID:             uuid.NewString(),
			ExperimentName: expInput.ExperimentName,
		}
		for _, c := range expInput.Chemicals {
			if c.RequestedQuantity.LessThanOrEqual(decimal.Zero) {
				return nil, models.ErrInvalidQuantity
			}
			exp.Chemicals = append(exp.Chemicals, models.ChemicalLine{
				ID:                uuid.NewString(),
				ReferenceID:       c.ReferenceID,
				DisplayName:       c.DisplayName,
				Unit:              c.Unit,
				RequestedQuantity: c.RequestedQuantity,
			})
		}
		for _, e := range expInput.EquipmentItems {
			if e.RequestedQuantity <= 0 {
				return nil, models.ErrInvalidQuantity
			}
			exp.EquipmentItems = append(exp.EquipmentItems, models.EquipmentLine{
				ID:                uuid.NewString(),
				Name:              e.Name,
				Variant:           e.Variant,
				RequestedQuantity: e.RequestedQuantity,
			})
		}
		for _, g := range expInput.Glassware {
			if g.RequestedQuantity.LessThanOrEqual(decimal.Zero) {
				return nil, models.ErrInvalidQuantity
			}
			exp.Glassware = append(exp.Glassware, models.GlasswareLine{
				ID:                uuid.NewString(),
				ReferenceID:       g.ReferenceID,
				DisplayName:       g.DisplayName,
				Unit:              g.Unit,
				RequestedQuantity: g.RequestedQuantity,
			})
		}
		aggregate.Experiments = append(aggregate.Experiments, exp)
	}

	if err := s.Store.Create(ctx, aggregate); err != nil {
		return nil, err
	}
	return aggregate, nil
}

// GetRequest retrieves one aggregate.
func (s *RequestService) GetRequest(ctx context.Context, id string) (*models.LabRequest, error) {
	return s.Store.Load(ctx, id)
}

// ListRequests lists aggregates, optionally filtered by status and lab.
func (s *RequestService) ListRequests(ctx context.Context, status, labID string) ([]models.LabRequest, error) {
	return s.Store.List(ctx, status, labID)
}

// ApproveRequest transitions pending → approved.
func (s *RequestService) ApproveRequest(ctx context.Context, id string) (*models.LabRequest, error) {
	return s.transition(ctx, id, models.StatusApproved, models.StatusPending)
}

// RejectRequest transitions pending → rejected. Rejected is terminal: no
// further allocation is accepted. Line-level rejection does not exist; only
// the whole request can be rejected.
func (s *RequestService) RejectRequest(ctx context.Context, id string) (*models.LabRequest, error) {
	return s.transition(ctx, id, models.StatusRejected, models.StatusPending)
}

// CompleteRequest is the explicit administrative close from fulfilled. It is
// never derived automatically.
func (s *RequestService) CompleteRequest(ctx context.Context, id string) (*models.LabRequest, error) {
	return s.transition(ctx, id, models.StatusCompleted, models.StatusFulfilled)
}

// transition applies an externally commanded status change under the same
// optimistic-concurrency discipline as allocation.
func (s *RequestService) transition(ctx context.Context, id, to string, from ...string) (*models.LabRequest, error) {
	for try := 0; try < maxSaveRetries; try++ {
		req, err := s.Store.Load(ctx, id)
		if err != nil {
			return nil, err
		}

		allowed := false
		for _, f := range from {
			if req.Status == f {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, models.ErrInvalidState
		}

		req.Status = to
		req.UpdatedAt = time.Now().UTC()

		err = s.Store.Save(ctx, req, req.Version)
		if err == nil {
			req.Version++
			return req, nil
		}
		if !errors.Is(err, models.ErrVersionConflict) {
			return nil, err
		}
	}
	return nil, models.ErrContention
}
