package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"labstore-backend/internal/middleware"
	"labstore-backend/internal/models"
	"labstore-backend/internal/repositories"
	"labstore-backend/internal/services"
	"labstore-backend/pkg/utils"
)

type AllocationHandler struct {
	Service *services.AllocationService
	LogRepo *repositories.AllocationLogRepository
}

func NewAllocationHandler(s *services.AllocationService, logRepo *repositories.AllocationLogRepository) *AllocationHandler {
	return &AllocationHandler{Service: s, LogRepo: logRepo}
}

// Allocate applies one allocation attempt to a request. The whole attempt
// succeeds or fails as a unit; on failure the error body names the offending
// line or item.
func (h *AllocationHandler) Allocate(w http.ResponseWriter, r *http.Request) {
	requestID := mux.Vars(r)["id"]

	var attempt models.AllocationAttempt
	if err := json.NewDecoder(r.Body).Decode(&attempt); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	userID, _ := middleware.GetUserIDFromContext(r.Context())

	updated, err := h.Service.Allocate(r.Context(), requestID, &attempt, userID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	h.audit(r, requestID, userID, &attempt)

	utils.JSON(w, http.StatusOK, updated)
}

// ListAllocations returns the audit trail for one request, newest first
func (h *AllocationHandler) ListAllocations(w http.ResponseWriter, r *http.Request) {
	requestID := mux.Vars(r)["id"]

	if h.LogRepo == nil {
		utils.JSON(w, http.StatusOK, []models.AllocationLog{})
		return
	}

	entries, err := h.LogRepo.ListByRequest(r.Context(), requestID)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	if entries == nil {
		entries = []models.AllocationLog{}
	}

	utils.JSON(w, http.StatusOK, entries)
}

func (h *AllocationHandler) audit(r *http.Request, requestID string, userID int, attempt *models.AllocationAttempt) {
	if h.LogRepo == nil {
		return
	}

	items := 0
	for _, sub := range attempt.Equipment {
		items += len(sub.ItemIDs)
	}
	desc := fmt.Sprintf("allocated %d chemical, %d glassware line(s), %d equipment item(s)",
		len(attempt.Chemicals), len(attempt.Glassware), items)

	ip := getIPAddress(r)
	entry := &models.AllocationLog{
		UserID:      userID,
		ActionType:  "ALLOCATE",
		RequestID:   &requestID,
		Description: desc,
		IPAddress:   &ip,
	}
	if err := h.LogRepo.Create(r.Context(), entry); err != nil {
		log.Printf("[Allocation] Failed to write audit log for request %s: %v", requestID, err)
	}
}
