package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"labstore-backend/internal/middleware"
	"labstore-backend/internal/models"
	"labstore-backend/internal/repositories"
	"labstore-backend/internal/services"
	"labstore-backend/pkg/utils"
)

type EquipmentItemHandler struct {
	Service *services.ItemService
	LogRepo *repositories.AllocationLogRepository
}

func NewEquipmentItemHandler(s *services.ItemService, logRepo *repositories.AllocationLogRepository) *EquipmentItemHandler {
	return &EquipmentItemHandler{Service: s, LogRepo: logRepo}
}

// RegisterItem pre-registers a scanned tag as an available physical unit
func (h *EquipmentItemHandler) RegisterItem(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	item, err := h.Service.RegisterItem(r.Context(), &req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	utils.JSON(w, http.StatusCreated, item)
}

// ListItems lists registry entries, optionally filtered by ?state=
func (h *EquipmentItemHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Service.ListItems(r.Context(), r.URL.Query().Get("state"))
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	if items == nil {
		items = []models.EquipmentItem{}
	}

	utils.JSON(w, http.StatusOK, items)
}

// GetItem returns one registry entry
func (h *EquipmentItemHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["itemId"]

	item, err := h.Service.GetItem(r.Context(), itemID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	utils.JSON(w, http.StatusOK, item)
}

// ReleaseItem records a physical return: allocated → available
func (h *EquipmentItemHandler) ReleaseItem(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["itemId"]

	if err := h.Service.ReleaseItem(r.Context(), itemID); err != nil {
		writeEngineError(w, err)
		return
	}

	h.audit(r, "RELEASE", itemID)

	item, err := h.Service.GetItem(r.Context(), itemID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	utils.JSON(w, http.StatusOK, item)
}

// RetireItem removes an available unit from circulation
func (h *EquipmentItemHandler) RetireItem(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["itemId"]

	if err := h.Service.RetireItem(r.Context(), itemID); err != nil {
		writeEngineError(w, err)
		return
	}

	h.audit(r, "RETIRE", itemID)

	item, err := h.Service.GetItem(r.Context(), itemID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	utils.JSON(w, http.StatusOK, item)
}

func (h *EquipmentItemHandler) audit(r *http.Request, action, itemID string) {
	if h.LogRepo == nil {
		return
	}
	userID, _ := middleware.GetUserIDFromContext(r.Context())
	ip := getIPAddress(r)
	entry := &models.AllocationLog{
		UserID:      userID,
		ActionType:  action,
		ItemID:      &itemID,
		Description: action + " item " + itemID,
		IPAddress:   &ip,
	}
	if err := h.LogRepo.Create(r.Context(), entry); err != nil {
		log.Printf("[EquipmentItem] Failed to write audit log for %s %s: %v", action, itemID, err)
	}
}
