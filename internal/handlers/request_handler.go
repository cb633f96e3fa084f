package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"labstore-backend/internal/cache"
	"labstore-backend/internal/middleware"
	"labstore-backend/internal/models"
	"labstore-backend/internal/repositories"
	"labstore-backend/internal/services"
	"labstore-backend/pkg/utils"
)

type RequestHandler struct {
	Service *services.RequestService
	LogRepo *repositories.AllocationLogRepository
}

func NewRequestHandler(s *services.RequestService, logRepo *repositories.AllocationLogRepository) *RequestHandler {
	return &RequestHandler{Service: s, LogRepo: logRepo}
}

// CreateRequest submits a new lab request. Requesters always create for
// their own lab, whatever the body says.
func (h *RequestHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var req models.CreateLabRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	userID, _ := middleware.GetUserIDFromContext(r.Context())
	if role, _ := middleware.GetRoleFromContext(r.Context()); role == "requester" {
		if labID, ok := middleware.GetLabIDFromContext(r.Context()); ok && labID != "" {
			req.LabID = labID
		}
	}

	created, err := h.Service.CreateRequest(r.Context(), &req, userID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	utils.JSON(w, http.StatusCreated, created)
}

// ListRequests lists requests with optional status and lab_id filters.
// Requesters only ever see their own lab.
func (h *RequestHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	labID := r.URL.Query().Get("lab_id")

	if role, _ := middleware.GetRoleFromContext(r.Context()); role == "requester" {
		if own, ok := middleware.GetLabIDFromContext(r.Context()); ok {
			labID = own
		}
	}

	requests, err := h.Service.ListRequests(r.Context(), status, labID)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}

	utils.JSON(w, http.StatusOK, requests)
}

// GetRequest returns one request aggregate. Read responses are served from
// the Redis snapshot cache when available; the cache is invalidated on every
// save, and the allocation engine itself never reads from it.
func (h *RequestHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if data, ok := cache.GetCachedRequest(r.Context(), id); ok {
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
		return
	}

	req, err := h.Service.GetRequest(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	data, err := json.Marshal(req)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	cache.CacheRequest(r.Context(), id, data)

	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// ApproveRequest transitions pending → approved
func (h *RequestHandler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "APPROVE", h.Service.ApproveRequest)
}

// RejectRequest transitions pending → rejected
func (h *RequestHandler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "REJECT", h.Service.RejectRequest)
}

// CompleteRequest closes a fulfilled request
func (h *RequestHandler) CompleteRequest(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "COMPLETE", h.Service.CompleteRequest)
}

func (h *RequestHandler) transition(w http.ResponseWriter, r *http.Request, action string, fn func(ctx context.Context, id string) (*models.LabRequest, error)) {
	id := mux.Vars(r)["id"]

	updated, err := fn(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	h.audit(r, action, id)

	utils.JSON(w, http.StatusOK, updated)
}

// audit records the action in the allocation log. Best-effort: a failed
// insert is logged and the response is unaffected.
func (h *RequestHandler) audit(r *http.Request, action, requestID string) {
	if h.LogRepo == nil {
		return
	}
	userID, _ := middleware.GetUserIDFromContext(r.Context())
	ip := getIPAddress(r)
	entry := &models.AllocationLog{
		UserID:      userID,
		ActionType:  action,
		RequestID:   &requestID,
		Description: action + " request " + requestID,
		IPAddress:   &ip,
	}
	if err := h.LogRepo.Create(r.Context(), entry); err != nil {
		log.Printf("[Request] Failed to write audit log for %s %s: %v", action, requestID, err)
	}
}
