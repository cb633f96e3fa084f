package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"labstore-backend/internal/handlers"
	"labstore-backend/internal/middleware"
)

func NewRouter(
	authHandler *handlers.AuthHandler,
	userHandler *handlers.UserHandler,
	requestHandler *handlers.RequestHandler,
	allocationHandler *handlers.AllocationHandler,
	itemHandler *handlers.EquipmentItemHandler,
	healthHandler *handlers.HealthHandler,
	authMiddleware *middleware.AuthMiddleware,
) *mux.Router {
	r := mux.NewRouter()

	// Public API routes - Authentication
	r.HandleFunc("/auth/signup", authHandler.Signup).Methods("POST")
	r.HandleFunc("/auth/login", authHandler.Login).Methods("POST")

	// Protected API routes - Lab Requests
	// Any authenticated user may create and view; lifecycle transitions and
	// allocation are store-staff operations.
	requestsAPI := r.PathPrefix("/api/requests").Subrouter()
	requestsAPI.Use(authMiddleware.Authenticate)
	requestsAPI.HandleFunc("", requestHandler.ListRequests).Methods("GET")
	requestsAPI.HandleFunc("", requestHandler.CreateRequest).Methods("POST")
	requestsAPI.HandleFunc("/{id}", requestHandler.GetRequest).Methods("GET")
	requestsAPI.HandleFunc("/{id}/approve", authMiddleware.RequireAdmin(http.HandlerFunc(requestHandler.ApproveRequest)).ServeHTTP).Methods("POST")
	requestsAPI.HandleFunc("/{id}/reject", authMiddleware.RequireAdmin(http.HandlerFunc(requestHandler.RejectRequest)).ServeHTTP).Methods("POST")
	requestsAPI.HandleFunc("/{id}/allocate", authMiddleware.RequireStoreStaff(http.HandlerFunc(allocationHandler.Allocate)).ServeHTTP).Methods("POST")
	requestsAPI.HandleFunc("/{id}/complete", authMiddleware.RequireStoreStaff(http.HandlerFunc(requestHandler.CompleteRequest)).ServeHTTP).Methods("POST")
	requestsAPI.HandleFunc("/{id}/allocations", authMiddleware.RequireStoreStaff(http.HandlerFunc(allocationHandler.ListAllocations)).ServeHTTP).Methods("GET")

	// Protected API routes - Equipment Item Registry
	itemsAPI := r.PathPrefix("/api/equipment-items").Subrouter()
	itemsAPI.Use(authMiddleware.Authenticate)
	itemsAPI.HandleFunc("", itemHandler.ListItems).Methods("GET")
	itemsAPI.HandleFunc("", authMiddleware.RequireStoreStaff(http.HandlerFunc(itemHandler.RegisterItem)).ServeHTTP).Methods("POST")
	itemsAPI.HandleFunc("/{itemId}", itemHandler.GetItem).Methods("GET")
	itemsAPI.HandleFunc("/{itemId}/release", authMiddleware.RequireStoreStaff(http.HandlerFunc(itemHandler.ReleaseItem)).ServeHTTP).Methods("POST")
	itemsAPI.HandleFunc("/{itemId}/retire", authMiddleware.RequireAdmin(http.HandlerFunc(itemHandler.RetireItem)).ServeHTTP).Methods("POST")

	// Protected API routes - Users (admin only)
	usersAPI := r.PathPrefix("/api/users").Subrouter()
	usersAPI.Use(authMiddleware.RequireAdmin)
	usersAPI.HandleFunc("", userHandler.ListUsers).Methods("GET")
	usersAPI.HandleFunc("", userHandler.CreateUser).Methods("POST")
	usersAPI.HandleFunc("/{id}", userHandler.GetUser).Methods("GET")
	usersAPI.HandleFunc("/{id}", userHandler.UpdateUser).Methods("PUT")
	usersAPI.HandleFunc("/{id}", userHandler.DeleteUser).Methods("DELETE")
	usersAPI.HandleFunc("/{id}/active", userHandler.SetUserActive).Methods("PATCH")

	// Health endpoints (no auth required - for Kubernetes probes)
	r.HandleFunc("/health", healthHandler.BasicHealth).Methods("GET")
	r.HandleFunc("/health/ready", healthHandler.ReadinessHealth).Methods("GET")

	// Metrics endpoint (Prometheus format)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
