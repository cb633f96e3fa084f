package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"labstore-backend/internal/auth"
	"labstore-backend/internal/backup"
	"labstore-backend/internal/cache"
	"labstore-backend/internal/config"
	"labstore-backend/internal/database"
	"labstore-backend/internal/db"
	"labstore-backend/internal/handlers"
	"labstore-backend/internal/health"
	h "labstore-backend/internal/http"
	"labstore-backend/internal/middleware"
	"labstore-backend/internal/monitoring"
	"labstore-backend/internal/repositories"
	"labstore-backend/internal/repositories/memory"
	"labstore-backend/internal/services"
)

// startStandalone runs the allocation engine against the in-memory store,
// with no database, auth, or cache. Useful for demos and local frontend
// development; all state is lost on exit.
func startStandalone(cfg *config.Config) {
	log.Println("Starting in STANDALONE mode (in-memory, no auth)")

	store := memory.NewRequestStore()
	registry := memory.NewItemRegistry()

	requestService := services.NewRequestService(store)
	allocationService := services.NewAllocationService(store, registry)
	itemService := services.NewItemService(registry)

	requestHandler := handlers.NewRequestHandler(requestService, nil)
	allocationHandler := handlers.NewAllocationHandler(allocationService, nil)
	itemHandler := handlers.NewEquipmentItemHandler(itemService, nil)
	healthHandler := handlers.NewHealthHandler(nil)

	r := mux.NewRouter()
	r.HandleFunc("/api/requests", requestHandler.ListRequests).Methods("GET")
	r.HandleFunc("/api/requests", requestHandler.CreateRequest).Methods("POST")
	r.HandleFunc("/api/requests/{id}", requestHandler.GetRequest).Methods("GET")
	r.HandleFunc("/api/requests/{id}/approve", requestHandler.ApproveRequest).Methods("POST")
	r.HandleFunc("/api/requests/{id}/reject", requestHandler.RejectRequest).Methods("POST")
	r.HandleFunc("/api/requests/{id}/allocate", allocationHandler.Allocate).Methods("POST")
	r.HandleFunc("/api/requests/{id}/complete", requestHandler.CompleteRequest).Methods("POST")
	r.HandleFunc("/api/requests/{id}/allocations", allocationHandler.ListAllocations).Methods("GET")
	r.HandleFunc("/api/equipment-items", itemHandler.ListItems).Methods("GET")
	r.HandleFunc("/api/equipment-items", itemHandler.RegisterItem).Methods("POST")
	r.HandleFunc("/api/equipment-items/{itemId}", itemHandler.GetItem).Methods("GET")
	r.HandleFunc("/api/equipment-items/{itemId}/release", itemHandler.ReleaseItem).Methods("POST")
	r.HandleFunc("/api/equipment-items/{itemId}/retire", itemHandler.RetireItem).Methods("POST")
	r.HandleFunc("/health", healthHandler.BasicHealth).Methods("GET")

	handler := middleware.PanicRecovery(middleware.MetricsMiddleware(r))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Server running on %s (mode: standalone)", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

func main() {
	mode := flag.String("mode", "server", "Server mode: server or standalone")
	port := flag.Int("port", 0, "Server port (overrides config)")
	flag.Parse()

	cfg := config.Load()
	if *port != 0 {
		cfg.Server.Port = *port
	}

	if *mode == "standalone" {
		startStandalone(cfg)
		return
	}

	pool := db.Connect(cfg)
	defer pool.Close()

	// Redis cache is optional - graceful fallback if unavailable
	if err := cache.Init(cfg); err != nil {
		log.Printf("[Redis] Cache unavailable: %v (login will use bcrypt only)", err)
	} else {
		log.Println("[Redis] Cache connected successfully")
	}

	// Run database migrations on startup
	migrator := database.NewMigrator(pool)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := migrator.RunMigrations(ctx); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	healthChecker := health.NewHealthChecker(pool)

	// Monitoring dashboard runs on its own port
	go monitoring.NewMonitoringServer(pool, 9090).Start()

	jwtManager := auth.NewJWTManager(cfg)

	// Repositories
	userRepo := repositories.NewUserRepository(pool)
	requestRepo := repositories.NewRequestRepository(pool)
	itemRepo := repositories.NewEquipmentItemRepository(pool)
	logRepo := repositories.NewAllocationLogRepository(pool)

	// Services
	userService := services.NewUserService(userRepo, jwtManager)
	requestService := services.NewRequestService(requestRepo)
	allocationService := services.NewAllocationService(requestRepo, itemRepo)
	itemService := services.NewItemService(itemRepo)

	// Handlers
	authHandler := handlers.NewAuthHandler(userService)
	userHandler := handlers.NewUserHandler(userService)
	requestHandler := handlers.NewRequestHandler(requestService, logRepo)
	allocationHandler := handlers.NewAllocationHandler(allocationService, logRepo)
	itemHandler := handlers.NewEquipmentItemHandler(itemService, logRepo)
	healthHandler := handlers.NewHealthHandler(healthChecker)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(jwtManager, userRepo)
	corsMiddleware := middleware.NewCORS(cfg)

	// Periodic S3 snapshot backups (optional)
	if cfg.Backup.Enabled {
		scheduler := backup.NewScheduler(cfg, requestRepo, itemRepo)
		go scheduler.Run(context.Background())
	}

	router := h.NewRouter(authHandler, userHandler, requestHandler, allocationHandler, itemHandler, healthHandler, authMiddleware)
	handler := middleware.PanicRecovery(middleware.MetricsMiddleware(corsMiddleware(router)))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Server running on %s (mode: %s)", addr, *mode)
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
