package middleware

import (
	"context"
	"net/http"
	"strings"

	"labstore-backend/internal/auth"
	"labstore-backend/internal/repositories"
)

type contextKey string

const UserIDKey contextKey = "user_id"
const EmailKey contextKey = "email"
const RoleKey contextKey = "role"
const LabIDKey contextKey = "lab_id"

type AuthMiddleware struct {
	jwtManager *auth.JWTManager
	userRepo   *repositories.UserRepository
}

func NewAuthMiddleware(jwtManager *auth.JWTManager, userRepo *repositories.UserRepository) *AuthMiddleware {
	return &AuthMiddleware{
		jwtManager: jwtManager,
		userRepo:   userRepo,
	}
}

// authenticate validates the bearer token and loads the current user row.
// Role and active status come from the database, not the token, so a
// suspension or role change takes effect on the next request.
func (m *AuthMiddleware) authenticate(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		http.Error(w, "Authorization header required", http.StatusUnauthorized)
		return nil, false
	}

	// Extract token from "Bearer <token>"
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		http.Error(w, "Invalid authorization format", http.StatusUnauthorized)
		return nil, false
	}

	claims, err := m.jwtManager.ValidateToken(parts[1])
	if err != nil {
		http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
		return nil, false
	}

	user, err := m.userRepo.Get(r.Context(), claims.UserID)
	if err != nil {
		http.Error(w, "User not found", http.StatusUnauthorized)
		return nil, false
	}

	if !user.IsActive {
		http.Error(w, "Account suspended. Please contact administrator.", http.StatusForbidden)
		return nil, false
	}

	ctx := context.WithValue(r.Context(), UserIDKey, user.ID)
	ctx = context.WithValue(ctx, EmailKey, user.Email)
	ctx = context.WithValue(ctx, RoleKey, user.Role)
	ctx = context.WithValue(ctx, LabIDKey, user.LabID)

	return r.WithContext(ctx), true
}

// Authenticate is a middleware that validates JWT tokens
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r, ok := m.authenticate(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole is a middleware that ensures the user has one of the allowed roles
func (m *AuthMiddleware) RequireRole(allowedRoles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r, ok := m.authenticate(w, r)
			if !ok {
				return
			}

			role, _ := GetRoleFromContext(r.Context())
			hasRole := false
			for _, allowed := range allowedRoles {
				if role == allowed {
					hasRole = true
					break
				}
			}

			if !hasRole {
				http.Error(w, "Forbidden: Insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin is a middleware that ensures the user has admin role
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return m.RequireRole("admin")(next)
}

// RequireStoreStaff allows admins and storekeepers, the roles that operate
// the store counter
func (m *AuthMiddleware) RequireStoreStaff(next http.Handler) http.Handler {
	return m.RequireRole("admin", "storekeeper")(next)
}

// GetUserIDFromContext extracts user ID from request context
func GetUserIDFromContext(ctx context.Context) (int, bool) {
	userID, ok := ctx.Value(UserIDKey).(int)
	return userID, ok
}

// GetEmailFromContext extracts email from request context
func GetEmailFromContext(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(EmailKey).(string)
	return email, ok
}

// GetRoleFromContext extracts role from request context
func GetRoleFromContext(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(RoleKey).(string)
	return role, ok
}

// GetLabIDFromContext extracts the requester's lab from request context
func GetLabIDFromContext(ctx context.Context) (string, bool) {
	labID, ok := ctx.Value(LabIDKey).(string)
	return labID, ok
}
