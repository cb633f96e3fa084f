package middleware

import (
	"log"
	"net/http"
	"runtime/debug"

	"labstore-backend/pkg/utils"
)

// PanicRecovery turns a handler panic into a 500 response instead of tearing
// down the connection.
func PanicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("[Recovery] panic serving %s %s: %v\n%s", r.Method, r.URL.Path, rec, debug.Stack())
				utils.JSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
			}
		}()

		next.ServeHTTP(w, r)
	})
}
