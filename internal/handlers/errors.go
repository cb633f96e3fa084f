package handlers

import (
	"errors"
	"net/http"

	"labstore-backend/internal/models"
)

// engineStatus maps the allocation engine's error taxonomy onto HTTP status
// codes. LineError/ItemError wrappers unwrap to their sentinel, so the
// response body still names the offending line or item while the status
// reflects the category.
func engineStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound),
		errors.Is(err, models.ErrLineNotFound),
		errors.Is(err, models.ErrUnknownItem):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidQuantity),
		errors.Is(err, models.ErrInvalidState):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrOverAllocation),
		errors.Is(err, models.ErrDuplicateItemID),
		errors.Is(err, models.ErrAlreadyAllocated),
		errors.Is(err, models.ErrNotAllocated):
		return http.StatusConflict
	case errors.Is(err, models.ErrContention):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeEngineError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), engineStatus(err))
}
