package ledger

import (
	"errors"
	"net/http"

	"github.com/kudos/kudos-api/internal/pkg/response"
)

// RespondError writes the HTTP form of a ledger error. It returns false when
// err is not a ledger error so the caller can fall back to its own mapping.
func RespondError(w http.ResponseWriter, err error) bool {
	var (
		balErr      *InsufficientBalanceError
		stockErr    *InsufficientStockError
		mismatchErr *AmountMismatchError
		itemErr     *ItemNotFoundError
	)

	switch {
	case errors.As(err, &balErr):
		response.ErrorWithDetails(w, http.StatusConflict, "INSUFFICIENT_BALANCE", balErr.Error(), map[string]interface{}{
			"balance":   balErr.Balance,
			"shortfall": balErr.Shortfall,
		})
	case errors.As(err, &stockErr):
		response.ErrorWithDetails(w, http.StatusConflict, "INSUFFICIENT_STOCK", stockErr.Error(), map[string]interface{}{
			"item_id":   stockErr.ItemID,
			"requested": stockErr.Requested,
			"available": stockErr.Available,
		})
	case errors.As(err, &mismatchErr):
		response.ErrorWithDetails(w, http.StatusConflict, "AMOUNT_MISMATCH", mismatchErr.Error(), map[string]interface{}{
			"expected": mismatchErr.Expected,
			"actual":   mismatchErr.Actual,
		})
	case errors.As(err, &itemErr):
		response.ErrorWithDetails(w, http.StatusNotFound, "ITEM_NOT_FOUND", itemErr.Error(), map[string]interface{}{
			"item_id": itemErr.ItemID,
		})
	case errors.Is(err, ErrAccountNotFound):
		response.NotFound(w, "Account not found")
	case errors.Is(err, ErrInvalidIntent):
		response.BadRequest(w, err.Error())
	case errors.Is(err, ErrStorageFailure):
		response.ServiceUnavailable(w, "Points ledger is temporarily unavailable, please retry")
	default:
		return false
	}
	return true
}
