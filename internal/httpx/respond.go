package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

// validationErrs — ошибки доменной валидации, которые превращаются в 400.
var validationErrs = []error{
	domain.ErrSupplierRequired,
	domain.ErrCustomerRequired,
	domain.ErrItemsRequired,
	domain.ErrDeliveryAddressRequired,
	domain.ErrItemQtyInvalid,
	domain.ErrItemPriceInvalid,
	domain.ErrItemVatRateInvalid,
	domain.ErrAmountMismatch,
}

// writeError транслирует доменные ошибки в HTTP-статусы:
// not found — 404, отказ по владению — 403, недопустимый переход и
// конфликт версий — 409, нарушение валидации — 400.
func writeError(w http.ResponseWriter, logger *log.Entry, err error) {
	switch {
	case domain.IsNotFound(err) || errors.Is(err, domain.ErrEventNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrInvalidOperation):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrInvalidStateTransition):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case domain.IsConcurrencyConflict(err):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "order was modified concurrently, retry"})
	case isValidationError(err):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		logger.WithError(err).Error("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func isValidationError(err error) bool {
	for _, sentinel := range validationErrs {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: message})
}
