package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/DiggAiHH/abu-abad-sub000/internal/booking"
	"github.com/DiggAiHH/abu-abad-sub000/internal/payment"
	redisclient "github.com/DiggAiHH/abu-abad-sub000/internal/redis"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// handleDomainError maps the domain sentinel errors onto HTTP status codes.
// Authorization failures are kept generic so callers cannot probe for
// resource existence.
func handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrInvalidInput),
		errors.Is(err, payment.ErrAmountMismatch):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, booking.ErrNotPermitted),
		errors.Is(err, payment.ErrNotPermitted):
		writeError(w, http.StatusForbidden, "not_permitted", "not permitted")
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, payment.ErrPaymentNotFound):
		writeError(w, http.StatusNotFound, "payment_not_found", err.Error())
	case errors.Is(err, booking.ErrSlotOverlap):
		writeError(w, http.StatusConflict, "slot_overlap", err.Error())
	case errors.Is(err, booking.ErrSlotNotAvailable):
		writeError(w, http.StatusConflict, "slot_not_available", "slot no longer available")
	case errors.Is(err, booking.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, booking.ErrCalendarBusy),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "calendar_busy", "calendar is being modified, please retry shortly")
	case errors.Is(err, payment.ErrPaymentExists):
		writeError(w, http.StatusConflict, "payment_already_exists", err.Error())
	case errors.Is(err, payment.ErrNotPayable):
		writeError(w, http.StatusConflict, "appointment_not_payable", err.Error())
	case errors.Is(err, payment.ErrNotRefundable):
		writeError(w, http.StatusConflict, "payment_not_refundable", err.Error())
	case errors.Is(err, payment.ErrGatewayUnavailable):
		writeError(w, http.StatusBadGateway, "gateway_unavailable", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
