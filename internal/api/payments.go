package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/DiggAiHH/abu-abad-sub000/internal/payment"
)

// SignatureHeader carries the gateway's HMAC over the raw webhook body.
const SignatureHeader = "X-Gateway-Signature"

func createIntentHandler(svc *payment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mustActor(w, r)
		if !ok {
			return
		}

		var req CreateIntentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		appointmentID, err := uuid.Parse(req.AppointmentID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "appointment_id must be a valid UUID")
			return
		}

		p, err := svc.CreateIntent(r.Context(), actor, appointmentID, req.Amount)
		if err != nil {
			var gf *payment.GatewayFailure
			if errors.As(err, &gf) {
				// Echo the idempotency key so the caller can retry the same
				// logical operation without risking a second charge.
				writeJSON(w, http.StatusBadGateway, map[string]string{
					"error":           "gateway_unavailable",
					"details":         err.Error(),
					"idempotency_key": gf.IdempotencyKey,
				})
				return
			}
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toPaymentResponse(p))
	}
}

func listPaymentsHandler(svc *payment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mustActor(w, r)
		if !ok {
			return
		}

		payments, err := svc.ListMine(r.Context(), actor)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		resp := make([]PaymentResponse, 0, len(payments))
		for i := range payments {
			resp = append(resp, toPaymentResponse(&payments[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func refundHandler(svc *payment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mustActor(w, r)
		if !ok {
			return
		}
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		refundID, err := svc.Refund(r.Context(), actor, id)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, RefundResponse{
			RefundID: refundID,
			Message:  "refund requested, settlement is confirmed via webhook",
		})
	}
}

// webhookHandler is the only unauthenticated mutation endpoint; the payload
// signature is the authentication. The gateway only needs an ack/reject
// signal, never an interactive error.
func webhookHandler(rec *payment.Reconciler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_payload", "could not read body")
			return
		}

		err = rec.HandleEvent(r.Context(), payload, r.Header.Get(SignatureHeader))
		if err != nil {
			if errors.Is(err, payment.ErrBadSignature) || errors.Is(err, payment.ErrMalformedEvent) {
				writeError(w, http.StatusBadRequest, "rejected", "")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", "")
			return
		}

		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
	}
}
