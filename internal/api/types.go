package api

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/DiggAiHH/abu-abad-sub000/internal/booking"
	"github.com/DiggAiHH/abu-abad-sub000/internal/payment"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type CreateSlotRequest struct {
	StartTime      time.Time `json:"start_time" validate:"required"`
	EndTime        time.Time `json:"end_time" validate:"required"`
	Kind           string    `json:"kind" validate:"required,oneof=video audio in_person"`
	Price          float64   `json:"price" validate:"required,gt=0"`
	TherapistNotes *string   `json:"therapist_notes_encrypted,omitempty"`
}

type UpdateSlotRequest struct {
	StartTime      *time.Time `json:"start_time,omitempty"`
	EndTime        *time.Time `json:"end_time,omitempty"`
	Kind           *string    `json:"kind,omitempty" validate:"omitempty,oneof=video audio in_person"`
	Price          *float64   `json:"price,omitempty" validate:"omitempty,gt=0"`
	TherapistNotes *string    `json:"therapist_notes_encrypted,omitempty"`
}

type BookSlotRequest struct {
	PatientNotes *string `json:"patient_notes_encrypted,omitempty"`
}

type CompleteBookingRequest struct {
	TherapistNotes *string `json:"therapist_notes_encrypted,omitempty"`
}

type CreateIntentRequest struct {
	AppointmentID string  `json:"appointment_id" validate:"required,uuid"`
	Amount        float64 `json:"amount" validate:"required,gt=0"`
}

type AppointmentResponse struct {
	ID              uuid.UUID  `json:"id"`
	TherapistID     uuid.UUID  `json:"therapist_id"`
	PatientID       *uuid.UUID `json:"patient_id,omitempty"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         time.Time  `json:"end_time"`
	DurationMinutes int        `json:"duration_minutes"`
	Kind            string     `json:"kind"`
	Price           float64    `json:"price"`
	Status          string     `json:"status"`
	PaymentStatus   string     `json:"payment_status"`
	PaymentID       *uuid.UUID `json:"payment_id,omitempty"`
	TherapistNotes  *string    `json:"therapist_notes_encrypted,omitempty"`
	PatientNotes    *string    `json:"patient_notes_encrypted,omitempty"`
	RoomID          uuid.UUID  `json:"room_id"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		TherapistID:     a.TherapistID,
		PatientID:       a.PatientID,
		StartTime:       a.StartTime,
		EndTime:         a.EndTime,
		DurationMinutes: a.DurationMinutes,
		Kind:            string(a.Kind),
		Price:           a.Price,
		Status:          string(a.Status),
		PaymentStatus:   string(a.PaymentStatus),
		PaymentID:       a.PaymentID,
		TherapistNotes:  a.TherapistNotes,
		PatientNotes:    a.PatientNotes,
		RoomID:          a.RoomID,
		CancelledAt:     a.CancelledAt,
		CompletedAt:     a.CompletedAt,
	}
}

type PaymentResponse struct {
	ID               uuid.UUID  `json:"id"`
	AppointmentID    uuid.UUID  `json:"appointment_id"`
	ExternalIntentID string     `json:"external_intent_id"`
	Amount           float64    `json:"amount"`
	Currency         string     `json:"currency"`
	Status           string     `json:"status"`
	PaidAt           *time.Time `json:"paid_at,omitempty"`
	RefundedAt       *time.Time `json:"refunded_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func toPaymentResponse(p *payment.Payment) PaymentResponse {
	return PaymentResponse{
		ID:               p.ID,
		AppointmentID:    p.AppointmentID,
		ExternalIntentID: p.ExternalIntentID,
		Amount:           p.Amount,
		Currency:         p.Currency,
		Status:           string(p.Status),
		PaidAt:           p.PaidAt,
		RefundedAt:       p.RefundedAt,
		CreatedAt:        p.CreatedAt,
	}
}

type RefundResponse struct {
	RefundID string `json:"refund_id"`
	Message  string `json:"message"`
}
