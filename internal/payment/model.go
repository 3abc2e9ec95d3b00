package payment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// Live reports whether the payment still counts against the
// one-live-payment-per-appointment invariant.
func (s Status) Live() bool {
	return s == StatusPending || s == StatusSucceeded
}

// Payment tracks one collection attempt against a booked appointment.
// ExternalIntentID is the gateway's intent identifier; it is globally unique
// and serves as the reconciliation key for inbound settlement events.
type Payment struct {
	ID               uuid.UUID
	AppointmentID    uuid.UUID
	PatientID        uuid.UUID
	TherapistID      uuid.UUID
	ExternalIntentID string
	Amount           float64
	Currency         string
	Status           Status
	PaidAt           *time.Time
	RefundedAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
