package payment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPaymentNotFound = errors.New("payment not found")
	ErrPaymentExists   = errors.New("a live payment already exists for this appointment")
	ErrNotPayable      = errors.New("appointment cannot be paid")
)

// Repository contains all DB interactions needed by the payment service and
// the webhook reconciler.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	GetByIntentID(ctx context.Context, intentID string) (*Payment, error)

	// GetLiveForAppointment returns the pending or succeeded payment for an
	// appointment, or ErrPaymentNotFound when none exists.
	GetLiveForAppointment(ctx context.Context, appointmentID uuid.UUID) (*Payment, error)

	ListByParty(ctx context.Context, partyID uuid.UUID, asTherapist bool) ([]Payment, error)

	// CountForAppointment returns how many payment rows exist for an
	// appointment regardless of status. Used to number payment attempts.
	CountForAppointment(ctx context.Context, appointmentID uuid.UUID) (int, error)

	// CreatePending inserts a new pending payment inside one transaction
	// that re-locks the appointment row and re-verifies that it is still
	// booked with no live payment. Returns ErrNotPayable or ErrPaymentExists
	// on a lost race; a partial unique index backs the latter.
	CreatePending(ctx context.Context, p *Payment) error

	// ApplyTransition is a compare-and-swap keyed by the external intent id:
	// the row moves from -> to only when it is currently in from, and the
	// linked appointment's payment status is updated in the same
	// transaction. A miss (redelivered, out-of-order, or unknown event)
	// returns ErrPaymentNotFound and leaves all state untouched.
	ApplyTransition(ctx context.Context, intentID string, from, to Status, at time.Time) (*Payment, error)
}
