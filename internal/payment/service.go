package payment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/DiggAiHH/abu-abad-sub000/internal/auth"
	"github.com/DiggAiHH/abu-abad-sub000/internal/booking"
)

// amountEpsilon absorbs float representation noise when comparing the
// caller-supplied amount against the authoritative appointment price.
const amountEpsilon = 0.01

var (
	ErrNotPermitted   = errors.New("not permitted")
	ErrAmountMismatch = errors.New("amount does not match the appointment price")
	ErrNotRefundable  = errors.New("payment cannot be refunded")
)

type Service struct {
	payments     Repository
	appointments booking.Repository
	gateway      Gateway
	log          zerolog.Logger
	currency     string
	now          func() time.Time
}

func NewService(payments Repository, appointments booking.Repository, gateway Gateway, log zerolog.Logger, currency string) *Service {
	return &Service{
		payments:     payments,
		appointments: appointments,
		gateway:      gateway,
		log:          log,
		currency:     currency,
		now:          time.Now,
	}
}

// IdempotencyKey derives the gateway idempotency key for one payment attempt
// against an appointment. It is deterministic per attempt so client retries
// of the same logical payment collapse into one intent at the gateway, while
// a fresh attempt after a failed settlement gets its own key and therefore a
// new intent.
func IdempotencyKey(appointmentID uuid.UUID, attempt int) string {
	if attempt == 0 {
		return "appt-" + appointmentID.String()
	}
	return fmt.Sprintf("appt-%s-%d", appointmentID, attempt)
}

// GatewayFailure carries the idempotency key of a failed gateway call so the
// caller can retry the identical logical operation without risking a second
// charge. It unwraps to ErrGatewayUnavailable.
type GatewayFailure struct {
	IdempotencyKey string
	err            error
}

func (e *GatewayFailure) Error() string { return e.err.Error() }
func (e *GatewayFailure) Unwrap() error { return e.err }

// CreateIntent opens a tracked payment against a booked appointment.
//
// The operation runs in two short transactions with the gateway call in
// between, so no row lock is ever held across network latency: a read
// validates the request, the gateway opens the intent, and a second
// transaction re-locks the appointment, re-verifies it, and persists the
// pending payment. A gateway failure leaves no local row behind, making the
// call safe to retry with the same idempotency key.
func (s *Service) CreateIntent(ctx context.Context, actor auth.Actor, appointmentID uuid.UUID, amount float64) (*Payment, error) {
	if !actor.IsPatient() {
		return nil, ErrNotPermitted
	}

	appt, err := s.appointments.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.PatientID == nil || *appt.PatientID != actor.ID {
		return nil, ErrNotPermitted
	}
	if appt.Status != booking.StatusBooked {
		return nil, ErrNotPayable
	}
	if math.Abs(amount-appt.Price) > amountEpsilon {
		return nil, fmt.Errorf("%w: got %.2f, appointment price is %.2f", ErrAmountMismatch, amount, appt.Price)
	}

	if _, err := s.payments.GetLiveForAppointment(ctx, appointmentID); err == nil {
		return nil, ErrPaymentExists
	} else if !errors.Is(err, ErrPaymentNotFound) {
		return nil, fmt.Errorf("check existing payment: %w", err)
	}

	// With no live payment, every existing row is settled (failed or
	// refunded); their count is the attempt number, so a new attempt after a
	// failed settlement keys a fresh intent instead of colliding with the
	// failed row's intent id.
	attempt, err := s.payments.CountForAppointment(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("count prior payments: %w", err)
	}
	key := IdempotencyKey(appointmentID, attempt)

	intent, err := s.gateway.CreateIntent(ctx, CreateIntentParams{
		Amount:         appt.Price,
		Currency:       s.currency,
		IdempotencyKey: key,
		Metadata: map[string]string{
			"appointment_id": appt.ID.String(),
			"patient_id":     actor.ID.String(),
			"therapist_id":   appt.TherapistID.String(),
		},
	})
	if err != nil {
		return nil, &GatewayFailure{
			IdempotencyKey: key,
			err:            fmt.Errorf("create intent: %w", err),
		}
	}

	p := &Payment{
		ID:               uuid.New(),
		AppointmentID:    appt.ID,
		PatientID:        actor.ID,
		TherapistID:      appt.TherapistID,
		ExternalIntentID: intent.ID,
		Amount:           appt.Price,
		Currency:         s.currency,
		Status:           StatusPending,
	}

	if err := s.payments.CreatePending(ctx, p); err != nil {
		// The intent now exists gateway-side but nothing was committed
		// locally; the gateway deduplicates on the idempotency key if the
		// caller retries.
		return nil, err
	}

	s.log.Info().
		Str("payment_id", p.ID.String()).
		Str("appointment_id", appt.ID.String()).
		Str("external_intent_id", intent.ID).
		Msg("payment intent created")

	return p, nil
}

// Refund asks the gateway to reverse a settled payment. The local row is
// deliberately not touched here: the reconciler is the single writer of
// terminal payment state and flips it when charge_refunded arrives.
func (s *Service) Refund(ctx context.Context, actor auth.Actor, paymentID uuid.UUID) (string, error) {
	if !actor.IsTherapist() {
		return "", ErrNotPermitted
	}

	p, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return "", err
	}
	if p.TherapistID != actor.ID {
		return "", ErrNotPermitted
	}
	if p.Status != StatusSucceeded {
		return "", ErrNotRefundable
	}

	refundID, err := s.gateway.Refund(ctx, p.ExternalIntentID)
	if err != nil {
		return "", fmt.Errorf("refund: %w", err)
	}

	s.log.Info().
		Str("payment_id", p.ID.String()).
		Str("refund_id", refundID).
		Msg("refund requested")

	return refundID, nil
}

// ListMine returns the actor's payments, newest first.
func (s *Service) ListMine(ctx context.Context, actor auth.Actor) ([]Payment, error) {
	payments, err := s.payments.ListByParty(ctx, actor.ID, actor.IsTherapist())
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}
