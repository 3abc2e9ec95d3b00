package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DiggAiHH/abu-abad-sub000/internal/booking"
)

const paymentColumns = `
	id, appointment_id, patient_id, therapist_id, external_intent_id,
	amount, currency, status, paid_at, refunded_at, created_at, updated_at`

const uniqueViolation = "23505"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment

	err := row.Scan(
		&p.ID,
		&p.AppointmentID,
		&p.PatientID,
		&p.TherapistID,
		&p.ExternalIntentID,
		&p.Amount,
		&p.Currency,
		&p.Status,
		&p.PaidAt,
		&p.RefundedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}

	return &p, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Payment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE id = $1
	`, id)
	return scanPayment(row)
}

func (r *PgRepository) GetByIntentID(ctx context.Context, intentID string) (*Payment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE external_intent_id = $1
	`, intentID)
	return scanPayment(row)
}

func (r *PgRepository) GetLiveForAppointment(ctx context.Context, appointmentID uuid.UUID) (*Payment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE appointment_id = $1
		  AND status IN ('pending', 'succeeded')
	`, appointmentID)
	return scanPayment(row)
}

func (r *PgRepository) ListByParty(ctx context.Context, partyID uuid.UUID, asTherapist bool) ([]Payment, error) {
	field := "patient_id"
	if asTherapist {
		field = "therapist_id"
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE `+field+` = $1
		ORDER BY created_at DESC
	`, partyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) CountForAppointment(ctx context.Context, appointmentID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM payments
		WHERE appointment_id = $1
	`, appointmentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count payments: %w", err)
	}
	return n, nil
}

func (r *PgRepository) CreatePending(ctx context.Context, p *Payment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create payment: %w", err)
	}
	defer tx.Rollback(ctx)

	// Re-verify under the row lock: the appointment must still be booked.
	// The gateway call happened before this transaction, so the lock is
	// never held across network latency.
	var status booking.Status
	err = tx.QueryRow(ctx, `
		SELECT status
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, p.AppointmentID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return booking.ErrAppointmentNotFound
		}
		return fmt.Errorf("lock appointment: %w", err)
	}
	if status != booking.StatusBooked {
		return ErrNotPayable
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO payments (
			id, appointment_id, patient_id, therapist_id,
			external_intent_id, amount, currency, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', now(), now())
	`, p.ID, p.AppointmentID, p.PatientID, p.TherapistID,
		p.ExternalIntentID, p.Amount, p.Currency)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrPaymentExists
		}
		return fmt.Errorf("insert payment: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE appointments
		SET payment_id = $2,
		    updated_at = now()
		WHERE id = $1
	`, p.AppointmentID, p.ID)
	if err != nil {
		return fmt.Errorf("link payment: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) ApplyTransition(ctx context.Context, intentID string, from, to Status, at time.Time) (*Payment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin apply transition: %w", err)
	}
	defer tx.Rollback(ctx)

	var row pgx.Row
	switch to {
	case StatusSucceeded:
		row = tx.QueryRow(ctx, `
			UPDATE payments
			SET status = $3, paid_at = $4, updated_at = now()
			WHERE external_intent_id = $1 AND status = $2
			RETURNING `+paymentColumns+`
		`, intentID, from, to, at)
	case StatusRefunded:
		row = tx.QueryRow(ctx, `
			UPDATE payments
			SET status = $3, refunded_at = $4, updated_at = now()
			WHERE external_intent_id = $1 AND status = $2
			RETURNING `+paymentColumns+`
		`, intentID, from, to, at)
	default:
		row = tx.QueryRow(ctx, `
			UPDATE payments
			SET status = $3, updated_at = now()
			WHERE external_intent_id = $1 AND status = $2
			RETURNING `+paymentColumns+`
		`, intentID, from, to)
	}

	p, err := scanPayment(row)
	if err != nil {
		return nil, err
	}

	if apptStatus, ok := appointmentPaymentStatus(to); ok {
		_, err = tx.Exec(ctx, `
			UPDATE appointments
			SET payment_status = $2,
			    updated_at = now()
			WHERE id = $1
		`, p.AppointmentID, apptStatus)
		if err != nil {
			return nil, fmt.Errorf("update appointment payment status: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// appointmentPaymentStatus maps a terminal payment state to the payment
// status mirrored on the appointment row.
func appointmentPaymentStatus(to Status) (booking.PaymentStatus, bool) {
	switch to {
	case StatusSucceeded:
		return booking.PaymentPaid, true
	case StatusRefunded:
		return booking.PaymentRefunded, true
	default:
		return "", false
	}
}
