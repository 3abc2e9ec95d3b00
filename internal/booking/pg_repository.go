package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const appointmentColumns = `
	id, therapist_id, patient_id, start_time, end_time, duration_minutes,
	kind, price, status, payment_status, payment_id,
	therapist_notes_encrypted, patient_notes_encrypted, room_id,
	cancelled_at, completed_at, created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.TherapistID,
		&a.PatientID,
		&a.StartTime,
		&a.EndTime,
		&a.DurationMinutes,
		&a.Kind,
		&a.Price,
		&a.Status,
		&a.PaymentStatus,
		&a.PaymentID,
		&a.TherapistNotes,
		&a.PatientNotes,
		&a.RoomID,
		&a.CancelledAt,
		&a.CompletedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) CreateSlot(ctx context.Context, appt *Appointment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create slot: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock every non-cancelled row of this therapist that could intersect
	// the candidate [start, end) window, then decide. Concurrent inserts for
	// the same therapist serialize on these rows.
	rows, err := tx.Query(ctx, `
		SELECT id
		FROM appointments
		WHERE therapist_id = $1
		  AND status <> 'cancelled'
		  AND start_time < $3
		  AND end_time > $2
		FOR UPDATE
	`, appt.TherapistID, appt.StartTime, appt.EndTime)
	if err != nil {
		return fmt.Errorf("check overlap: %w", err)
	}
	overlap := rows.Next()
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("check overlap: %w", err)
	}
	if overlap {
		return ErrSlotOverlap
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO appointments (
			id, therapist_id, start_time, end_time, duration_minutes,
			kind, price, status, payment_status,
			therapist_notes_encrypted, room_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 'available', 'pending', $8, $9, now(), now())
	`, appt.ID, appt.TherapistID, appt.StartTime, appt.EndTime, appt.DurationMinutes,
		appt.Kind, appt.Price, appt.TherapistNotes, appt.RoomID)
	if err != nil {
		return fmt.Errorf("insert slot: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) ListAvailable(ctx context.Context, f AvailableFilter, now time.Time) ([]Appointment, error) {
	q := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE status = 'available'
		  AND start_time > $1`
	args := []any{now}

	if f.TherapistID != nil {
		args = append(args, *f.TherapistID)
		q += fmt.Sprintf(" AND therapist_id = $%d", len(args))
	}
	if f.From != nil {
		args = append(args, *f.From)
		q += fmt.Sprintf(" AND start_time >= $%d", len(args))
	}
	if f.To != nil {
		args = append(args, *f.To)
		q += fmt.Sprintf(" AND end_time <= $%d", len(args))
	}
	q += " ORDER BY start_time ASC"

	return r.queryAppointments(ctx, q, args...)
}

func (r *PgRepository) ListByParty(ctx context.Context, partyID uuid.UUID, asTherapist bool, f MineFilter, now time.Time) ([]Appointment, error) {
	field := "patient_id"
	if asTherapist {
		field = "therapist_id"
	}

	q := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE ` + field + ` = $1`
	args := []any{partyID}

	if f.Status != nil {
		args = append(args, *f.Status)
		q += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.Upcoming {
		args = append(args, now)
		q += fmt.Sprintf(" AND start_time > $%d", len(args))
	}
	q += " ORDER BY start_time DESC"

	return r.queryAppointments(ctx, q, args...)
}

func (r *PgRepository) queryAppointments(ctx context.Context, q string, args ...any) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) UpdateSlot(ctx context.Context, id, therapistID uuid.UUID, patch SlotPatch) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin update slot: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		return nil, err
	}
	if current.TherapistID != therapistID {
		return nil, ErrNotPermitted
	}
	if current.Terminal() {
		return nil, ErrInvalidTransition
	}

	start := current.StartTime
	end := current.EndTime
	if patch.StartTime != nil {
		start = *patch.StartTime
	}
	if patch.EndTime != nil {
		end = *patch.EndTime
	}
	// The merged window must still be a valid interval even when only one
	// endpoint moved.
	if !end.After(start) {
		return nil, fmt.Errorf("%w: end time must be after start time", ErrInvalidInput)
	}

	if patch.StartTime != nil || patch.EndTime != nil {
		var conflict uuid.UUID
		err := tx.QueryRow(ctx, `
			SELECT id
			FROM appointments
			WHERE therapist_id = $1
			  AND id <> $2
			  AND status <> 'cancelled'
			  AND start_time < $4
			  AND end_time > $3
			FOR UPDATE
		`, therapistID, id, start, end).Scan(&conflict)
		if err == nil {
			return nil, ErrSlotOverlap
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("recheck overlap: %w", err)
		}
	}

	kind := current.Kind
	if patch.Kind != nil {
		kind = *patch.Kind
	}
	price := current.Price
	if patch.Price != nil {
		price = *patch.Price
	}
	notes := current.TherapistNotes
	if patch.TherapistNotes != nil {
		notes = patch.TherapistNotes
	}

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET start_time = $2,
		    end_time = $3,
		    duration_minutes = $4,
		    kind = $5,
		    price = $6,
		    therapist_notes_encrypted = $7,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id, start, end, int(end.Sub(start).Minutes()), kind, price, notes)

	updated, err := scanAppointment(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *PgRepository) Book(ctx context.Context, id, patientID uuid.UUID, encryptedNotes *string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET patient_id = $2,
		    status = 'booked',
		    patient_notes_encrypted = COALESCE($3, patient_notes_encrypted),
		    updated_at = now()
		WHERE id = $1
		  AND status = 'available'
		RETURNING `+appointmentColumns+`
	`, id, patientID, encryptedNotes)

	return scanAppointment(row)
}

func (r *PgRepository) Cancel(ctx context.Context, id, actorID uuid.UUID, at time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
		    cancelled_at = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status IN ('available', 'booked')
		  AND (therapist_id = $2 OR patient_id = $2)
		RETURNING `+appointmentColumns+`
	`, id, actorID, at)

	return scanAppointment(row)
}

func (r *PgRepository) Complete(ctx context.Context, id, therapistID uuid.UUID, encryptedNotes *string, at time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'completed',
		    completed_at = $3,
		    therapist_notes_encrypted = COALESCE($4, therapist_notes_encrypted),
		    updated_at = now()
		WHERE id = $1
		  AND status = 'booked'
		  AND therapist_id = $2
		RETURNING `+appointmentColumns+`
	`, id, therapistID, at, encryptedNotes)

	return scanAppointment(row)
}
