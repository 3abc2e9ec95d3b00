package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrAppointmentNotFound = errors.New("appointment not found")

type AvailableFilter struct {
	TherapistID *uuid.UUID
	From        *time.Time
	To          *time.Time
}

type MineFilter struct {
	Status   *Status
	Upcoming bool
}

// SlotPatch carries the fields a therapist may change on an existing slot.
// Nil pointers mean "leave unchanged".
type SlotPatch struct {
	StartTime      *time.Time
	EndTime        *time.Time
	Kind           *Kind
	Price          *float64
	TherapistNotes *string
}

// Repository contains all DB interactions needed by the service.
//
// The conditional mutations (Book, Cancel, Complete) are compare-and-swap
// updates: the required prior status (and, for Cancel/Complete, the acting
// party) is part of the WHERE clause, so the row transition commits for at
// most one caller and everyone else observes no matching row.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// CreateSlot checks the non-overlap invariant for the owning therapist
	// inside one transaction, locking the candidate overlap range, and
	// inserts the slot. Returns ErrSlotOverlap on a conflict.
	CreateSlot(ctx context.Context, appt *Appointment) error

	ListAvailable(ctx context.Context, f AvailableFilter, now time.Time) ([]Appointment, error)
	ListByParty(ctx context.Context, partyID uuid.UUID, asTherapist bool, f MineFilter, now time.Time) ([]Appointment, error)

	// UpdateSlot applies the patch under a row lock, re-checking overlap when
	// the times move. Completed slots are immutable.
	UpdateSlot(ctx context.Context, id, therapistID uuid.UUID, patch SlotPatch) (*Appointment, error)

	// Book flips one Available row to Booked for the given patient.
	Book(ctx context.Context, id, patientID uuid.UUID, encryptedNotes *string) (*Appointment, error)

	// Cancel flips an Available or Booked row to Cancelled when actorID is
	// the owning therapist or the assigned patient.
	Cancel(ctx context.Context, id, actorID uuid.UUID, at time.Time) (*Appointment, error)

	// Complete flips a Booked row owned by therapistID to Completed.
	Complete(ctx context.Context, id, therapistID uuid.UUID, encryptedNotes *string, at time.Time) (*Appointment, error)
}
