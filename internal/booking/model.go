package booking

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusAvailable Status = "available"
	StatusBooked    Status = "booked"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

type Kind string

const (
	KindVideo    Kind = "video"
	KindAudio    Kind = "audio"
	KindInPerson Kind = "in_person"
)

func ValidKind(k Kind) bool {
	switch k {
	case KindVideo, KindAudio, KindInPerson:
		return true
	}
	return false
}

// Appointment is a therapist-owned bookable slot. PatientID is set exactly
// while the slot is booked or completed; a cancelled slot keeps the last
// assigned patient for audit. Note fields hold opaque ciphertext only.
type Appointment struct {
	ID              uuid.UUID
	TherapistID     uuid.UUID
	PatientID       *uuid.UUID
	StartTime       time.Time
	EndTime         time.Time
	DurationMinutes int
	Kind            Kind
	Price           float64
	Status          Status
	PaymentStatus   PaymentStatus
	PaymentID       *uuid.UUID
	TherapistNotes  *string
	PatientNotes    *string
	RoomID          uuid.UUID
	CancelledAt     *time.Time
	CompletedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Terminal reports whether no further status transitions are allowed.
func (a *Appointment) Terminal() bool {
	return a.Status == StatusCompleted || a.Status == StatusCancelled
}
