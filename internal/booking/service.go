package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/DiggAiHH/abu-abad-sub000/internal/auth"
	redisclient "github.com/DiggAiHH/abu-abad-sub000/internal/redis"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrSlotOverlap       = errors.New("slot overlaps an existing appointment")
	ErrSlotNotAvailable  = errors.New("slot not available")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotPermitted      = errors.New("not permitted")
	ErrCalendarBusy      = errors.New("calendar is being modified, please retry")
)

type Service struct {
	repo   Repository
	locker redisclient.Locker
	log    zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		log:    log,
		now:    time.Now,
	}
}

type CreateSlotParams struct {
	StartTime      time.Time
	EndTime        time.Time
	Kind           Kind
	Price          float64
	TherapistNotes *string
}

// CreateSlot opens a new Available slot for the acting therapist. The
// non-overlap invariant is enforced inside the repository transaction; the
// Redis calendar lock in front of it only keeps concurrent writers to one
// therapist's calendar from stacking up on the locked rows.
func (s *Service) CreateSlot(ctx context.Context, actor auth.Actor, p CreateSlotParams) (*Appointment, error) {
	if !actor.IsTherapist() {
		return nil, ErrNotPermitted
	}
	if !p.EndTime.After(p.StartTime) {
		return nil, fmt.Errorf("%w: end time must be after start time", ErrInvalidInput)
	}
	if !p.StartTime.After(s.now()) {
		return nil, fmt.Errorf("%w: start time must be in the future", ErrInvalidInput)
	}
	if p.Price <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", ErrInvalidInput)
	}
	if !ValidKind(p.Kind) {
		return nil, fmt.Errorf("%w: unknown appointment kind %q", ErrInvalidInput, p.Kind)
	}

	appt := &Appointment{
		ID:              uuid.New(),
		TherapistID:     actor.ID,
		StartTime:       p.StartTime,
		EndTime:         p.EndTime,
		DurationMinutes: int(p.EndTime.Sub(p.StartTime).Minutes()),
		Kind:            p.Kind,
		Price:           p.Price,
		Status:          StatusAvailable,
		PaymentStatus:   PaymentPending,
		TherapistNotes:  p.TherapistNotes,
		RoomID:          uuid.New(),
	}

	err := s.locker.WithCalendarLock(ctx, actor.ID, func(lockCtx context.Context) error {
		return s.repo.CreateSlot(lockCtx, appt)
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrCalendarBusy
		}
		if errors.Is(err, ErrSlotOverlap) {
			return nil, err
		}
		return nil, fmt.Errorf("create slot: %w", err)
	}

	s.log.Info().
		Str("appointment_id", appt.ID.String()).
		Str("therapist_id", actor.ID.String()).
		Time("start", appt.StartTime).
		Msg("slot created")

	return s.repo.GetByID(ctx, appt.ID)
}

// ListAvailable is a lock-free read of upcoming open slots.
func (s *Service) ListAvailable(ctx context.Context, f AvailableFilter) ([]Appointment, error) {
	appts, err := s.repo.ListAvailable(ctx, f, s.now())
	if err != nil {
		return nil, fmt.Errorf("list available: %w", err)
	}
	return appts, nil
}

// ListMine returns the actor's own appointments. Each role only ever sees
// its own ciphertext blob; the other party's notes are stripped here.
func (s *Service) ListMine(ctx context.Context, actor auth.Actor, f MineFilter) ([]Appointment, error) {
	appts, err := s.repo.ListByParty(ctx, actor.ID, actor.IsTherapist(), f, s.now())
	if err != nil {
		return nil, fmt.Errorf("list mine: %w", err)
	}
	for i := range appts {
		if actor.IsTherapist() {
			appts[i].PatientNotes = nil
		} else {
			appts[i].TherapistNotes = nil
		}
	}
	return appts, nil
}

func (s *Service) UpdateSlot(ctx context.Context, actor auth.Actor, id uuid.UUID, patch SlotPatch) (*Appointment, error) {
	if !actor.IsTherapist() {
		return nil, ErrNotPermitted
	}
	if patch.StartTime != nil && patch.EndTime != nil && !patch.EndTime.After(*patch.StartTime) {
		return nil, fmt.Errorf("%w: end time must be after start time", ErrInvalidInput)
	}
	if patch.Price != nil && *patch.Price <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", ErrInvalidInput)
	}
	if patch.Kind != nil && !ValidKind(*patch.Kind) {
		return nil, fmt.Errorf("%w: unknown appointment kind %q", ErrInvalidInput, *patch.Kind)
	}

	updated, err := s.repo.UpdateSlot(ctx, id, actor.ID, patch)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// BookSlot assigns the acting patient to an Available slot. The repository
// performs a compare-and-swap on the single target row, so among any number
// of concurrent callers exactly one observes the Available state and wins.
func (s *Service) BookSlot(ctx context.Context, actor auth.Actor, id uuid.UUID, encryptedNotes *string) (*Appointment, error) {
	if !actor.IsPatient() {
		return nil, ErrNotPermitted
	}

	appt, err := s.repo.Book(ctx, id, actor.ID, encryptedNotes)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// No row matched: either the id is unknown or somebody else won.
			if _, getErr := s.repo.GetByID(ctx, id); getErr == nil {
				return nil, ErrSlotNotAvailable
			}
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("book slot: %w", err)
	}

	s.log.Info().
		Str("appointment_id", id.String()).
		Str("patient_id", actor.ID.String()).
		Msg("slot booked")

	return appt, nil
}

// CancelBooking cancels an Available or Booked appointment. Allowed for the
// owning therapist or the assigned patient; Completed is immutable.
func (s *Service) CancelBooking(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Appointment, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.party(actor, current) {
		return nil, ErrNotPermitted
	}

	appt, err := s.repo.Cancel(ctx, id, actor.ID, s.now())
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// The row exists but no longer matched the transition guard.
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("cancel booking: %w", err)
	}

	s.log.Info().
		Str("appointment_id", id.String()).
		Str("actor_id", actor.ID.String()).
		Msg("appointment cancelled")

	return appt, nil
}

// CompleteBooking marks a Booked appointment Completed once the session
// has taken place. Only the owning therapist may complete.
func (s *Service) CompleteBooking(ctx context.Context, actor auth.Actor, id uuid.UUID, encryptedNotes *string) (*Appointment, error) {
	if !actor.IsTherapist() {
		return nil, ErrNotPermitted
	}

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.TherapistID != actor.ID {
		return nil, ErrNotPermitted
	}

	appt, err := s.repo.Complete(ctx, id, actor.ID, encryptedNotes, s.now())
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("complete booking: %w", err)
	}

	return appt, nil
}

func (s *Service) party(actor auth.Actor, appt *Appointment) bool {
	if actor.IsTherapist() {
		return appt.TherapistID == actor.ID
	}
	return appt.PatientID != nil && *appt.PatientID == actor.ID
}
