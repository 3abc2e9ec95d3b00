package booking

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memRepository mimics the row-locked Postgres repository for tests: every
// conditional mutation runs atomically under one mutex, matching the
// all-or-nothing visibility a FOR UPDATE transaction provides.
type memRepository struct {
	mu    sync.Mutex
	appts map[uuid.UUID]*Appointment
}

func newMemRepository() *memRepository {
	return &memRepository{appts: make(map[uuid.UUID]*Appointment)}
}

func (r *memRepository) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memRepository) CreateSlot(_ context.Context, appt *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, other := range r.appts {
		if other.TherapistID != appt.TherapistID || other.Status == StatusCancelled {
			continue
		}
		if other.StartTime.Before(appt.EndTime) && other.EndTime.After(appt.StartTime) {
			return ErrSlotOverlap
		}
	}

	cp := *appt
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	r.appts[cp.ID] = &cp
	return nil
}

func (r *memRepository) ListAvailable(_ context.Context, f AvailableFilter, now time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Appointment
	for _, a := range r.appts {
		if a.Status != StatusAvailable || !a.StartTime.After(now) {
			continue
		}
		if f.TherapistID != nil && a.TherapistID != *f.TherapistID {
			continue
		}
		if f.From != nil && a.StartTime.Before(*f.From) {
			continue
		}
		if f.To != nil && a.EndTime.After(*f.To) {
			continue
		}
		result = append(result, *a)
	}
	return result, nil
}

func (r *memRepository) ListByParty(_ context.Context, partyID uuid.UUID, asTherapist bool, f MineFilter, now time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Appointment
	for _, a := range r.appts {
		if asTherapist {
			if a.TherapistID != partyID {
				continue
			}
		} else if a.PatientID == nil || *a.PatientID != partyID {
			continue
		}
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		if f.Upcoming && !a.StartTime.After(now) {
			continue
		}
		result = append(result, *a)
	}
	return result, nil
}

func (r *memRepository) UpdateSlot(_ context.Context, id, therapistID uuid.UUID, patch SlotPatch) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.TherapistID != therapistID {
		return nil, ErrNotPermitted
	}
	if a.Terminal() {
		return nil, ErrInvalidTransition
	}

	start, end := a.StartTime, a.EndTime
	if patch.StartTime != nil {
		start = *patch.StartTime
	}
	if patch.EndTime != nil {
		end = *patch.EndTime
	}
	if !end.After(start) {
		return nil, ErrInvalidInput
	}

	if patch.StartTime != nil || patch.EndTime != nil {
		for _, other := range r.appts {
			if other.ID == id || other.TherapistID != therapistID || other.Status == StatusCancelled {
				continue
			}
			if other.StartTime.Before(end) && other.EndTime.After(start) {
				return nil, ErrSlotOverlap
			}
		}
	}

	a.StartTime = start
	a.EndTime = end
	a.DurationMinutes = int(end.Sub(start).Minutes())
	if patch.Kind != nil {
		a.Kind = *patch.Kind
	}
	if patch.Price != nil {
		a.Price = *patch.Price
	}
	if patch.TherapistNotes != nil {
		a.TherapistNotes = patch.TherapistNotes
	}
	a.UpdatedAt = time.Now()

	cp := *a
	return &cp, nil
}

func (r *memRepository) Book(_ context.Context, id, patientID uuid.UUID, encryptedNotes *string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appts[id]
	if !ok || a.Status != StatusAvailable {
		return nil, ErrAppointmentNotFound
	}

	pid := patientID
	a.PatientID = &pid
	a.Status = StatusBooked
	if encryptedNotes != nil {
		a.PatientNotes = encryptedNotes
	}
	a.UpdatedAt = time.Now()

	cp := *a
	return &cp, nil
}

func (r *memRepository) Cancel(_ context.Context, id, actorID uuid.UUID, at time.Time) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status != StatusAvailable && a.Status != StatusBooked {
		return nil, ErrAppointmentNotFound
	}
	if a.TherapistID != actorID && (a.PatientID == nil || *a.PatientID != actorID) {
		return nil, ErrAppointmentNotFound
	}

	a.Status = StatusCancelled
	cancelled := at
	a.CancelledAt = &cancelled
	a.UpdatedAt = time.Now()

	cp := *a
	return &cp, nil
}

func (r *memRepository) Complete(_ context.Context, id, therapistID uuid.UUID, encryptedNotes *string, at time.Time) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appts[id]
	if !ok || a.Status != StatusBooked || a.TherapistID != therapistID {
		return nil, ErrAppointmentNotFound
	}

	a.Status = StatusCompleted
	completed := at
	a.CompletedAt = &completed
	if encryptedNotes != nil {
		a.TherapistNotes = encryptedNotes
	}
	a.UpdatedAt = time.Now()

	cp := *a
	return &cp, nil
}

// passLocker runs the critical section without any distributed lock, the
// way a single-node test harness would.
type passLocker struct{}

func (passLocker) WithCalendarLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
