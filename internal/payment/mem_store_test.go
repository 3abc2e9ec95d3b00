package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DiggAiHH/abu-abad-sub000/internal/booking"
)

// memStore backs both repository interfaces for tests. Mutations run
// atomically under one mutex, mirroring the transactional visibility of the
// Postgres implementation, including the partial-unique-index guarantee of
// at most one live payment per appointment.
type memStore struct {
	mu       sync.Mutex
	appts    map[uuid.UUID]*booking.Appointment
	payments map[uuid.UUID]*Payment
}

func newMemStore() *memStore {
	return &memStore{
		appts:    make(map[uuid.UUID]*booking.Appointment),
		payments: make(map[uuid.UUID]*Payment),
	}
}

func (s *memStore) addAppointment(a booking.Appointment) *booking.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := a
	s.appts[cp.ID] = &cp
	return &cp
}

func (s *memStore) appointment(id uuid.UUID) booking.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.appts[id]
}

// payment.Repository

func (s *memStore) GetByID(_ context.Context, id uuid.UUID) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) GetByIntentID(_ context.Context, intentID string) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.payments {
		if p.ExternalIntentID == intentID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrPaymentNotFound
}

func (s *memStore) GetLiveForAppointment(_ context.Context, appointmentID uuid.UUID) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveForAppointmentLocked(appointmentID)
}

func (s *memStore) liveForAppointmentLocked(appointmentID uuid.UUID) (*Payment, error) {
	for _, p := range s.payments {
		if p.AppointmentID == appointmentID && p.Status.Live() {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrPaymentNotFound
}

func (s *memStore) ListByParty(_ context.Context, partyID uuid.UUID, asTherapist bool) ([]Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []Payment
	for _, p := range s.payments {
		if asTherapist && p.TherapistID == partyID || !asTherapist && p.PatientID == partyID {
			result = append(result, *p)
		}
	}
	return result, nil
}

func (s *memStore) CountForAppointment(_ context.Context, appointmentID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	for _, p := range s.payments {
		if p.AppointmentID == appointmentID {
			n++
		}
	}
	return n, nil
}

func (s *memStore) CreatePending(_ context.Context, p *Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, ok := s.appts[p.AppointmentID]
	if !ok {
		return booking.ErrAppointmentNotFound
	}
	if appt.Status != booking.StatusBooked {
		return ErrNotPayable
	}
	if _, err := s.liveForAppointmentLocked(p.AppointmentID); err == nil {
		return ErrPaymentExists
	}
	for _, other := range s.payments {
		if other.ExternalIntentID == p.ExternalIntentID {
			return ErrPaymentExists
		}
	}

	cp := *p
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	s.payments[cp.ID] = &cp

	pid := cp.ID
	appt.PaymentID = &pid
	return nil
}

func (s *memStore) ApplyTransition(_ context.Context, intentID string, from, to Status, at time.Time) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.payments {
		if p.ExternalIntentID != intentID || p.Status != from {
			continue
		}

		p.Status = to
		ts := at
		switch to {
		case StatusSucceeded:
			p.PaidAt = &ts
		case StatusRefunded:
			p.RefundedAt = &ts
		}
		p.UpdatedAt = time.Now()

		if appt, ok := s.appts[p.AppointmentID]; ok {
			switch to {
			case StatusSucceeded:
				appt.PaymentStatus = booking.PaymentPaid
			case StatusRefunded:
				appt.PaymentStatus = booking.PaymentRefunded
			}
		}

		cp := *p
		return &cp, nil
	}

	return nil, ErrPaymentNotFound
}

// apptReader exposes only the appointment lookup the payment service needs;
// the remaining booking.Repository methods are never reached in these tests.
type apptReader struct {
	*memStore
}

func (r apptReader) GetByID(_ context.Context, id uuid.UUID) (*booking.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appts[id]
	if !ok {
		return nil, booking.ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (apptReader) CreateSlot(context.Context, *booking.Appointment) error {
	return errors.New("not implemented")
}

func (apptReader) ListAvailable(context.Context, booking.AvailableFilter, time.Time) ([]booking.Appointment, error) {
	return nil, errors.New("not implemented")
}

func (apptReader) ListByParty(context.Context, uuid.UUID, bool, booking.MineFilter, time.Time) ([]booking.Appointment, error) {
	return nil, errors.New("not implemented")
}

func (apptReader) UpdateSlot(context.Context, uuid.UUID, uuid.UUID, booking.SlotPatch) (*booking.Appointment, error) {
	return nil, errors.New("not implemented")
}

func (apptReader) Book(context.Context, uuid.UUID, uuid.UUID, *string) (*booking.Appointment, error) {
	return nil, errors.New("not implemented")
}

func (apptReader) Cancel(context.Context, uuid.UUID, uuid.UUID, time.Time) (*booking.Appointment, error) {
	return nil, errors.New("not implemented")
}

func (apptReader) Complete(context.Context, uuid.UUID, uuid.UUID, *string, time.Time) (*booking.Appointment, error) {
	return nil, errors.New("not implemented")
}

// fakeGateway records calls and can be told to fail.
type fakeGateway struct {
	mu          sync.Mutex
	failCreate  bool
	failRefund  bool
	createCalls []CreateIntentParams
	refundedIDs []string
	intentByKey map[string]string
}

func (g *fakeGateway) CreateIntent(_ context.Context, p CreateIntentParams) (*Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.failCreate {
		return nil, fmt.Errorf("%w: connection timed out", ErrGatewayUnavailable)
	}

	g.createCalls = append(g.createCalls, p)

	// Same idempotency key yields the same intent, like a real gateway.
	if g.intentByKey == nil {
		g.intentByKey = make(map[string]string)
	}
	id, ok := g.intentByKey[p.IdempotencyKey]
	if !ok {
		id = fmt.Sprintf("pi_%d", len(g.intentByKey)+1)
		g.intentByKey[p.IdempotencyKey] = id
	}
	return &Intent{ID: id}, nil
}

func (g *fakeGateway) Refund(_ context.Context, externalIntentID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.failRefund {
		return "", fmt.Errorf("%w: connection timed out", ErrGatewayUnavailable)
	}

	g.refundedIDs = append(g.refundedIDs, externalIntentID)
	return "re_" + externalIntentID, nil
}
