package payment

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/DiggAiHH/abu-abad-sub000/internal/auth"
	"github.com/DiggAiHH/abu-abad-sub000/internal/booking"
)

const testSecret = "whsec_test"

func newTestReconciler() (*Reconciler, *Service, *memStore) {
	store := newMemStore()
	svc := NewService(store, apptReader{store}, &fakeGateway{}, zerolog.Nop(), "eur")
	rec := NewReconciler(store, testSecret, zerolog.Nop())
	return rec, svc, store
}

// pendingPayment creates a booked appointment with an open intent and
// returns the pending payment row.
func pendingPayment(t *testing.T, svc *Service, store *memStore) *Payment {
	t.Helper()
	patientID := uuid.New()
	appt := bookedAppointment(store, uuid.New(), patientID, 90.00)
	p, err := svc.CreateIntent(context.Background(), auth.Patient(patientID), appt.ID, 90.00)
	if err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}
	return p
}

func signedEvent(t *testing.T, eventType, intentID string) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(Event{
		ID:   "evt_" + uuid.NewString(),
		Type: eventType,
		Data: EventData{IntentID: intentID},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return payload, Sign(payload, testSecret)
}

func paymentStatus(t *testing.T, store *memStore, id uuid.UUID) *Payment {
	t.Helper()
	p, err := store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	return p
}

func TestHandleEventBadSignature(t *testing.T) {
	rec, svc, store := newTestReconciler()
	p := pendingPayment(t, svc, store)

	payload, _ := signedEvent(t, EventIntentSucceeded, p.ExternalIntentID)
	err := rec.HandleEvent(context.Background(), payload, Sign(payload, "whsec_wrong"))
	if !errors.Is(err, ErrBadSignature) {
		t.Fatalf("got %v, want ErrBadSignature", err)
	}
	if got := paymentStatus(t, store, p.ID); got.Status != StatusPending {
		t.Errorf("status = %s, state changed on a forged delivery", got.Status)
	}
}

func TestHandleEventMalformed(t *testing.T) {
	rec, _, _ := newTestReconciler()

	for name, payload := range map[string][]byte{
		"not json":          []byte("not-json"),
		"missing intent id": []byte(`{"id":"evt_1","type":"intent_succeeded","data":{}}`),
	} {
		if err := rec.HandleEvent(context.Background(), payload, Sign(payload, testSecret)); !errors.Is(err, ErrMalformedEvent) {
			t.Errorf("%s: got %v, want ErrMalformedEvent", name, err)
		}
	}
}

func TestIntentSucceeded(t *testing.T) {
	rec, svc, store := newTestReconciler()
	p := pendingPayment(t, svc, store)

	payload, sig := signedEvent(t, EventIntentSucceeded, p.ExternalIntentID)
	if err := rec.HandleEvent(context.Background(), payload, sig); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	got := paymentStatus(t, store, p.ID)
	if got.Status != StatusSucceeded {
		t.Errorf("status = %s, want succeeded", got.Status)
	}
	if got.PaidAt == nil {
		t.Error("paid_at not set")
	}
	if appt := store.appointment(p.AppointmentID); appt.PaymentStatus != booking.PaymentPaid {
		t.Errorf("appointment payment status = %s, want paid", appt.PaymentStatus)
	}
}

func TestIntentSucceededRedelivery(t *testing.T) {
	rec, svc, store := newTestReconciler()
	p := pendingPayment(t, svc, store)

	payload, sig := signedEvent(t, EventIntentSucceeded, p.ExternalIntentID)
	if err := rec.HandleEvent(context.Background(), payload, sig); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	first := paymentStatus(t, store, p.ID)

	// The gateway redelivers the identical event; it must ack without
	// touching anything.
	if err := rec.HandleEvent(context.Background(), payload, sig); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	second := paymentStatus(t, store, p.ID)
	if second.Status != StatusSucceeded {
		t.Errorf("status = %s after redelivery, want succeeded", second.Status)
	}
	if first.PaidAt == nil || second.PaidAt == nil || !second.PaidAt.Equal(*first.PaidAt) {
		t.Errorf("paid_at changed on redelivery: %v vs %v", first.PaidAt, second.PaidAt)
	}
}

func TestIntentFailed(t *testing.T) {
	rec, svc, store := newTestReconciler()
	p := pendingPayment(t, svc, store)

	payload, sig := signedEvent(t, EventIntentFailed, p.ExternalIntentID)
	if err := rec.HandleEvent(context.Background(), payload, sig); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	got := paymentStatus(t, store, p.ID)
	if got.Status != StatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
	if got.PaidAt != nil {
		t.Error("paid_at set on a failed payment")
	}

	// A failed payment is no longer live, so the slot can be paid again.
	if _, err := store.GetLiveForAppointment(context.Background(), p.AppointmentID); !errors.Is(err, ErrPaymentNotFound) {
		t.Error("failed payment still counts as live")
	}
}

func TestFailedAfterSucceededIgnored(t *testing.T) {
	rec, svc, store := newTestReconciler()
	p := pendingPayment(t, svc, store)

	payload, sig := signedEvent(t, EventIntentSucceeded, p.ExternalIntentID)
	if err := rec.HandleEvent(context.Background(), payload, sig); err != nil {
		t.Fatalf("succeeded: %v", err)
	}

	// A stale failure arriving after settlement must not regress the state.
	payload, sig = signedEvent(t, EventIntentFailed, p.ExternalIntentID)
	if err := rec.HandleEvent(context.Background(), payload, sig); err != nil {
		t.Fatalf("stale failure should ack, got: %v", err)
	}
	if got := paymentStatus(t, store, p.ID); got.Status != StatusSucceeded {
		t.Errorf("status = %s, want succeeded kept", got.Status)
	}
}

func TestChargeRefunded(t *testing.T) {
	rec, svc, store := newTestReconciler()
	p := pendingPayment(t, svc, store)

	payload, sig := signedEvent(t, EventIntentSucceeded, p.ExternalIntentID)
	if err := rec.HandleEvent(context.Background(), payload, sig); err != nil {
		t.Fatalf("succeeded: %v", err)
	}

	payload, sig = signedEvent(t, EventChargeRefunded, p.ExternalIntentID)
	if err := rec.HandleEvent(context.Background(), payload, sig); err != nil {
		t.Fatalf("refunded: %v", err)
	}

	got := paymentStatus(t, store, p.ID)
	if got.Status != StatusRefunded {
		t.Errorf("status = %s, want refunded", got.Status)
	}
	if got.RefundedAt == nil {
		t.Error("refunded_at not set")
	}
	if appt := store.appointment(p.AppointmentID); appt.PaymentStatus != booking.PaymentRefunded {
		t.Errorf("appointment payment status = %s, want refunded", appt.PaymentStatus)
	}
}

func TestRefundOnPendingIgnored(t *testing.T) {
	rec, svc, store := newTestReconciler()
	p := pendingPayment(t, svc, store)

	// charge_refunded only applies from succeeded; on a still-pending
	// payment it is acked and dropped.
	payload, sig := signedEvent(t, EventChargeRefunded, p.ExternalIntentID)
	if err := rec.HandleEvent(context.Background(), payload, sig); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if got := paymentStatus(t, store, p.ID); got.Status != StatusPending {
		t.Errorf("status = %s, want pending kept", got.Status)
	}
}

func TestUnknownIntentAcked(t *testing.T) {
	rec, _, _ := newTestReconciler()

	payload, sig := signedEvent(t, EventIntentSucceeded, "pi_never_issued")
	if err := rec.HandleEvent(context.Background(), payload, sig); err != nil {
		t.Fatalf("unknown intent should ack, got: %v", err)
	}
}

func TestUnhandledEventTypeAcked(t *testing.T) {
	rec, svc, store := newTestReconciler()
	p := pendingPayment(t, svc, store)

	payload, sig := signedEvent(t, "intent_created", p.ExternalIntentID)
	if err := rec.HandleEvent(context.Background(), payload, sig); err != nil {
		t.Fatalf("unhandled type should ack, got: %v", err)
	}
	if got := paymentStatus(t, store, p.ID); got.Status != StatusPending {
		t.Errorf("status = %s, want pending kept", got.Status)
	}
}

func TestReconcilerTimestamps(t *testing.T) {
	rec, svc, store := newTestReconciler()
	p := pendingPayment(t, svc, store)

	fixed := time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)
	rec.now = func() time.Time { return fixed }

	payload, sig := signedEvent(t, EventIntentSucceeded, p.ExternalIntentID)
	if err := rec.HandleEvent(context.Background(), payload, sig); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if got := paymentStatus(t, store, p.ID); got.PaidAt == nil || !got.PaidAt.Equal(fixed) {
		t.Errorf("paid_at = %v, want %v", got.PaidAt, fixed)
	}
}
