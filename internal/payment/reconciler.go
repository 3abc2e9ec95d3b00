package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

const (
	EventIntentSucceeded = "intent_succeeded"
	EventIntentFailed    = "intent_failed"
	EventChargeRefunded  = "charge_refunded"
)

var (
	ErrBadSignature   = errors.New("webhook signature verification failed")
	ErrMalformedEvent = errors.New("malformed webhook event")
)

// Event is the transport-agnostic shape of a gateway settlement event.
// Delivery may arrive over HTTP, a queue, or polling; the reconciler only
// sees the payload and its signature.
type Event struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

type EventData struct {
	IntentID string `json:"intent_id"`
}

// transition returns the compare-and-swap pair for an event type. Encoding
// the required prior state here is what makes redelivered and out-of-order
// events safe: a Succeeded payment can never regress to Failed because
// intent_failed only applies from Pending.
func transition(eventType string) (from, to Status, ok bool) {
	switch eventType {
	case EventIntentSucceeded:
		return StatusPending, StatusSucceeded, true
	case EventIntentFailed:
		return StatusPending, StatusFailed, true
	case EventChargeRefunded:
		return StatusSucceeded, StatusRefunded, true
	default:
		return "", "", false
	}
}

// Sign computes the hex HMAC-SHA256 of a payload under the shared webhook
// secret. The gateway sends this value alongside each delivery.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a delivery signature in constant time.
func VerifySignature(payload []byte, signature, secret string) bool {
	expected := Sign(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Reconciler applies verified gateway events to local payment state. Every
// transition is one transaction keyed by the external intent id, so applying
// the identical event twice is a no-op.
type Reconciler struct {
	repo   Repository
	secret string
	log    zerolog.Logger
	now    func() time.Time
}

func NewReconciler(repo Repository, webhookSecret string, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		repo:   repo,
		secret: webhookSecret,
		log:    log,
		now:    time.Now,
	}
}

// HandleEvent verifies and applies one raw delivery. Signature failures are
// rejected without touching any state. Events that cannot legally apply to
// the current payment state (replays, out-of-order deliveries, unknown
// intents) are logged and acknowledged, never retried into a regression.
func (r *Reconciler) HandleEvent(ctx context.Context, payload []byte, signature string) error {
	if !VerifySignature(payload, signature, r.secret) {
		r.log.Warn().Msg("webhook rejected: bad signature")
		return ErrBadSignature
	}

	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		r.log.Warn().Err(err).Msg("webhook rejected: unparseable payload")
		return ErrMalformedEvent
	}
	if ev.Data.IntentID == "" {
		r.log.Warn().Str("event_type", ev.Type).Msg("webhook rejected: missing intent id")
		return ErrMalformedEvent
	}

	from, to, ok := transition(ev.Type)
	if !ok {
		r.log.Debug().Str("event_type", ev.Type).Msg("ignoring unhandled event type")
		return nil
	}

	p, err := r.repo.ApplyTransition(ctx, ev.Data.IntentID, from, to, r.now())
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			r.explainMiss(ctx, ev, to)
			return nil
		}
		return err
	}

	r.log.Info().
		Str("event_type", ev.Type).
		Str("external_intent_id", ev.Data.IntentID).
		Str("payment_id", p.ID.String()).
		Str("status", string(p.Status)).
		Msg("payment reconciled")

	return nil
}

// explainMiss logs why a compare-and-swap found no row. The classification
// is advisory; the swap already guaranteed nothing regressed.
func (r *Reconciler) explainMiss(ctx context.Context, ev Event, to Status) {
	cur, err := r.repo.GetByIntentID(ctx, ev.Data.IntentID)
	if err != nil {
		r.log.Warn().
			Str("event_type", ev.Type).
			Str("external_intent_id", ev.Data.IntentID).
			Msg("event for unknown payment intent")
		return
	}

	if cur.Status == to {
		r.log.Debug().
			Str("event_type", ev.Type).
			Str("external_intent_id", ev.Data.IntentID).
			Msg("duplicate delivery, already applied")
		return
	}

	r.log.Warn().
		Str("event_type", ev.Type).
		Str("external_intent_id", ev.Data.IntentID).
		Str("current_status", string(cur.Status)).
		Msg("out-of-order event ignored, current state kept")
}
