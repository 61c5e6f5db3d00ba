// Package audit publishes payment lifecycle events. Events carry the masked
// card (last four digits only) and never the card number or CVV.
package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/payment-gateway/internal/payment"
)

// Type names a lifecycle transition.
type Type string

const (
	TypePending     Type = "payment.pending"
	TypeAuthorized  Type = "payment.authorized"
	TypeDeclined    Type = "payment.declined"
	TypeCompensated Type = "payment.compensated"
)

// Event is one lifecycle transition of a payment.
type Event struct {
	ID                 string    `json:"id"`
	Type               Type      `json:"type"`
	PaymentID          string    `json:"payment_id"`
	IdempotencyKey     string    `json:"idempotency_key"`
	Status             string    `json:"status"`
	CardNumberLastFour int       `json:"card_number_last_four"`
	Currency           string    `json:"currency"`
	Amount             int64     `json:"amount"`
	Reason             string    `json:"reason,omitempty"`
	OccurredAt         time.Time `json:"occurred_at"`
}

// NewEvent builds an event from the record as it stands after the transition.
func NewEvent(typ Type, key string, rec payment.Record, reason string) Event {
	return Event{
		ID:                 uuid.NewString(),
		Type:               typ,
		PaymentID:          rec.ID.String(),
		IdempotencyKey:     key,
		Status:             string(rec.Status),
		CardNumberLastFour: rec.CardNumberLastFour,
		Currency:           string(rec.Currency),
		Amount:             rec.Amount,
		Reason:             reason,
		OccurredAt:         time.Now().UTC(),
	}
}

// Publisher delivers audit events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// LogPublisher writes events to a structured logger.
type LogPublisher struct {
	log *slog.Logger
}

func NewLogPublisher(log *slog.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(ctx context.Context, e Event) error {
	p.log.InfoContext(ctx, "audit event",
		"event_id", e.ID,
		"type", e.Type,
		"payment_id", e.PaymentID,
		"idempotency_key", e.IdempotencyKey,
		"status", e.Status,
		"card_last_four", e.CardNumberLastFour,
		"currency", e.Currency,
		"amount", e.Amount,
		"reason", e.Reason,
	)
	return nil
}

// JSONLinesPublisher appends one JSON document per event to w. The output
// is what ReadEvents consumes.
type JSONLinesPublisher struct {
	mu sync.Mutex
	w  io.Writer
}

func NewJSONLinesPublisher(w io.Writer) *JSONLinesPublisher {
	return &JSONLinesPublisher{w: w}
}

func (p *JSONLinesPublisher) Publish(_ context.Context, e Event) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: encode event %s: %w", e.ID, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: write event %s: %w", e.ID, err)
	}
	return nil
}

// ReadEvents decodes a JSON-lines event stream. Blank lines are skipped.
func ReadEvents(r io.Reader) ([]Event, error) {
	var events []Event
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("audit: line %d: %w", line, err)
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: read events: %w", err)
	}
	return events, nil
}
