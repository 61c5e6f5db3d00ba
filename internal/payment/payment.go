// Package payment holds the payment record, the validated request the
// orchestrator consumes and the client-facing response shapes.
package payment

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a stored payment record.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusAuthorized Status = "AUTHORIZED"
	StatusDeclined   Status = "DECLINED"
)

// Terminal reports whether the record has left PENDING.
func (s Status) Terminal() bool {
	return s == StatusAuthorized || s == StatusDeclined
}

// ClientStatus is the status exposed to API clients.
type ClientStatus string

const (
	ClientAuthorized ClientStatus = "Authorized"
	ClientDeclined   ClientStatus = "Declined"
	ClientRejected   ClientStatus = "Rejected"
)

// Currency is one of the supported ISO currency codes.
type Currency string

const (
	USD Currency = "USD"
	GBP Currency = "GBP"
	EUR Currency = "EUR"
)

// Currencies lists every supported currency in a stable order.
var Currencies = []Currency{USD, GBP, EUR}

// IsSupported reports whether c is one of Currencies.
func (c Currency) IsSupported() bool {
	for _, s := range Currencies {
		if c == s {
			return true
		}
	}
	return false
}

// Record is the durable unit of truth for a payment attempt.
type Record struct {
	ID                 uuid.UUID
	Status             Status
	CardNumberLastFour int
	ExpiryMonth        int
	ExpiryYear         int
	Currency           Currency
	Amount             int64
	AuthorizationCode  string
	Authorized         *bool
}

// Request is a payment request that already passed validation.
type Request struct {
	CardNumber  string
	ExpiryMonth int
	ExpiryYear  int
	Currency    Currency
	Amount      int64
	CVV         string
}

// ExpiryDate formats the expiry as MM/YYYY, the format the acquiring bank expects.
func (r Request) ExpiryDate() string {
	return fmt.Sprintf("%02d/%d", r.ExpiryMonth, r.ExpiryYear)
}

// LastFour returns the integer value of the trailing four characters of the
// card number.
func LastFour(cardNumber string) (int, error) {
	if len(cardNumber) < 4 {
		return 0, fmt.Errorf("payment: card number too short for last four digits")
	}
	n, err := strconv.Atoi(cardNumber[len(cardNumber)-4:])
	if err != nil {
		return 0, fmt.Errorf("payment: card number suffix is not numeric: %w", err)
	}
	return n, nil
}

// NewPendingRecord builds the provisional record persisted before the
// authorizer is called.
func NewPendingRecord(id uuid.UUID, req Request) (Record, error) {
	lastFour, err := LastFour(req.CardNumber)
	if err != nil {
		return Record{}, err
	}
	return Record{
		ID:                 id,
		Status:             StatusPending,
		CardNumberLastFour: lastFour,
		ExpiryMonth:        req.ExpiryMonth,
		ExpiryYear:         req.ExpiryYear,
		Currency:           req.Currency,
		Amount:             req.Amount,
	}, nil
}
