// Package validation turns a raw payment creation body into a payment.Request.
// The body is first checked against its JSON contract, then decoded and run
// through an ordered list of field rules. Every failing rule is reported.
package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/yourorg/payment-gateway/internal/monitor"
	"github.com/yourorg/payment-gateway/internal/payment"
)

const (
	minCardNumberLength = 14
	maxCardNumberLength = 19
	minCVVLength        = 3
	maxCVVLength        = 4
)

// CreateRequest is the wire shape of a payment creation body.
type CreateRequest struct {
	CardNumber  string `json:"card_number"`
	ExpiryMonth int    `json:"expiry_month"`
	ExpiryYear  int    `json:"expiry_year"`
	Currency    string `json:"currency"`
	Amount      int64  `json:"amount"`
	CVV         string `json:"cvv"`
}

// FieldError is one failed rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is returned when a request is rejected.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Field + ": " + f.Message
	}
	return "validation: request rejected: " + strings.Join(msgs, "; ")
}

// rule checks one aspect of a request. skip, when set, suppresses the rule
// once an earlier rule on the same field failed.
type rule struct {
	field   string
	message string
	check   func(r CreateRequest, now time.Time) bool
	skip    func(r CreateRequest) bool
}

func isBlank(s string) bool { return strings.TrimSpace(s) == "" }

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}

func validMonth(m int) bool { return m >= 1 && m <= 12 }

var rules = []rule{
	{
		field:   "card_number",
		message: "Card number is required",
		check:   func(r CreateRequest, _ time.Time) bool { return !isBlank(r.CardNumber) },
	},
	{
		field:   "card_number",
		message: fmt.Sprintf("Card number must be between %d and %d characters", minCardNumberLength, maxCardNumberLength),
		check: func(r CreateRequest, _ time.Time) bool {
			return len(r.CardNumber) >= minCardNumberLength && len(r.CardNumber) <= maxCardNumberLength
		},
		skip: func(r CreateRequest) bool { return isBlank(r.CardNumber) },
	},
	{
		field:   "card_number",
		message: "Card number must contain only digits",
		check:   func(r CreateRequest, _ time.Time) bool { return isDigits(r.CardNumber) },
		skip:    func(r CreateRequest) bool { return isBlank(r.CardNumber) },
	},
	{
		field:   "expiry_month",
		message: "Expiry month must be between 1 and 12",
		check:   func(r CreateRequest, _ time.Time) bool { return validMonth(r.ExpiryMonth) },
	},
	{
		field:   "currency",
		message: "Currency must be one of: USD, GBP, EUR",
		check:   func(r CreateRequest, _ time.Time) bool { return payment.Currency(r.Currency).IsSupported() },
	},
	{
		field:   "amount",
		message: "Amount must not be negative",
		check:   func(r CreateRequest, _ time.Time) bool { return r.Amount >= 0 },
	},
	{
		field:   "cvv",
		message: "CVV is required",
		check:   func(r CreateRequest, _ time.Time) bool { return !isBlank(r.CVV) },
	},
	{
		field:   "cvv",
		message: fmt.Sprintf("CVV must be %d or %d characters", minCVVLength, maxCVVLength),
		check:   func(r CreateRequest, _ time.Time) bool { return len(r.CVV) >= minCVVLength && len(r.CVV) <= maxCVVLength },
		skip:    func(r CreateRequest) bool { return isBlank(r.CVV) },
	},
	{
		field:   "cvv",
		message: "CVV must contain only digits",
		check:   func(r CreateRequest, _ time.Time) bool { return isDigits(r.CVV) },
		skip:    func(r CreateRequest) bool { return isBlank(r.CVV) },
	},
	{
		field:   "expiry_date",
		message: "Card expiry date must not be in the past",
		check: func(r CreateRequest, now time.Time) bool {
			if r.ExpiryYear != now.Year() {
				return r.ExpiryYear > now.Year()
			}
			return r.ExpiryMonth >= int(now.Month())
		},
		skip: func(r CreateRequest) bool { return !validMonth(r.ExpiryMonth) },
	},
}

// Validate runs every rule against req. now fixes the current month for the
// expiry check.
func Validate(req CreateRequest, now time.Time) (payment.Request, error) {
	var failed []FieldError
	for _, rl := range rules {
		if rl.skip != nil && rl.skip(req) {
			continue
		}
		if !rl.check(req, now) {
			failed = append(failed, FieldError{Field: rl.field, Message: rl.message})
		}
	}
	if len(failed) > 0 {
		return payment.Request{}, &Error{Fields: failed}
	}
	return payment.Request{
		CardNumber:  req.CardNumber,
		ExpiryMonth: req.ExpiryMonth,
		ExpiryYear:  req.ExpiryYear,
		Currency:    payment.Currency(req.Currency),
		Amount:      req.Amount,
		CVV:         req.CVV,
	}, nil
}

// Validator checks raw bodies against the request contract before Validate.
type Validator struct {
	contract *monitor.ContractMonitor
	now      func() time.Time
}

// NewValidator returns a Validator using the embedded payment request contract.
func NewValidator() *Validator {
	return &Validator{contract: monitor.NewPaymentRequestMonitor(), now: time.Now}
}

// ValidateBody checks body against the contract, decodes it and validates
// the result. Contract violations and undecodable bodies are reported as an
// *Error like any other rejection.
func (v *Validator) ValidateBody(body []byte) (payment.Request, error) {
	valid, violations, err := v.contract.Validate(body)
	if err != nil {
		return payment.Request{}, &Error{Fields: []FieldError{{Field: "body", Message: "Malformed JSON request body"}}}
	}
	if !valid {
		fields := make([]FieldError, len(violations))
		for i, vi := range violations {
			fields[i] = FieldError{Field: vi.Field, Message: vi.Message}
		}
		return payment.Request{}, &Error{Fields: fields}
	}

	var req CreateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return payment.Request{}, &Error{Fields: []FieldError{{Field: "body", Message: "Malformed JSON request body"}}}
	}
	return Validate(req, v.now())
}
