package payment

import "github.com/google/uuid"

// CreateResponse is returned from POST /payment and cached per idempotency key.
type CreateResponse struct {
	ID                 uuid.UUID    `json:"id"`
	Status             ClientStatus `json:"status"`
	CardNumberLastFour int          `json:"cardNumberLastFour"`
	ExpiryMonth        int          `json:"expiryMonth"`
	ExpiryYear         int          `json:"expiryYear"`
	Currency           Currency     `json:"currency"`
	Amount             int64        `json:"amount"`
}

// Response is returned from GET /payment/{id}. Its status is never Rejected.
type Response struct {
	ID                 uuid.UUID    `json:"id"`
	Status             ClientStatus `json:"status"`
	CardNumberLastFour int          `json:"cardNumberLastFour"`
	ExpiryMonth        int          `json:"expiryMonth"`
	ExpiryYear         int          `json:"expiryYear"`
	Currency           Currency     `json:"currency"`
	Amount             int64        `json:"amount"`
}

// ToClientStatus maps a record status to the client-visible status.
// Anything other than AUTHORIZED is reported as Declined.
func ToClientStatus(s Status) ClientStatus {
	if s == StatusAuthorized {
		return ClientAuthorized
	}
	return ClientDeclined
}

// ToCreateResponse projects a record into the creation response.
func ToCreateResponse(r Record) CreateResponse {
	return CreateResponse{
		ID:                 r.ID,
		Status:             ToClientStatus(r.Status),
		CardNumberLastFour: r.CardNumberLastFour,
		ExpiryMonth:        r.ExpiryMonth,
		ExpiryYear:         r.ExpiryYear,
		Currency:           r.Currency,
		Amount:             r.Amount,
	}
}

// ToResponse projects a record into the retrieval response.
func ToResponse(r Record) Response {
	return Response{
		ID:                 r.ID,
		Status:             ToClientStatus(r.Status),
		CardNumberLastFour: r.CardNumberLastFour,
		ExpiryMonth:        r.ExpiryMonth,
		ExpiryYear:         r.ExpiryYear,
		Currency:           r.Currency,
		Amount:             r.Amount,
	}
}
