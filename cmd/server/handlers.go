package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yourorg/payment-gateway/internal/idempotency"
	"github.com/yourorg/payment-gateway/internal/payment"
	"github.com/yourorg/payment-gateway/internal/requestctx"
	"github.com/yourorg/payment-gateway/internal/store"
	"github.com/yourorg/payment-gateway/internal/validation"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	maxRequestBodyBytes  = 1 << 20
)

// PaymentService is what the HTTP layer needs from the orchestrator.
type PaymentService interface {
	Process(ctx context.Context, key string, req payment.Request) (payment.CreateResponse, error)
	Get(ctx context.Context, id uuid.UUID) (payment.Response, error)
}

// BodyValidator turns a raw body into a validated request.
type BodyValidator interface {
	ValidateBody(body []byte) (payment.Request, error)
}

type rejectedResponse struct {
	Status payment.ClientStatus    `json:"status"`
	Errors []validation.FieldError `json:"errors"`
}

type paymentHandler struct {
	service   PaymentService
	validator BodyValidator
	log       *slog.Logger
}

func (h *paymentHandler) create(c *gin.Context) {
	key := strings.TrimSpace(c.GetHeader(headerIdempotencyKey))
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Required request header '" + headerIdempotencyKey + "' is not present"})
		return
	}
	ctx := requestctx.WithIdempotencyKey(c.Request.Context(), key)
	c.Request = c.Request.WithContext(ctx)

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBodyBytes))
	if err != nil {
		h.reject(c, &validation.Error{Fields: []validation.FieldError{{Field: "body", Message: "Malformed JSON request body"}}})
		return
	}

	req, err := h.validator.ValidateBody(body)
	if err != nil {
		var verr *validation.Error
		if errors.As(err, &verr) {
			h.reject(c, verr)
			return
		}
		h.log.ErrorContext(ctx, "request validation failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}

	resp, err := h.service.Process(ctx, key, req)
	switch {
	case errors.Is(err, idempotency.ErrInProgress):
		c.JSON(http.StatusConflict, gin.H{"message": "A request with this Idempotency-Key is already being processed"})
	case err != nil:
		h.log.ErrorContext(ctx, "payment processing failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
	default:
		c.JSON(http.StatusOK, resp)
	}
}

func (h *paymentHandler) reject(c *gin.Context, verr *validation.Error) {
	h.log.InfoContext(c.Request.Context(), "payment rejected", "errors", verr.Fields)
	c.JSON(http.StatusBadRequest, rejectedResponse{
		Status: payment.ClientRejected,
		Errors: verr.Fields,
	})
}

func (h *paymentHandler) get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request parameter"})
		return
	}

	resp, err := h.service.Get(c.Request.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "Page not found"})
	case err != nil:
		h.log.ErrorContext(c.Request.Context(), "payment retrieval failed", "payment_id", id, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
	default:
		c.JSON(http.StatusOK, resp)
	}
}
