package main

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourorg/payment-gateway/internal/requestctx"
)

// requestContext attaches a RequestContext to every request and echoes its id.
func requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := requestctx.New(c.GetHeader(requestctx.HeaderRequestID), time.Now())
		c.Request = c.Request.WithContext(requestctx.With(c.Request.Context(), rc))
		c.Header(requestctx.HeaderRequestID, rc.RequestID)
		c.Next()
	}
}

// accessLog logs one line per request once the handler chain has finished.
func accessLog(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		ctx := c.Request.Context()
		rc, _ := requestctx.From(ctx)
		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", rc.Elapsed(time.Now()).Milliseconds(),
		}
		if rc.IdempotencyKey != "" {
			attrs = append(attrs, "idempotency_key", rc.IdempotencyKey)
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			log.ErrorContext(ctx, "request completed", attrs...)
		case status >= 400:
			log.WarnContext(ctx, "request completed", attrs...)
		default:
			log.InfoContext(ctx, "request completed", attrs...)
		}
	}
}
