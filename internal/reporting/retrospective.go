// Package reporting summarizes a stream of audit events.
package reporting

import (
	"time"

	"github.com/yourorg/payment-gateway/internal/audit"
)

// RetrospectiveReport summarizes payment activity over a window of audit events.
type RetrospectiveReport struct {
	TotalAttempts        int              // payment.pending events, one per non-replayed request
	AuthorizedPayments   int
	DeclinedPayments     int              // declined by the authorizer
	CompensatedPayments  int              // removed after a downstream failure
	AuthorizedAmount     map[string]int64 // per currency, authorized payments only
	FailureReasons       map[string]int   // reason of each compensation
	DateFrom             time.Time
	DateTo               time.Time
	ProcessingDuration   time.Duration
	AuthorizationRatePct float64 // authorized / attempts
	CompensationRatePct  float64 // compensated / attempts
}

// RetrospectiveReporter generates retrospective reports from audit events.
type RetrospectiveReporter struct{}

// NewRetrospectiveReporter creates a new RetrospectiveReporter.
func NewRetrospectiveReporter() *RetrospectiveReporter {
	return &RetrospectiveReporter{}
}

// GenerateRetrospective analyzes events and produces a RetrospectiveReport.
// Unknown event types only widen the date range.
func (rr *RetrospectiveReporter) GenerateRetrospective(events []audit.Event) (*RetrospectiveReport, error) {
	report := &RetrospectiveReport{
		AuthorizedAmount: make(map[string]int64),
		FailureReasons:   make(map[string]int),
	}
	if len(events) == 0 {
		return report, nil
	}

	report.DateFrom = events[0].OccurredAt
	report.DateTo = events[0].OccurredAt
	for _, e := range events {
		if e.OccurredAt.Before(report.DateFrom) {
			report.DateFrom = e.OccurredAt
		}
		if e.OccurredAt.After(report.DateTo) {
			report.DateTo = e.OccurredAt
		}

		switch e.Type {
		case audit.TypePending:
			report.TotalAttempts++
		case audit.TypeAuthorized:
			report.AuthorizedPayments++
			report.AuthorizedAmount[e.Currency] += e.Amount
		case audit.TypeDeclined:
			report.DeclinedPayments++
		case audit.TypeCompensated:
			report.CompensatedPayments++
			if e.Reason != "" {
				report.FailureReasons[e.Reason]++
			}
		}
	}
	report.ProcessingDuration = report.DateTo.Sub(report.DateFrom)

	if report.TotalAttempts > 0 {
		report.AuthorizationRatePct = float64(report.AuthorizedPayments) * 100 / float64(report.TotalAttempts)
		report.CompensationRatePct = float64(report.CompensatedPayments) * 100 / float64(report.TotalAttempts)
	}
	return report, nil
}
