// Package monitor checks request bodies against their JSON contract before
// they are decoded.
package monitor

import (
	_ "embed"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema/payment_request.json
var paymentRequestSchema []byte

// Violation is one contract breach, keyed by the offending JSON field.
type Violation struct {
	Field   string
	Message string
}

func (v Violation) String() string {
	return v.Field + ": " + v.Message
}

// ContractMonitor validates incoming requests against a JSON schema.
type ContractMonitor struct {
	schema *gojsonschema.Schema
	labels map[string]string
}

// NewContractMonitor compiles the given schema. labels maps JSON field names
// to the human-readable names used in "is required" messages.
func NewContractMonitor(schema []byte, labels map[string]string) (*ContractMonitor, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("error loading or compiling schema: %w", err)
	}
	return &ContractMonitor{schema: compiled, labels: labels}, nil
}

// NewPaymentRequestMonitor returns a monitor for the payment creation body.
func NewPaymentRequestMonitor() *ContractMonitor {
	cm, err := NewContractMonitor(paymentRequestSchema, map[string]string{
		"card_number":  "Card number",
		"expiry_month": "Expiry month",
		"expiry_year":  "Expiry year",
		"currency":     "Currency",
		"amount":       "Amount",
		"cvv":          "CVV",
	})
	if err != nil {
		panic(fmt.Sprintf("monitor: embedded payment request schema: %v", err))
	}
	return cm
}

// Validate validates the given request body against the compiled schema.
// It returns true if valid, or false and the violations if invalid. A body
// that is not JSON at all is reported through the error.
func (cm *ContractMonitor) Validate(requestBody []byte) (bool, []Violation, error) {
	result, err := cm.schema.Validate(gojsonschema.NewBytesLoader(requestBody))
	if err != nil {
		return false, nil, fmt.Errorf("error during validation: %w", err)
	}

	if result.Valid() {
		return true, nil, nil
	}

	violations := make([]Violation, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, cm.toViolation(desc))
	}
	return false, violations, nil
}

func (cm *ContractMonitor) toViolation(desc gojsonschema.ResultError) Violation {
	if desc.Type() == "required" {
		property, _ := desc.Details()["property"].(string)
		label, ok := cm.labels[property]
		if !ok {
			label = property
		}
		return Violation{Field: property, Message: label + " is required"}
	}
	field := desc.Field()
	if field == gojsonschema.STRING_CONTEXT_ROOT {
		field = "body"
	}
	return Violation{Field: field, Message: desc.Description()}
}
