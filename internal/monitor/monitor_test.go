package monitor

import (
	"strings"
	"testing"
)

func TestNewContractMonitor(t *testing.T) {
	testSchemaContent := `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"title": "TestSchema",
		"type": "object",
		"properties": { "name": { "type": "string" } },
		"required": ["name"]
	}`

	t.Run("SuccessfulLoad", func(t *testing.T) {
		cm, err := NewContractMonitor([]byte(testSchemaContent), nil)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if cm == nil {
			t.Fatal("Expected ContractMonitor instance, got nil")
		}
		if cm.schema == nil {
			t.Fatal("Expected schema to be compiled, got nil")
		}
	})

	t.Run("InvalidSchemaSyntax", func(t *testing.T) {
		_, err := NewContractMonitor([]byte("{invalid_json"), nil)
		if err == nil {
			t.Fatal("Expected error for invalid schema syntax, got nil")
		}
		if !strings.Contains(err.Error(), "error loading or compiling schema") {
			t.Errorf("Unexpected error: %v", err)
		}
	})

	t.Run("EmbeddedPaymentSchema", func(t *testing.T) {
		if cm := NewPaymentRequestMonitor(); cm == nil {
			t.Fatal("Expected payment request monitor, got nil")
		}
	})
}

func TestContractMonitor_Validate(t *testing.T) {
	cm := NewPaymentRequestMonitor()

	tests := []struct {
		name          string
		payload       string
		expectValid   bool
		expectErrors  bool // True if either violations OR functional error from Validate() is expected
		errorContains []string
	}{
		{
			name:        "ValidPayload",
			payload:     `{"card_number":"2222405343248877","expiry_month":4,"expiry_year":2030,"currency":"GBP","amount":100,"cvv":"123"}`,
			expectValid: true,
		},
		{
			name:          "MissingCardNumber",
			payload:       `{"expiry_month":4,"expiry_year":2030,"currency":"GBP","amount":100,"cvv":"123"}`,
			expectErrors:  true,
			errorContains: []string{"card_number: Card number is required"},
		},
		{
			name:          "MissingCVVAndAmount",
			payload:       `{"card_number":"2222405343248877","expiry_month":4,"expiry_year":2030,"currency":"GBP"}`,
			expectErrors:  true,
			errorContains: []string{"cvv: CVV is required", "amount: Amount is required"},
		},
		{
			name:          "WrongType",
			payload:       `{"card_number":"2222405343248877","expiry_month":"04","expiry_year":2030,"currency":"GBP","amount":100,"cvv":"123"}`,
			expectErrors:  true,
			errorContains: []string{"expiry_month", "Invalid type. Expected: integer, given: string"},
		},
		{
			name:          "FractionalAmount",
			payload:       `{"card_number":"2222405343248877","expiry_month":4,"expiry_year":2030,"currency":"GBP","amount":10.5,"cvv":"123"}`,
			expectErrors:  true,
			errorContains: []string{"amount", "Expected: integer"},
		},
		{
			name:          "NotAnObject",
			payload:       `[1,2,3]`,
			expectErrors:  true,
			errorContains: []string{"body: Invalid type. Expected: object, given: array"},
		},
		{
			name:        "AdditionalPropertyAllowed",
			payload:     `{"card_number":"2222405343248877","expiry_month":4,"expiry_year":2030,"currency":"GBP","amount":100,"cvv":"123","reference":"x"}`,
			expectValid: true,
		},
		{
			name:         "MalformedJSON",
			payload:      `{"card_number": "2222405343248877",`,
			expectErrors: true, // Error comes from the JSON decoder inside gojsonschema
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, violations, funcErr := cm.Validate([]byte(tt.payload))

			if tt.expectErrors {
				if funcErr == nil && len(violations) == 0 {
					t.Errorf("Expected errors, but got none (funcErr: %v, violations: %v)", funcErr, violations)
				}
			} else {
				if funcErr != nil {
					t.Errorf("Expected no functional error, got %v", funcErr)
				}
				if len(violations) > 0 {
					t.Errorf("Expected no violations, got %v", violations)
				}
			}

			if valid != tt.expectValid {
				t.Errorf("Expected valid=%v, got valid=%v. Violations: %v, FuncErr: %v", tt.expectValid, valid, violations, funcErr)
			}

			parts := make([]string, len(violations))
			for i, v := range violations {
				parts[i] = v.String()
			}
			combined := strings.Join(parts, "; ")
			for _, ec := range tt.errorContains {
				if !strings.Contains(combined, ec) {
					t.Errorf("Expected errors to contain '%s', but got: %s", ec, combined)
				}
			}
		})
	}
}
