// Package policy decides what happens to an idempotency key after the
// downstream authorization failed. Rules are govaluate expressions evaluated
// in priority order over the failure's reason, amount and currency; the
// first matching rule wins.
package policy

import (
	"fmt"
	"sort"

	"github.com/Knetic/govaluate"
)

// Failure reasons exposed to rule expressions as `reason`.
const (
	ReasonCircuitOpen     = "circuit_open"
	ReasonTimeout         = "timeout"
	ReasonAuthorizerError = "authorizer_error"
	ReasonPersistError    = "persist_error"
)

// Decision represents the outcome of a policy evaluation.
type Decision struct {
	// Terminal caches the Declined response under its idempotency key.
	// A non-terminal decision releases the key so the client may retry.
	Terminal bool
	// RuleID is the matching rule, empty when the default applied.
	RuleID string
}

// DefaultDecision applies when no rule matches.
var DefaultDecision = Decision{Terminal: true}

// Rule is a single configurable policy rule.
type Rule struct {
	ID         string
	Expression string
	Priority   int // lower runs first; equal priorities keep their order
	Terminal   bool
}

// FailureContext is the data a rule can refer to.
type FailureContext struct {
	Reason     string
	Amount     int64
	Currency   string
	Authorizer string
}

func (fc FailureContext) parameters() map[string]interface{} {
	return map[string]interface{}{
		"reason":     fc.Reason,
		"amount":     float64(fc.Amount),
		"currency":   fc.Currency,
		"authorizer": fc.Authorizer,
	}
}

type compiledRule struct {
	rule Rule
	expr *govaluate.EvaluableExpression
}

// FailurePolicy evaluates failure rules.
type FailurePolicy struct {
	rules []compiledRule
}

// NewFailurePolicy compiles rules. A rule with an empty or unparsable
// expression is a configuration error.
func NewFailurePolicy(rules []Rule) (*FailurePolicy, error) {
	ordered := make([]Rule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })

	compiled := make([]compiledRule, 0, len(ordered))
	for _, r := range ordered {
		if r.Expression == "" {
			return nil, fmt.Errorf("policy rule ID '%s' has an empty expression", r.ID)
		}
		expr, err := govaluate.NewEvaluableExpression(r.Expression)
		if err != nil {
			return nil, fmt.Errorf("failed to compile rule ID '%s': %w", r.ID, err)
		}
		compiled = append(compiled, compiledRule{rule: r, expr: expr})
	}
	return &FailurePolicy{rules: compiled}, nil
}

// Evaluate returns the decision of the first rule matching fc, or
// DefaultDecision. A rule that cannot be evaluated or does not yield a
// boolean aborts evaluation with an error.
func (p *FailurePolicy) Evaluate(fc FailureContext) (Decision, error) {
	params := fc.parameters()
	for _, cr := range p.rules {
		result, err := cr.expr.Evaluate(params)
		if err != nil {
			return DefaultDecision, fmt.Errorf("failed to evaluate rule ID '%s': %w", cr.rule.ID, err)
		}
		matched, ok := result.(bool)
		if !ok {
			return DefaultDecision, fmt.Errorf("rule ID '%s' did not evaluate to a boolean (got %T)", cr.rule.ID, result)
		}
		if matched {
			return Decision{Terminal: cr.rule.Terminal, RuleID: cr.rule.ID}, nil
		}
	}
	return DefaultDecision, nil
}
