// Package policy evaluates soft operator policy over a candidate
// RunConfig, layered on top of the hard invariants RunConfig.Validate
// already enforces.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"

	"github.com/example/adgen/internal/domain"
)

// Engine is the OPA policy engine used to produce config.validate
// warnings.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine compiles policyContent and prepares it for repeated
// evaluation.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.adgen_policy.warnings"),
		rego.Module("adgen_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare policy: %w", err)
	}

	return &Engine{query: query}, nil
}

// Warnings evaluates the policy against cfg and returns the list of
// advisory strings it produced. Policy warnings never block a PUT; they
// are informational only.
func (e *Engine) Warnings(ctx context.Context, cfg domain.RunConfig) ([]string, error) {
	providerInput := map[string]interface{}{
		"kind": string(cfg.Provider.Kind),
	}
	// An unset budget must be absent from the input, not null: rego's
	// `not input.provider.budget_limit` only holds for an undefined value.
	if cfg.BudgetLimit != nil {
		providerInput["budget_limit"] = *cfg.BudgetLimit
	}
	input := map[string]interface{}{
		"provider": providerInput,
		"orchestrator": map[string]interface{}{
			"concurrency":  cfg.Orchestrator.Concurrency,
			"rate_per_min": cfg.Orchestrator.RatePerMin,
		},
	}

	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return nil, nil
	}

	raw, ok := results[0].Expressions[0].Value.([]interface{})
	if !ok {
		return nil, nil
	}
	warnings := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			warnings = append(warnings, s)
		}
	}
	return warnings, nil
}

// DefaultPolicy flags the two configuration smells an operator is most
// likely to hit in practice: an unbounded remote budget, and a
// concurrency/rate combination likely to trip provider-side throttling.
const DefaultPolicy = `
package adgen_policy

warnings[msg] {
	input.provider.kind == "remote"
	not input.provider.budget_limit
	msg := "remote provider configured without a budget_limit"
}

warnings[msg] {
	input.orchestrator.concurrency > 50
	input.orchestrator.rate_per_min > 300
	msg := "concurrency above 50 combined with rate_per_min above 300 may trip provider rate limits"
}
`
