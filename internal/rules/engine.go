// Package rules provides the CEL-Go based reason engine that annotates scored claims.
// Reasons are deterministic and independent of the classifier.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Engine evaluates reason rules against claims.
type Engine struct {
	mu    sync.RWMutex
	env   *cel.Env
	rules []*CompiledRule
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  domain.ReasonRule
	Program cel.Program
}

// Result is the outcome of one rule for one claim.
type Result struct {
	RuleID    string `json:"ruleId"`
	Triggered bool   `json:"triggered"`
	Reason    string `json:"reason,omitempty"`
	Error     string `json:"error,omitempty"`
}

// NewEngine creates a reason engine over the claim variables.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("age", cel.IntType),
		cel.Variable("claim_amount", cel.DoubleType),
		cel.Variable("policy_type", cel.StringType),
		cel.Variable("days_since_purchase", cel.IntType),
		cel.Variable("region", cel.StringType),
		cel.Variable("coverage_limit", cel.DoubleType),
		cel.Variable("tenure_months", cel.IntType),
		cel.Variable("claimant_age", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{env: env}, nil
}

// ValidateRule compiles a rule without loading it.
func (e *Engine) ValidateRule(cfg domain.ReasonRule) error {
	_, err := e.compileRule(cfg)
	return err
}

// LoadRules compiles enabled rules and replaces the loaded set. Order is kept.
// On error the previous set stays active.
func (e *Engine) LoadRules(configs []domain.ReasonRule) error {
	compiled := make([]*CompiledRule, 0, len(configs))
	seen := make(map[string]bool, len(configs))
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		if seen[cfg.ID] {
			return fmt.Errorf("duplicate rule id: %s", cfg.ID)
		}
		seen[cfg.ID] = true

		rule, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		compiled = append(compiled, rule)
	}

	e.mu.Lock()
	e.rules = compiled
	e.mu.Unlock()
	return nil
}

// Evaluate runs every loaded rule against a claim, in load order.
// A rule that fails at runtime is reported in its Result and does not trigger.
func (e *Engine) Evaluate(ctx context.Context, claim domain.ClaimRecord) []Result {
	e.mu.RLock()
	rules := e.rules
	e.mu.RUnlock()

	activation := map[string]any{
		"age":                 int64(claim.Age),
		"claim_amount":        claim.ClaimAmount,
		"policy_type":         claim.PolicyType,
		"days_since_purchase": int64(claim.DaysSincePurchase),
		"region":              claim.Region,
		"coverage_limit":      claim.CoverageLimit,
		"tenure_months":       int64(claim.TenureMonths),
		"claimant_age":        int64(claim.ClaimantAge),
	}

	results := make([]Result, 0, len(rules))
	for _, rule := range rules {
		res := Result{RuleID: rule.Config.ID}
		out, _, err := rule.Program.ContextEval(ctx, activation)
		if err != nil {
			slog.Warn("reason rule evaluation failed", "rule_id", rule.Config.ID, "error", err)
			res.Error = err.Error()
			results = append(results, res)
			continue
		}
		if b, ok := out.(types.Bool); ok && bool(b) {
			res.Triggered = true
			res.Reason = rule.Config.Reason
		}
		results = append(results, res)
	}
	return results
}

// Reasons returns the reasons of triggered rules, in load order. Never nil.
func (e *Engine) Reasons(ctx context.Context, claim domain.ClaimRecord) []string {
	reasons := []string{}
	for _, res := range e.Evaluate(ctx, claim) {
		if res.Triggered {
			reasons = append(reasons, res.Reason)
		}
	}
	return reasons
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}

// GetLoadedRules returns the currently loaded rule configurations.
func (e *Engine) GetLoadedRules() []domain.ReasonRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]domain.ReasonRule, len(e.rules))
	for i, r := range e.rules {
		out[i] = r.Config
	}
	return out
}

func (e *Engine) compileRule(cfg domain.ReasonRule) (*CompiledRule, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("rule id is required")
	}
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
