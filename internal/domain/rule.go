package domain

// ReasonRule is a deterministic annotation attached to a scored claim.
// Expression is a CEL boolean over the claim's fields.
type ReasonRule struct {
	ID         string `json:"id" yaml:"id"`
	Expression string `json:"expression" yaml:"expression"`
	Reason     string `json:"reason" yaml:"reason"`
	Enabled    bool   `json:"enabled" yaml:"enabled"`
}

// DefaultReasonRules returns the built-in annotation rules.
func DefaultReasonRules() []ReasonRule {
	return []ReasonRule{
		{
			ID:         "extreme-amount",
			Expression: "claim_amount > 18000.0",
			Reason:     "claim amount exceeds threshold",
			Enabled:    true,
		},
		{
			ID:         "rapid-claim",
			Expression: "days_since_purchase < 30",
			Reason:     "claim filed within 30 days of purchase",
			Enabled:    true,
		},
		{
			ID:         "outlier-amount",
			Expression: "claim_amount > 25000.0",
			Reason:     "outlier amount above 25000",
			Enabled:    true,
		},
		{
			ID:         "rapid-liability",
			Expression: "days_since_purchase < 20",
			Reason:     "rapid liability within 20 days of purchase",
			Enabled:    true,
		},
		{
			ID:         "coverage-ratio",
			Expression: "coverage_limit > 0.0 && claim_amount > 0.7 * coverage_limit",
			Reason:     "claim exceeds 70% of coverage limit",
			Enabled:    true,
		},
	}
}
