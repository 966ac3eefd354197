package domain

// ClaimRecord is one insurance claim submitted for scoring.
// Categorical values outside the fitted vocabulary are accepted.
type ClaimRecord struct {
	Age               int     `json:"age"`
	ClaimAmount       float64 `json:"claimAmount"`
	PolicyType        string  `json:"policyType"`
	DaysSincePurchase int     `json:"daysSincePurchase"`
	Region            string  `json:"region"`

	// Richer intake fields
	CoverageLimit float64 `json:"coverageLimit,omitempty"`
	TenureMonths  int     `json:"tenureMonths,omitempty"`
	ClaimantName  string  `json:"claimantName,omitempty"`
	ClaimantAge   int     `json:"claimantAge,omitempty"`
}

// TrainingExample is a claim with its ground-truth label.
type TrainingExample struct {
	Claim         ClaimRecord `json:"claim"`
	FraudReported bool        `json:"fraudReported"`
}

// Canonical column names. These also appear in artifact feature names.
const (
	ColumnAge               = "Age"
	ColumnClaimAmount       = "Claim_Amount"
	ColumnPolicyType        = "Policy_Type"
	ColumnDaysSincePurchase = "Days_Since_Purchase"
	ColumnRegion            = "Region"
	ColumnCoverageLimit     = "Coverage_Limit"
	ColumnTenureMonths      = "Tenure_Months"
)

// Numeric returns the value of a numeric column.
func (c ClaimRecord) Numeric(column string) (float64, bool) {
	switch column {
	case ColumnAge:
		return float64(c.Age), true
	case ColumnClaimAmount:
		return c.ClaimAmount, true
	case ColumnDaysSincePurchase:
		return float64(c.DaysSincePurchase), true
	case ColumnCoverageLimit:
		return c.CoverageLimit, true
	case ColumnTenureMonths:
		return float64(c.TenureMonths), true
	}
	return 0, false
}

// Categorical returns the value of a categorical column.
func (c ClaimRecord) Categorical(column string) (string, bool) {
	switch column {
	case ColumnPolicyType:
		return c.PolicyType, true
	case ColumnRegion:
		return c.Region, true
	}
	return "", false
}
