package domain

import (
	"math"
	"strings"
)

// ClaimRequest is the wire form of a claim submitted to /predict or the intake topic.
// Pointer fields distinguish a missing value from a zero value.
type ClaimRequest struct {
	Age               *int     `json:"Age"`
	ClaimAmount       *float64 `json:"Claim_Amount"`
	PolicyType        *string  `json:"Policy_Type"`
	DaysSincePurchase *int     `json:"Days_Since_Purchase"`
	Region            *string  `json:"Region"`

	CoverageLimit *float64 `json:"Coverage_Limit,omitempty"`
	TenureMonths  *int     `json:"Tenure_Months,omitempty"`
	ClaimantName  string   `json:"claimant_name,omitempty"`
	ClaimantAge   *int     `json:"claimant_age,omitempty"`
}

// ToClaim validates the request and builds a ClaimRecord.
// Days_Since_Purchase falls back to Tenure_Months*30 and Age to claimant_age.
// When requireCoverage is set, Coverage_Limit must be present.
func (r *ClaimRequest) ToClaim(requireCoverage bool) (ClaimRecord, error) {
	var missing []string

	age := r.Age
	if age == nil {
		age = r.ClaimantAge
	}
	if age == nil {
		missing = append(missing, ColumnAge)
	}
	if r.ClaimAmount == nil {
		missing = append(missing, ColumnClaimAmount)
	}
	if r.PolicyType == nil {
		missing = append(missing, ColumnPolicyType)
	}
	days := r.DaysSincePurchase
	if days == nil && r.TenureMonths != nil {
		d := *r.TenureMonths * 30
		days = &d
	}
	if days == nil {
		missing = append(missing, ColumnDaysSincePurchase)
	}
	if r.Region == nil {
		missing = append(missing, ColumnRegion)
	}
	if requireCoverage && r.CoverageLimit == nil {
		missing = append(missing, ColumnCoverageLimit)
	}
	if len(missing) > 0 {
		return ClaimRecord{}, &ValidationError{
			Field:  strings.Join(missing, ","),
			Reason: "required field missing",
		}
	}

	if *age < 0 {
		return ClaimRecord{}, &ValidationError{Field: ColumnAge, Reason: "must not be negative"}
	}
	if math.IsNaN(*r.ClaimAmount) || math.IsInf(*r.ClaimAmount, 0) || *r.ClaimAmount < 0 {
		return ClaimRecord{}, &ValidationError{Field: ColumnClaimAmount, Reason: "must be a finite non-negative number"}
	}
	if *days < 0 {
		return ClaimRecord{}, &ValidationError{Field: ColumnDaysSincePurchase, Reason: "must not be negative"}
	}

	claim := ClaimRecord{
		Age:               *age,
		ClaimAmount:       *r.ClaimAmount,
		PolicyType:        *r.PolicyType,
		DaysSincePurchase: *days,
		Region:            *r.Region,
		ClaimantName:      r.ClaimantName,
	}
	if r.CoverageLimit != nil {
		if *r.CoverageLimit < 0 {
			return ClaimRecord{}, &ValidationError{Field: ColumnCoverageLimit, Reason: "must not be negative"}
		}
		claim.CoverageLimit = *r.CoverageLimit
	}
	if r.TenureMonths != nil {
		claim.TenureMonths = *r.TenureMonths
	}
	if r.ClaimantAge != nil {
		claim.ClaimantAge = *r.ClaimantAge
	}

	return claim, nil
}

// NewClaimRequest builds a wire request from a claim. Used by the benchmark and tests.
func NewClaimRequest(c ClaimRecord) ClaimRequest {
	req := ClaimRequest{
		Age:               &c.Age,
		ClaimAmount:       &c.ClaimAmount,
		PolicyType:        &c.PolicyType,
		DaysSincePurchase: &c.DaysSincePurchase,
		Region:            &c.Region,
		ClaimantName:      c.ClaimantName,
	}
	if c.CoverageLimit > 0 {
		req.CoverageLimit = &c.CoverageLimit
	}
	if c.TenureMonths > 0 {
		req.TenureMonths = &c.TenureMonths
	}
	if c.ClaimantAge > 0 {
		req.ClaimantAge = &c.ClaimantAge
	}
	return req
}
