package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
func stringPtr(v string) *string  { return &v }

func TestClaimRequestToClaim(t *testing.T) {
	t.Run("Complete", func(t *testing.T) {
		req := ClaimRequest{
			Age:               intPtr(30),
			ClaimAmount:       floatPtr(55000),
			PolicyType:        stringPtr("Auto"),
			DaysSincePurchase: intPtr(10),
			Region:            stringPtr("Kochi"),
		}
		claim, err := req.ToClaim(false)
		if err != nil {
			t.Fatalf("ToClaim failed: %v", err)
		}
		if claim.Age != 30 || claim.ClaimAmount != 55000 || claim.Region != "Kochi" {
			t.Errorf("unexpected claim: %+v", claim)
		}
	})

	t.Run("MissingFields", func(t *testing.T) {
		req := ClaimRequest{Age: intPtr(30)}
		_, err := req.ToClaim(false)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if verr.Field != "Claim_Amount,Policy_Type,Days_Since_Purchase,Region" {
			t.Errorf("unexpected field list: %s", verr.Field)
		}
	})

	t.Run("UnknownRegionAccepted", func(t *testing.T) {
		req := ClaimRequest{
			Age:               intPtr(30),
			ClaimAmount:       floatPtr(1000),
			PolicyType:        stringPtr("Auto"),
			DaysSincePurchase: intPtr(10),
			Region:            stringPtr("Nonexistent"),
		}
		if _, err := req.ToClaim(false); err != nil {
			t.Errorf("unknown region should be accepted: %v", err)
		}
	})

	t.Run("TenureFillsDays", func(t *testing.T) {
		req := ClaimRequest{
			ClaimantAge:  intPtr(44),
			ClaimAmount:  floatPtr(1000),
			PolicyType:   stringPtr("Motor"),
			TenureMonths: intPtr(4),
			Region:       stringPtr("Kollam"),
		}
		claim, err := req.ToClaim(false)
		if err != nil {
			t.Fatalf("ToClaim failed: %v", err)
		}
		if claim.DaysSincePurchase != 120 {
			t.Errorf("expected 120 days, got %d", claim.DaysSincePurchase)
		}
		if claim.Age != 44 {
			t.Errorf("expected age from claimant_age, got %d", claim.Age)
		}
	})

	t.Run("CoverageRequired", func(t *testing.T) {
		req := ClaimRequest{
			Age:               intPtr(30),
			ClaimAmount:       floatPtr(1000),
			PolicyType:        stringPtr("Motor"),
			DaysSincePurchase: intPtr(10),
			Region:            stringPtr("Kollam"),
		}
		if _, err := req.ToClaim(true); err == nil {
			t.Error("expected error when Coverage_Limit is missing")
		}
	})

	t.Run("NegativeDays", func(t *testing.T) {
		req := ClaimRequest{
			Age:               intPtr(30),
			ClaimAmount:       floatPtr(1000),
			PolicyType:        stringPtr("Auto"),
			DaysSincePurchase: intPtr(-1),
			Region:            stringPtr("Kochi"),
		}
		var verr *ValidationError
		if _, err := req.ToClaim(false); !errors.As(err, &verr) {
			t.Errorf("expected ValidationError, got %v", err)
		}
	})

	t.Run("WireNames", func(t *testing.T) {
		body := `{"Age":30,"Claim_Amount":55000,"Policy_Type":"Auto","Days_Since_Purchase":10,"Region":"Kochi","claimant_name":"Anil"}`
		var req ClaimRequest
		if err := json.Unmarshal([]byte(body), &req); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		claim, err := req.ToClaim(false)
		if err != nil {
			t.Fatalf("ToClaim failed: %v", err)
		}
		if claim.ClaimantName != "Anil" || claim.DaysSincePurchase != 10 {
			t.Errorf("unexpected claim: %+v", claim)
		}
	})
}

func TestScore(t *testing.T) {
	tests := []struct {
		p    float64
		want string
	}{
		{0, "0.0"},
		{1, "100.0"},
		{0.4, "40.0"},
		{0.12345, "12.3"},
		{0.98765, "98.8"},
		{-0.1, "0.0"},
		{1.7, "100.0"},
	}
	for _, tt := range tests {
		got := NewScore(tt.p)
		if got.String() != tt.want {
			t.Errorf("NewScore(%v) = %s, want %s", tt.p, got, tt.want)
		}
		b, _ := json.Marshal(got)
		if string(b) != tt.want {
			t.Errorf("json(%v) = %s, want %s", tt.p, b, tt.want)
		}
	}
}

func TestRiskConfigValidate(t *testing.T) {
	if err := (RiskConfig{High: 70, Medium: 40}).Validate(); err != nil {
		t.Errorf("default tiers rejected: %v", err)
	}
	if err := (RiskConfig{High: 40, Medium: 70}).Validate(); err == nil {
		t.Error("expected error for inverted tiers")
	}
	if err := (RiskConfig{High: 120, Medium: 40}).Validate(); err == nil {
		t.Error("expected error for high > 100")
	}
}

func TestPipelineVariants(t *testing.T) {
	for _, name := range []string{"kerala", "regional", "coverage"} {
		p, err := PipelineVariant(name)
		if err != nil {
			t.Fatalf("PipelineVariant(%s) failed: %v", name, err)
		}
		if err := p.Validate(); err != nil {
			t.Errorf("variant %s invalid: %v", name, err)
		}
	}
	if _, err := PipelineVariant("mars"); err == nil {
		t.Error("expected error for unknown variant")
	}
	if !CoveragePipeline().RequiresCoverage() {
		t.Error("coverage variant should require Coverage_Limit")
	}
}

func TestAuditConfigValidate(t *testing.T) {
	cfg := DefaultConfig().Audit
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for hmac signer without secret")
	}
	cfg.Secret = "s3cret"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
	cfg.Signer = "md5"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown signer")
	}
}
