package synth

import (
	"strings"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestGenerate(t *testing.T) {
	cfg := domain.KeralaPipeline()
	examples := NewGenerator(cfg).Generate()

	if len(examples) != cfg.Samples {
		t.Fatalf("expected %d examples, got %d", cfg.Samples, len(examples))
	}

	t.Run("Ranges", func(t *testing.T) {
		regions := make(map[string]bool)
		for _, r := range cfg.Regions {
			regions[r] = true
		}
		for i, ex := range examples {
			c := ex.Claim
			if c.Age < cfg.AgeMin || c.Age > cfg.AgeMax {
				t.Fatalf("example %d: age %d out of range", i, c.Age)
			}
			if c.ClaimAmount < cfg.AmountMin || c.ClaimAmount >= cfg.AmountMax {
				t.Fatalf("example %d: amount %.2f out of range", i, c.ClaimAmount)
			}
			if c.DaysSincePurchase < cfg.DaysMin || c.DaysSincePurchase > cfg.DaysMax {
				t.Fatalf("example %d: days %d out of range", i, c.DaysSincePurchase)
			}
			if !regions[c.Region] {
				t.Fatalf("example %d: unexpected region %s", i, c.Region)
			}
		}
	})

	t.Run("Imbalanced", func(t *testing.T) {
		rate := FraudRate(examples)
		if rate < 0.05 || rate > 0.15 {
			t.Errorf("expected fraud rate near 0.10, got %.3f", rate)
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		again := NewGenerator(cfg).Generate()
		for i := range examples {
			if examples[i] != again[i] {
				t.Fatalf("example %d differs between runs", i)
			}
		}
	})

	t.Run("SeedMatters", func(t *testing.T) {
		other := cfg
		other.Seed = 7
		diff := NewGenerator(other).Generate()
		same := 0
		for i := range examples {
			if examples[i] == diff[i] {
				same++
			}
		}
		if same == len(examples) {
			t.Error("different seeds produced identical data")
		}
	})
}

func TestCoveragePolicy(t *testing.T) {
	cfg := domain.CoveragePipeline()
	examples := NewGenerator(cfg).Generate()

	positives := 0
	for _, ex := range examples {
		want := ex.Claim.ClaimAmount > 0.7*ex.Claim.CoverageLimit && ex.Claim.DaysSincePurchase < 120
		if ex.FraudReported != want {
			t.Fatalf("label does not follow coverage rule: %+v", ex)
		}
		if ex.Claim.CoverageLimit < cfg.CoverageMin || ex.Claim.CoverageLimit >= cfg.CoverageMax {
			t.Fatalf("coverage %.2f out of range", ex.Claim.CoverageLimit)
		}
		if ex.FraudReported {
			positives++
		}
	}
	if positives == 0 {
		t.Error("expected at least one positive under the coverage rule")
	}
}

func TestWeightedChoice(t *testing.T) {
	cfg := domain.KeralaPipeline()
	cfg.PolicyTypes = []string{"Auto", "Health"}
	cfg.PolicyWeights = []float64{1, 0}

	for _, ex := range NewGenerator(cfg).Generate() {
		if ex.Claim.PolicyType != "Auto" {
			t.Fatalf("zero-weight policy type drawn: %s", ex.Claim.PolicyType)
		}
	}
}

const sampleCSV = `months_as_customer,age,policy_number,umbrella_limit,incident_city,total_claim_amount,fraud_reported
328,48,521585,0,Columbus,71610,Y
228,42,342868,5000000,Riverwood,5070,N
134,29,687698,5000000,Columbus,34650,N
256,41,227811,6000000,Arlington,63400,Y
`

func TestMapCSV(t *testing.T) {
	cfg := domain.CoveragePipeline()
	examples, err := NewGenerator(cfg).MapCSV(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("MapCSV failed: %v", err)
	}
	if len(examples) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(examples))
	}

	t.Run("CyclicCityMapping", func(t *testing.T) {
		want := []string{cfg.Regions[0], cfg.Regions[1], cfg.Regions[0], cfg.Regions[2]}
		for i, ex := range examples {
			if ex.Claim.Region != want[i] {
				t.Errorf("row %d: expected region %s, got %s", i, want[i], ex.Claim.Region)
			}
		}
	})

	t.Run("Fields", func(t *testing.T) {
		first := examples[0]
		if first.Claim.DaysSincePurchase != 328*30 {
			t.Errorf("expected days %d, got %d", 328*30, first.Claim.DaysSincePurchase)
		}
		if first.Claim.ClaimAmount != 71610 || first.Claim.Age != 48 {
			t.Errorf("unexpected claim: %+v", first.Claim)
		}
		if !first.FraudReported || examples[1].FraudReported {
			t.Error("fraud_reported not mapped from Y/N")
		}
	})

	t.Run("WrapsAround", func(t *testing.T) {
		small := cfg
		small.Regions = []string{"A", "B"}
		out, err := NewGenerator(small).MapCSV(strings.NewReader(sampleCSV))
		if err != nil {
			t.Fatalf("MapCSV failed: %v", err)
		}
		if out[3].Claim.Region != "A" {
			t.Errorf("third distinct city should wrap to A, got %s", out[3].Claim.Region)
		}
	})

	t.Run("MissingColumn", func(t *testing.T) {
		_, err := NewGenerator(cfg).MapCSV(strings.NewReader("age,total_claim_amount\n1,2\n"))
		if err == nil {
			t.Error("expected error for missing columns")
		}
	})

	t.Run("BadLabel", func(t *testing.T) {
		bad := strings.Replace(sampleCSV, ",Y\n", ",maybe\n", 1)
		_, err := NewGenerator(cfg).MapCSV(strings.NewReader(bad))
		if err == nil || !strings.Contains(err.Error(), "line 2") {
			t.Errorf("expected line-numbered error, got %v", err)
		}
	})
}
