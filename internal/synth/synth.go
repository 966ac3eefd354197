// Package synth produces labeled training claims, either synthetic or mapped from an external dataset.
package synth

import (
	"math/rand/v2"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Generator draws training examples from a seeded source.
// A Generator is not safe for concurrent use.
type Generator struct {
	cfg domain.PipelineConfig
	rng *rand.Rand
}

// NewGenerator creates a generator seeded from cfg.Seed.
func NewGenerator(cfg domain.PipelineConfig) *Generator {
	return &Generator{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}
}

// Generate returns cfg.Samples examples labeled by the configured policy.
func (g *Generator) Generate() []domain.TrainingExample {
	out := make([]domain.TrainingExample, g.cfg.Samples)
	for i := range out {
		claim := domain.ClaimRecord{
			Age:               g.intBetween(g.cfg.AgeMin, g.cfg.AgeMax),
			ClaimAmount:       g.floatBetween(g.cfg.AmountMin, g.cfg.AmountMax),
			PolicyType:        g.choose(g.cfg.PolicyTypes, g.cfg.PolicyWeights),
			DaysSincePurchase: g.intBetween(g.cfg.DaysMin, g.cfg.DaysMax),
			Region:            g.choose(g.cfg.Regions, g.cfg.RegionWeights),
		}
		if g.cfg.CoverageMax > 0 {
			claim.CoverageLimit = g.floatBetween(g.cfg.CoverageMin, g.cfg.CoverageMax)
		}
		out[i] = domain.TrainingExample{
			Claim:         claim,
			FraudReported: g.label(claim),
		}
	}
	return out
}

func (g *Generator) label(c domain.ClaimRecord) bool {
	if g.cfg.LabelPolicy == domain.LabelCoverage {
		return CoverageRule(c, g.cfg.CoverageRatio, g.cfg.RapidClaimDays)
	}
	return g.rng.Float64() < g.cfg.FraudRate
}

// CoverageRule reports whether a claim exceeds ratio of its coverage limit
// and was filed fewer than days after purchase.
func CoverageRule(c domain.ClaimRecord, ratio float64, days int) bool {
	return c.ClaimAmount > ratio*c.CoverageLimit && c.DaysSincePurchase < days
}

// intBetween draws uniformly from [lo, hi].
func (g *Generator) intBetween(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + g.rng.IntN(hi-lo+1)
}

// floatBetween draws uniformly from [lo, hi).
func (g *Generator) floatBetween(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + g.rng.Float64()*(hi-lo)
}

// choose picks a value uniformly, or by weight when weights are given.
func (g *Generator) choose(values []string, weights []float64) string {
	if len(values) == 0 {
		return ""
	}
	if len(weights) != len(values) {
		return values[g.rng.IntN(len(values))]
	}
	var total float64
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return values[g.rng.IntN(len(values))]
	}
	u := g.rng.Float64() * total
	for i, w := range weights {
		if u < w {
			return values[i]
		}
		u -= w
	}
	return values[len(values)-1]
}

// FraudRate returns the share of positive labels.
func FraudRate(examples []domain.TrainingExample) float64 {
	if len(examples) == 0 {
		return 0
	}
	n := 0
	for _, ex := range examples {
		if ex.FraudReported {
			n++
		}
	}
	return float64(n) / float64(len(examples))
}
