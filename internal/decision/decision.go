// Package decision turns a fraud probability into a score, a risk tier and reasons.
package decision

import (
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Processor maps scores to risk tiers using configurable thresholds.
type Processor struct {
	// HighThreshold: score > HighThreshold is HIGH
	HighThreshold float64

	// MediumThreshold: MediumThreshold < score <= HighThreshold is MEDIUM
	MediumThreshold float64
}

// NewProcessor creates a processor from validated risk tiers.
func NewProcessor(cfg domain.RiskConfig) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Processor{
		HighThreshold:   cfg.High,
		MediumThreshold: cfg.Medium,
	}, nil
}

// Level returns the tier of a score.
func (p *Processor) Level(score domain.Score) domain.RiskLevel {
	s := float64(score)
	switch {
	case s > p.HighThreshold:
		return domain.RiskHigh
	case s > p.MediumThreshold:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// Process builds the assessment for a probability and its rule reasons.
func (p *Processor) Process(probability float64, reasons []string) domain.Assessment {
	if reasons == nil {
		reasons = []string{}
	}
	score := domain.NewScore(probability)
	return domain.Assessment{
		Probability: probability,
		Score:       score,
		Level:       p.Level(score),
		Reasons:     reasons,
	}
}

// ShouldAlert returns true if the assessment should be escalated.
func ShouldAlert(a domain.Assessment) bool {
	return a.Level == domain.RiskHigh
}
