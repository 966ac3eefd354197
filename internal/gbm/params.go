package gbm

import (
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Params are the boosting hyperparameters.
type Params struct {
	Trees          int     `json:"trees"`
	MaxDepth       int     `json:"maxDepth"`
	LearningRate   float64 `json:"learningRate"`
	Lambda         float64 `json:"lambda"`
	MinChildWeight float64 `json:"minChildWeight"`
	MaxBins        int     `json:"maxBins"`
	Subsample      float64 `json:"subsample"`
	Seed           uint64  `json:"seed"`
}

// DefaultParams returns depth 5, 100 trees and learning rate 0.1.
func DefaultParams() Params {
	return Params{
		Trees:          100,
		MaxDepth:       5,
		LearningRate:   0.1,
		Lambda:         1,
		MinChildWeight: 1,
		MaxBins:        64,
		Subsample:      1,
	}
}

// ParamsFrom reads hyperparameters from a pipeline configuration.
func ParamsFrom(cfg domain.PipelineConfig) Params {
	p := Params{
		Trees:          cfg.Trees,
		MaxDepth:       cfg.MaxDepth,
		LearningRate:   cfg.LearningRate,
		Lambda:         cfg.Lambda,
		MinChildWeight: cfg.MinChildWeight,
		MaxBins:        cfg.MaxBins,
		Subsample:      cfg.Subsample,
		Seed:           cfg.Seed,
	}
	return p.withDefaults()
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.Trees <= 0 {
		p.Trees = d.Trees
	}
	if p.MaxDepth <= 0 {
		p.MaxDepth = d.MaxDepth
	}
	if p.LearningRate <= 0 {
		p.LearningRate = d.LearningRate
	}
	if p.Lambda < 0 {
		p.Lambda = d.Lambda
	}
	if p.MinChildWeight < 0 {
		p.MinChildWeight = d.MinChildWeight
	}
	if p.MaxBins < 2 || p.MaxBins > 256 {
		p.MaxBins = d.MaxBins
	}
	if p.Subsample <= 0 || p.Subsample > 1 {
		p.Subsample = d.Subsample
	}
	return p
}

func (p Params) String() string {
	return fmt.Sprintf("trees=%d depth=%d eta=%g lambda=%g bins=%d subsample=%g",
		p.Trees, p.MaxDepth, p.LearningRate, p.Lambda, p.MaxBins, p.Subsample)
}
