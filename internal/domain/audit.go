package domain

import (
	"math"
	"strconv"
	"time"
)

// Score is a fraud probability on a 0-100 scale with one decimal place.
type Score float64

// NewScore converts a probability into a Score, rounding half away from zero.
func NewScore(probability float64) Score {
	if probability < 0 {
		probability = 0
	}
	if probability > 1 {
		probability = 1
	}
	return Score(math.Round(probability*1000) / 10)
}

// String formats the score with exactly one decimal digit.
func (s Score) String() string {
	return strconv.FormatFloat(float64(s), 'f', 1, 64)
}

// MarshalJSON always emits one decimal digit, e.g. 42.0.
func (s Score) MarshalJSON() ([]byte, error) {
	return []byte(s.String()), nil
}

// RiskLevel is the business tier of a score.
type RiskLevel string

const (
	RiskHigh   RiskLevel = "HIGH"
	RiskMedium RiskLevel = "MEDIUM"
	RiskLow    RiskLevel = "LOW"
)

// Assessment is the outcome of scoring a single claim.
type Assessment struct {
	Probability float64   `json:"probability"`
	Score       Score     `json:"score"`
	Level       RiskLevel `json:"level"`
	Reasons     []string  `json:"reasons"`
}

// AuditRecord is an append-only ledger entry written once per scored claim.
type AuditRecord struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Region       string    `json:"region"`
	ClaimAmount  float64   `json:"claimAmount"`
	Score        Score     `json:"score"`
	Level        RiskLevel `json:"level"`
	IntegrityTag string    `json:"integrityTag"`
	TagAlgorithm string    `json:"tagAlgorithm"`

	ClaimantName  string  `json:"claimantName,omitempty"`
	ClaimantAge   int     `json:"claimantAge,omitempty"`
	CoverageLimit float64 `json:"coverageLimit,omitempty"`
	TenureMonths  int     `json:"tenureMonths,omitempty"`
	AuditorID     string  `json:"auditorId,omitempty"`
}

// AuditEvent is published after an audit record has been persisted.
type AuditEvent struct {
	AuditID   string    `json:"auditId"`
	Timestamp string    `json:"timestamp"` // RFC3339
	Region    string    `json:"region"`
	Score     Score     `json:"score"`
	Level     RiskLevel `json:"level"`
	Reasons   []string  `json:"reasons"`
	AuditorID string    `json:"auditorId,omitempty"`
	Source    string    `json:"source"` // http | bus
}
