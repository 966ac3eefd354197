package synth

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Source columns of the external claims dataset.
const (
	csvAge      = "age"
	csvAmount   = "total_claim_amount"
	csvCoverage = "umbrella_limit"
	csvTenure   = "months_as_customer"
	csvCity     = "incident_city"
	csvFraud    = "fraud_reported"
)

// MapCSV maps an external labeled dataset onto the canonical schema.
// Distinct cities, in first-seen order, are assigned regions cyclically.
// Policy types are not present in the source and are drawn from the generator.
func (g *Generator) MapCSV(r io.Reader) ([]domain.TrainingExample, error) {
	if len(g.cfg.Regions) == 0 {
		return nil, errors.New("no regions configured for city mapping")
	}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, col := range []string{csvAge, csvAmount, csvCoverage, csvTenure, csvCity, csvFraud} {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("csv is missing column %q", col)
		}
	}

	cities := make(map[string]string)
	var out []domain.TrainingExample
	line := 1
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		age, err := strconv.Atoi(strings.TrimSpace(rec[index[csvAge]]))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid %s: %w", line, csvAge, err)
		}
		amount, err := strconv.ParseFloat(strings.TrimSpace(rec[index[csvAmount]]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid %s: %w", line, csvAmount, err)
		}
		coverage, err := strconv.ParseFloat(strings.TrimSpace(rec[index[csvCoverage]]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid %s: %w", line, csvCoverage, err)
		}
		months, err := strconv.Atoi(strings.TrimSpace(rec[index[csvTenure]]))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid %s: %w", line, csvTenure, err)
		}

		var fraud bool
		switch strings.ToUpper(strings.TrimSpace(rec[index[csvFraud]])) {
		case "Y":
			fraud = true
		case "N":
		default:
			return nil, fmt.Errorf("line %d: %s must be Y or N, got %q", line, csvFraud, rec[index[csvFraud]])
		}

		city := strings.TrimSpace(rec[index[csvCity]])
		region, ok := cities[city]
		if !ok {
			region = g.cfg.Regions[len(cities)%len(g.cfg.Regions)]
			cities[city] = region
		}

		out = append(out, domain.TrainingExample{
			Claim: domain.ClaimRecord{
				Age:               age,
				ClaimAmount:       amount,
				PolicyType:        g.choose(g.cfg.PolicyTypes, g.cfg.PolicyWeights),
				DaysSincePurchase: months * 30,
				Region:            region,
				CoverageLimit:     coverage,
				TenureMonths:      months,
			},
			FraudReported: fraud,
		})
	}

	if len(out) == 0 {
		return nil, errors.New("csv contains no rows")
	}
	return out, nil
}
