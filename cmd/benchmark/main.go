// Benchmark tool for replaying labelled claims against a running Kestrel.
//
// Usage:
//
//	go run ./cmd/benchmark -url http://localhost:8080 -samples 2000 -seed 7
//	go run ./cmd/benchmark -csv insurance_claims.csv -variant coverage
//
// This tool:
//  1. Generates holdout claims with their fraud labels (or maps a labelled CSV)
//  2. Sends each claim to POST /predict
//  3. Compares the returned risk level with the label
//  4. Reports precision, recall, F1-score and the confusion matrix
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/synth"
)

// PredictResponse is the subset of the /predict response the benchmark reads.
type PredictResponse struct {
	AuditID string           `json:"auditId"`
	Score   float64          `json:"score"`
	Level   domain.RiskLevel `json:"level"`
	Reasons []string         `json:"reasons"`
}

// Metrics tracks benchmark results
type Metrics struct {
	TruePositives  int64 // Fraud flagged
	FalsePositives int64 // Legitimate claim flagged
	TrueNegatives  int64 // Legitimate claim passed
	FalseNegatives int64 // Fraud passed (missed fraud!)

	TotalProcessed int64
	TotalFraud     int64
	TotalNonFraud  int64
	TotalErrors    int64

	High   int64
	Medium int64
	Low    int64

	ProcessingTimeMs int64
}

func main() {
	// Parse flags
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	csvPath := flag.String("csv", "", "Labelled claims CSV (default: synthetic holdout)")
	variant := flag.String("variant", "kerala", "Pipeline variant used to generate or map claims")
	samples := flag.Int("samples", 1000, "Synthetic holdout size")
	seed := flag.Uint64("seed", 7, "Holdout seed (differs from the training seed)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	flagAt := flag.String("flag-at", string(domain.RiskHigh), "Lowest level counted as a fraud flag (HIGH or MEDIUM)")
	auditor := flag.String("auditor", "benchmark", "X-Auditor-ID sent with each claim")
	verbose := flag.Bool("verbose", false, "Print each claim result")
	flag.Parse()

	cfg, err := domain.PipelineVariant(*variant)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
	cfg.Samples = *samples
	cfg.Seed = *seed

	threshold := domain.RiskLevel(*flagAt)
	if threshold != domain.RiskHigh && threshold != domain.RiskMedium {
		fmt.Printf("ERROR: -flag-at must be HIGH or MEDIUM, got %s\n", *flagAt)
		os.Exit(1)
	}

	fmt.Println("KESTREL BENCHMARK - claim fraud scoring")
	fmt.Printf("\nKestrel URL: %s\n", *baseURL)
	fmt.Printf("Variant:     %s\n", cfg.Variant)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Flag at:     %s\n", threshold)
	fmt.Println()

	// Check Kestrel is ready
	if err := checkReady(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not ready at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  KESTREL_AUDIT_SECRET=change-me go run ./cmd/kestrel serve")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is ready")

	claims, err := loadClaims(cfg, *csvPath)
	if err != nil {
		fmt.Printf("ERROR: Failed to load claims: %v\n", err)
		os.Exit(1)
	}
	fraudCount := 0
	for _, ex := range claims {
		if ex.FraudReported {
			fraudCount++
		}
	}
	fmt.Printf("✓ Loaded %d claims\n", len(claims))
	fmt.Printf("  - Fraud:     %d (%.2f%%)\n", fraudCount, 100*float64(fraudCount)/float64(max(len(claims), 1)))
	fmt.Printf("  - Non-fraud: %d\n", len(claims)-fraudCount)

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(claims, *baseURL, *auditor, threshold, *workers, *verbose)
	duration := time.Since(startTime)

	// Print results
	printResults(metrics, threshold, duration)
}

func checkReady(baseURL string) error {
	resp, err := http.Get(baseURL + "/ready")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("not ready: status %d", resp.StatusCode)
	}
	return nil
}

func loadClaims(cfg domain.PipelineConfig, csvPath string) ([]domain.TrainingExample, error) {
	gen := synth.NewGenerator(cfg)
	if csvPath == "" {
		return gen.Generate(), nil
	}

	file, err := os.Open(csvPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return gen.MapCSV(file)
}

func flagged(level, threshold domain.RiskLevel) bool {
	if level == domain.RiskHigh {
		return true
	}
	return threshold == domain.RiskMedium && level == domain.RiskMedium
}

func runBenchmark(claims []domain.TrainingExample, baseURL, auditor string, threshold domain.RiskLevel, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	// Create work channel
	work := make(chan domain.TrainingExample, 100)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for ex := range work {
				start := time.Now()
				result, err := predict(client, baseURL, auditor, ex.Claim)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", ex.Claim.Region, err)
					}
					continue
				}

				// Track actual labels
				if ex.FraudReported {
					atomic.AddInt64(&metrics.TotalFraud, 1)
				} else {
					atomic.AddInt64(&metrics.TotalNonFraud, 1)
				}

				switch result.Level {
				case domain.RiskHigh:
					atomic.AddInt64(&metrics.High, 1)
				case domain.RiskMedium:
					atomic.AddInt64(&metrics.Medium, 1)
				default:
					atomic.AddInt64(&metrics.Low, 1)
				}

				// Calculate confusion matrix
				predicted := flagged(result.Level, threshold)
				actual := ex.FraudReported

				if predicted && actual {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if predicted && !actual {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !predicted && !actual {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else { // !predicted && actual
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "✓"
					if predicted != actual {
						status = "✗"
					}
					fmt.Printf("%s %-11s | Policy: %-11s | Amount: %12.2f | Days: %4d | Fraud: %-5v | Kestrel: %-6s (%.1f)\n",
						status,
						ex.Claim.Region,
						ex.Claim.PolicyType,
						ex.Claim.ClaimAmount,
						ex.Claim.DaysSincePurchase,
						ex.FraudReported,
						result.Level,
						result.Score,
					)
				}
			}
		}()
	}

	// Send work
	for _, ex := range claims {
		work <- ex
	}
	close(work)

	// Wait for completion
	wg.Wait()

	return metrics
}

func predict(client *http.Client, baseURL, auditor string, claim domain.ClaimRecord) (*PredictResponse, error) {
	body, err := json.Marshal(domain.NewClaimRequest(claim))
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Auditor-ID", auditor)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result PredictResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, threshold domain.RiskLevel, duration time.Duration) {
	fmt.Println("\nBENCHMARK RESULTS")

	fmt.Printf("\nDATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Fraud:      %d\n", m.TotalFraud)
	fmt.Printf("   Total Non-Fraud:  %d\n", m.TotalNonFraud)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\nRISK LEVELS\n")
	fmt.Printf("   HIGH:    %d\n", m.High)
	fmt.Printf("   MEDIUM:  %d\n", m.Medium)
	fmt.Printf("   LOW:     %d\n", m.Low)

	fmt.Printf("\nCONFUSION MATRIX (flag at %s)\n", threshold)
	fmt.Println("                        Predicted")
	fmt.Println("                    FLAG        PASS")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  F  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("          NF  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	// Calculate metrics
	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\nDETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flags, how many were actual fraud)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of fraud, how many were flagged)\n", recall)
	fmt.Printf("   F1-Score:   %.4f\n", f1)
	fmt.Printf("   Accuracy:   %.4f\n", accuracy)

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		tps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f claims/sec\n", tps)
	}

	// Synthetic prior labels are independent of the features
	if recall < 0.5 {
		fmt.Println("\n   Note: with the prior label policy, fraud labels carry no signal and low recall is expected.")
	}
	fmt.Println()
}
