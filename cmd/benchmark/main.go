// Benchmark tool for testing Kestrel against labeled FNOL data.
//
// Usage:
//
//	go run cmd/benchmark/main.go -csv /path/to/claims.csv -url http://localhost:8080
//
// This tool:
//
//  1. Reads labeled FNOL records (with expected routing dispositions)
//  2. Sends each record to Kestrel for triage
//  3. Compares Kestrel's routing with the expected routing
//  4. Calculates per-routing accuracy and an escalation confusion matrix
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LabeledClaim represents a row from a labeled FNOL dataset.
type LabeledClaim struct {
	PolicyNumber    string
	IncidentDate    string
	Location        string
	Description     string
	InsuredName     string
	InsuredEmail    string
	AssetType       string
	EstimatedDamage float64
	HasDamage       bool
	ExpectedRouting string
}

// TriageResponse is the subset of the Kestrel report the benchmark reads.
type TriageResponse struct {
	ID        string   `json:"id"`
	ClaimType string   `json:"claim_type"`
	Routing   string   `json:"routing"`
	RiskFlags []string `json:"risk_flags"`
	Reasoning string   `json:"reasoning"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	// Escalation confusion matrix: "escalated" means anything other than
	// fast-track.
	TruePositives  int64 // Expected escalation, got escalation
	FalsePositives int64 // Expected fast-track, got escalation
	TrueNegatives  int64 // Expected fast-track, got fast-track
	FalseNegatives int64 // Expected escalation, got fast-track

	ExactMatches   int64 // Routing matched the expected label exactly
	TotalProcessed int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	csvPath := flag.String("csv", "", "Path to labeled FNOL CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 10000, "Maximum claims to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each claim result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/claims.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║           KESTREL BENCHMARK - FNOL Routing Accuracy           ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Kestrel URL: %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  cd kestrel && go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	fmt.Printf("\nReading labeled claims from %s...\n", *csvPath)
	claims, err := readClaimsCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d claims\n", len(claims))

	counts := map[string]int{}
	for _, c := range claims {
		counts[c.ExpectedRouting]++
	}
	for routing, n := range counts {
		fmt.Printf("  - %-15s %d (%.2f%%)\n", routing+":", n, 100*float64(n)/float64(len(claims)))
	}

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(claims, *baseURL, *tenantID, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readClaimsCSV(path string, limit int) ([]LabeledClaim, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}

	get := func(record []string, col string) string {
		idx, ok := colIndex[col]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var claims []LabeledClaim

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		claim := LabeledClaim{
			PolicyNumber:    get(record, "policy_number"),
			IncidentDate:    get(record, "incident_date"),
			Location:        get(record, "location"),
			Description:     get(record, "description"),
			InsuredName:     get(record, "insured_name"),
			InsuredEmail:    get(record, "insured_email"),
			AssetType:       get(record, "asset_type"),
			ExpectedRouting: get(record, "expected_routing"),
		}

		if raw := get(record, "estimated_damage"); raw != "" {
			if v, err := strconv.ParseFloat(raw, 64); err == nil {
				claim.EstimatedDamage = v
				claim.HasDamage = true
			}
		}

		if claim.ExpectedRouting == "" {
			continue // Unlabeled rows are useless here
		}

		claims = append(claims, claim)

		if limit > 0 && len(claims) >= limit {
			break
		}
	}

	return claims, nil
}

func runBenchmark(claims []LabeledClaim, baseURL, tenantID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan LabeledClaim, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for claim := range work {
				start := time.Now()
				result, err := triageClaim(client, baseURL, tenantID, claim)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", claim.PolicyNumber, err)
					}
					continue
				}

				if result.Routing == claim.ExpectedRouting {
					atomic.AddInt64(&metrics.ExactMatches, 1)
				}

				// Escalation confusion matrix: fast-track vs everything else
				predicted := result.Routing != "fast-track"
				actual := claim.ExpectedRouting != "fast-track"

				if predicted && actual {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if predicted && !actual {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !predicted && !actual {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else {
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "✓"
					if result.Routing != claim.ExpectedRouting {
						status = "✗"
					}
					fmt.Printf("%s %-12s | Damage: $%12.2f | Expected: %-13s | Kestrel: %-13s | Flags: %v\n",
						status,
						claim.PolicyNumber,
						claim.EstimatedDamage,
						claim.ExpectedRouting,
						result.Routing,
						result.RiskFlags,
					)
				}
			}
		}()
	}

	for _, claim := range claims {
		work <- claim
	}
	close(work)

	wg.Wait()

	return metrics
}

func triageClaim(client *http.Client, baseURL, tenantID string, claim LabeledClaim) (*TriageResponse, error) {
	// Build a raw FNOL record the way an intake form would
	record := map[string]any{
		"policy_number": claim.PolicyNumber,
		"incident_date": claim.IncidentDate,
		"location":      claim.Location,
		"description":   claim.Description,
		"insured_name":  claim.InsuredName,
	}
	if claim.InsuredEmail != "" {
		record["insured_email"] = claim.InsuredEmail
	}
	if claim.AssetType != "" {
		record["asset_type"] = claim.AssetType
	}
	if claim.HasDamage {
		record["estimated_damage"] = claim.EstimatedDamage
	}

	body, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/fnol", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result TriageResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Exact Matches:    %d\n", m.ExactMatches)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\n📈 ESCALATION CONFUSION MATRIX\n")
	fmt.Println("                          Predicted")
	fmt.Println("                  Escalated   Fast-track")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  E  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("          FT  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

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

	exactAccuracy := float64(0)
	if m.TotalProcessed-m.TotalErrors > 0 {
		exactAccuracy = float64(m.ExactMatches) / float64(m.TotalProcessed-m.TotalErrors)
	}

	fmt.Printf("\n🎯 ROUTING METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of escalations, how many were warranted)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of warranted escalations, how many we made)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Exact:      %.4f  (routing matched the label exactly)\n", exactAccuracy)

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		tps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f claims/sec\n", tps)
	}

	fmt.Printf("\n💡 INTERPRETATION\n")
	if recall >= 0.9 {
		fmt.Println("   ✅ Excellent recall - risky claims rarely slip into fast-track")
	} else if recall >= 0.7 {
		fmt.Println("   ⚠️  Good recall - but some risky claims are fast-tracked")
	} else {
		fmt.Println("   ❌ Poor recall - risky claims are being fast-tracked!")
	}

	if precision >= 0.5 {
		fmt.Println("   ✅ Good precision - escalations are meaningful")
	} else {
		fmt.Println("   ⚠️  Low precision - adjusters see too many clean claims")
	}

	fmt.Println()
}
