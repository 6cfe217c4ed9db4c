// Benchmark tool for replaying transaction history against Kestrel.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/transactions.csv -url http://localhost:8080
//
// This tool:
//   1. Reads transaction data (amount, category, current card)
//   2. Sends each transaction to Kestrel for reward analysis
//   3. Measures how much reward value users left on the table
//   4. Reports uplift, recommendation rate, latency and throughput
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// HistoryTransaction represents a row from the replay dataset.
type HistoryTransaction struct {
	UserID        string
	Amount        float64
	Category      string
	CurrentCardID string
}

// AnalyzeRequest is the Kestrel API request format.
type AnalyzeRequest struct {
	Transaction TransactionInfo `json:"transaction"`
}

type TransactionInfo struct {
	Amount        float64 `json:"amount"`
	Category      string  `json:"category"`
	CurrentCardID string  `json:"currentCardId,omitempty"`
}

// AnalyzeResponse is the subset of the reward analysis the benchmark
// tracks.
type AnalyzeResponse struct {
	BestCardReward struct {
		CardID       string  `json:"cardId"`
		RewardAmount float64 `json:"rewardAmount"`
	} `json:"bestCardReward"`
	CurrentCardReward *struct {
		CardID       string  `json:"cardId"`
		RewardAmount float64 `json:"rewardAmount"`
	} `json:"currentCardReward"`
	RewardGapPct   float64 `json:"rewardGapPct"`
	ExtraRewardAmt float64 `json:"extraRewardAmt"`
	NumBetterCards int     `json:"numBetterCards"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TotalProcessed int64
	TotalErrors    int64

	BetterCardFound int64 // transactions with at least one strictly better card
	AlreadyOptimal  int64 // current card was the best available

	// Micro-dollar accumulators so the totals stay atomic.
	ExtraRewardMicros   int64
	CurrentRewardMicros int64
	BestRewardMicros    int64

	ProcessingTimeMs int64
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to transaction history CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	limit := flag.Int("limit", 10000, "Maximum transactions to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each transaction result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/transactions.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║         KESTREL BENCHMARK - Reward Uplift Analysis            ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Kestrel URL: %s\n", *baseURL)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Println()

	// Check Kestrel is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  cd kestrel && go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	// Read transaction history
	fmt.Printf("\nReading transaction history from %s...\n", *csvPath)
	transactions, err := readHistoryCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d transactions\n", len(transactions))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(transactions, *baseURL, *workers, *verbose)
	duration := time.Since(startTime)

	// Print results
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

func readHistoryCSV(path string, limit int) ([]HistoryTransaction, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	// Read header
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Map column indices
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, required := range []string{"amount", "category"} {
		if _, ok := colIndex[required]; !ok {
			return nil, fmt.Errorf("CSV missing required column %q", required)
		}
	}

	get := func(record []string, name string) string {
		idx, ok := colIndex[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var transactions []HistoryTransaction
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		amount, err := strconv.ParseFloat(get(record, "amount"), 64)
		if err != nil || amount <= 0 {
			continue
		}
		category := get(record, "category")
		if category == "" {
			continue
		}

		transactions = append(transactions, HistoryTransaction{
			UserID:        get(record, "user_id"),
			Amount:        amount,
			Category:      category,
			CurrentCardID: get(record, "current_card_id"),
		})

		if limit > 0 && len(transactions) >= limit {
			break
		}
	}

	return transactions, nil
}

func runBenchmark(transactions []HistoryTransaction, baseURL string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	// Create work channel
	work := make(chan HistoryTransaction, 100)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for tx := range work {
				start := time.Now()
				result, err := analyzeTransaction(client, baseURL, tx)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s $%.2f -> %v\n", tx.Category, tx.Amount, err)
					}
					continue
				}

				if result.NumBetterCards > 0 {
					atomic.AddInt64(&metrics.BetterCardFound, 1)
				} else {
					atomic.AddInt64(&metrics.AlreadyOptimal, 1)
				}

				atomic.AddInt64(&metrics.ExtraRewardMicros, toMicros(result.ExtraRewardAmt))
				atomic.AddInt64(&metrics.BestRewardMicros, toMicros(result.BestCardReward.RewardAmount))
				if result.CurrentCardReward != nil {
					atomic.AddInt64(&metrics.CurrentRewardMicros, toMicros(result.CurrentCardReward.RewardAmount))
				}

				if verbose {
					marker := "="
					if result.NumBetterCards > 0 {
						marker = "↑"
					}
					fmt.Printf("%s %-12s | Amount: $%9.2f | Best: %-28s | Gap: %6.1f%% | Extra: $%6.2f\n",
						marker,
						tx.Category,
						tx.Amount,
						result.BestCardReward.CardID,
						result.RewardGapPct,
						result.ExtraRewardAmt,
					)
				}
			}
		}()
	}

	// Send work
	for _, tx := range transactions {
		work <- tx
	}
	close(work)

	// Wait for completion
	wg.Wait()

	return metrics
}

func analyzeTransaction(client *http.Client, baseURL string, tx HistoryTransaction) (*AnalyzeResponse, error) {
	req := AnalyzeRequest{
		Transaction: TransactionInfo{
			Amount:        tx.Amount,
			Category:      tx.Category,
			CurrentCardID: tx.CurrentCardID,
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/api/v1/analyze-transaction", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result AnalyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func toMicros(dollars float64) int64 {
	return int64(math.Round(dollars * 1e6))
}

func fromMicros(micros int64) float64 {
	return float64(micros) / 1e6
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Processed:   %d\n", m.TotalProcessed)
	fmt.Printf("   Errors:            %d\n", m.TotalErrors)

	analyzed := m.BetterCardFound + m.AlreadyOptimal

	fmt.Printf("\n💳 CARD OPTIMALITY\n")
	fmt.Printf("   Better Card Found: %d\n", m.BetterCardFound)
	fmt.Printf("   Already Optimal:   %d\n", m.AlreadyOptimal)
	if analyzed > 0 {
		fmt.Printf("   Suboptimal Rate:   %.2f%%\n", 100*float64(m.BetterCardFound)/float64(analyzed))
	}

	fmt.Printf("\n💰 REWARD UPLIFT\n")
	fmt.Printf("   Current Rewards:   $%.2f\n", fromMicros(m.CurrentRewardMicros))
	fmt.Printf("   Best Rewards:      $%.2f\n", fromMicros(m.BestRewardMicros))
	fmt.Printf("   Left On Table:     $%.2f\n", fromMicros(m.ExtraRewardMicros))
	if analyzed > 0 {
		fmt.Printf("   Avg Per Txn:       $%.4f\n", fromMicros(m.ExtraRewardMicros)/float64(analyzed))
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		tps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f tx/sec\n", tps)
	}

	fmt.Println()
}
