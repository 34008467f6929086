package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type stepReport struct {
	Calls     int64            `json:"calls"`
	Statuses  map[string]int64 `json:"statuses"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time             `json:"started_at"`
	DurationSeconds   float64               `json:"duration_seconds"`
	TotalScenarios    int64                 `json:"total_scenarios"`
	Outcomes          map[string]int64      `json:"outcomes"`
	Errors            int64                 `json:"errors"`
	ErrorRate         float64               `json:"error_rate"`
	RPS               float64               `json:"rps"`
	ScenarioLatencyMs latencySummary        `json:"scenario_latency_ms"`
	Steps             map[string]stepReport `json:"steps"`
}

type stepStats struct {
	calls     int64
	statuses  map[string]int64
	latencies []float64
}

// collector собирает статусы и задержки по шагам и исходы сценариев.
type collector struct {
	mu        sync.Mutex
	steps     map[string]*stepStats
	outcomes  map[outcome]int64
	scenarios []float64
}

func newCollector() *collector {
	return &collector{
		steps:    make(map[string]*stepStats),
		outcomes: make(map[outcome]int64),
	}
}

// record учитывает один HTTP-вызов. status 0 означает транспортную ошибку.
func (c *collector) record(step string, latency time.Duration, status int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.steps[step]
	if !ok {
		stats = &stepStats{statuses: make(map[string]int64)}
		c.steps[step] = stats
	}
	stats.calls++
	stats.statuses[statusLabel(status)]++
	stats.latencies = append(stats.latencies, millis(latency))
}

func (c *collector) recordScenario(result outcome, latency time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.outcomes[result]++
	c.scenarios = append(c.scenarios, millis(latency))
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:         startedAt.UTC(),
		DurationSeconds:   duration.Seconds(),
		TotalScenarios:    int64(len(c.scenarios)),
		Outcomes:          make(map[string]int64, len(c.outcomes)),
		ScenarioLatencyMs: buildLatencySummary(c.scenarios),
		Steps:             make(map[string]stepReport, len(c.steps)),
	}
	for o, count := range c.outcomes {
		result.Outcomes[string(o)] = count
		if o == outcomeError {
			result.Errors += count
		}
	}
	result.ErrorRate = ratio(result.Errors, result.TotalScenarios)
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}

	for name, stats := range c.steps {
		statuses := make(map[string]int64, len(stats.statuses))
		for code, count := range stats.statuses {
			statuses[code] = count
		}
		result.Steps[name] = stepReport{
			Calls:     stats.calls,
			Statuses:  statuses,
			LatencyMs: buildLatencySummary(stats.latencies),
		}
	}
	return result
}

func statusLabel(status int) string {
	if status == 0 {
		return "transport_error"
	}
	return strconv.Itoa(status)
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- путь задаётся флагом CLI для локальных отчётов.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(w io.Writer, result report, cfg config) {
	fmt.Fprintln(w, "Checkout contention summary")
	fmt.Fprintf(w, "book=%d qty=%d customers=%d total=%d errors=%d error_rate=%.4f\n",
		cfg.bookID, cfg.quantity, len(cfg.customers),
		result.TotalScenarios, result.Errors, result.ErrorRate,
	)
	fmt.Fprintf(w, "duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)

	names := make([]string, 0, len(result.Outcomes))
	for name := range result.Outcomes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "outcome %s=%d\n", name, result.Outcomes[name])
	}

	fmt.Fprintf(w, "scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.ScenarioLatencyMs.Min,
		result.ScenarioLatencyMs.Avg,
		result.ScenarioLatencyMs.P50,
		result.ScenarioLatencyMs.P95,
		result.ScenarioLatencyMs.P99,
		result.ScenarioLatencyMs.Max,
	)

	steps := make([]string, 0, len(result.Steps))
	for name := range result.Steps {
		steps = append(steps, name)
	}
	sort.Strings(steps)
	for _, name := range steps {
		stats := result.Steps[name]
		fmt.Fprintf(w, "%s: calls=%d p95=%.2fms statuses=%v\n", name, stats.Calls, stats.LatencyMs.P95, stats.Statuses)
	}
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func ratio(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) / float64(total)
}
