package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"

	"google.golang.org/grpc/codes"
)

// scenarioMethod — псевдо-метод, под которым учитывается сценарий целиком.
const scenarioMethod = "scenario"

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type methodReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

// numberReport — проверка уникальности sequence_number в пределах аккаунта.
type numberReport struct {
	Issued      int     `json:"issued"`
	Distinct    int     `json:"distinct"`
	Duplicates  []int64 `json:"duplicates,omitempty"`
	MinSequence int64   `json:"min_sequence"`
	MaxSequence int64   `json:"max_sequence"`
	// Gaps — пропуски в диапазоне [min, max]; возможны, если счётчик уже использовался.
	Gaps int64 `json:"gaps"`
}

type report struct {
	StartedAt         time.Time               `json:"started_at"`
	AccountID         string                  `json:"account_id"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	TotalScenarios    int64                   `json:"total_scenarios"`
	SuccessScenarios  int64                   `json:"success_scenarios"`
	FailedScenarios   int64                   `json:"failed_scenarios"`
	ErrorRate         float64                 `json:"error_rate"`
	RPS               float64                 `json:"rps"`
	ScenarioLatencyMs latencySummary          `json:"scenario_latency_ms"`
	Methods           map[string]methodReport `json:"methods"`
	Numbers           numberReport            `json:"numbers"`
}

// calls накапливает исходы одного метода.
type calls struct {
	byCode map[codes.Code]int64
	ms     []float64
}

func (c *calls) toReport() methodReport {
	out := methodReport{Codes: make(map[string]int64, len(c.byCode)), LatencyMs: summarize(c.ms)}
	for code, n := range c.byCode {
		out.Calls += n
		if code == codes.OK {
			out.Success += n
		} else {
			out.Failed += n
		}
		out.Codes[code.String()] = n
	}
	out.ErrorRate = ratio(out.Failed, out.Calls)
	return out
}

type collector struct {
	mu      sync.Mutex
	methods map[string]*calls
	numbers []int64
}

func newCollector() *collector {
	return &collector{methods: make(map[string]*calls)}
}

func (c *collector) record(method string, latency time.Duration, code codes.Code) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.methods[method]
	if m == nil {
		m = &calls{byCode: make(map[codes.Code]int64)}
		c.methods[method] = m
	}
	m.byCode[code]++
	m.ms = append(m.ms, float64(latency.Microseconds())/1000)
}

func (c *collector) recordNumber(seq int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.numbers = append(c.numbers, seq)
}

func (c *collector) buildReport(startedAt time.Time, elapsed time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: elapsed.Seconds(),
		Methods:         make(map[string]methodReport, len(c.methods)),
		Numbers:         checkNumbers(c.numbers),
	}
	for name, m := range c.methods {
		r.Methods[name] = m.toReport()
	}

	if sc, ok := r.Methods[scenarioMethod]; ok {
		r.TotalScenarios, r.SuccessScenarios, r.FailedScenarios = sc.Calls, sc.Success, sc.Failed
		r.ErrorRate = sc.ErrorRate
		r.ScenarioLatencyMs = sc.LatencyMs
	}
	if elapsed > 0 {
		r.RPS = float64(r.TotalScenarios) / elapsed.Seconds()
	}
	return r
}

// checkNumbers ищет повторно выданные номера и пропуски.
func checkNumbers(numbers []int64) numberReport {
	out := numberReport{Issued: len(numbers)}
	if len(numbers) == 0 {
		return out
	}

	sorted := slices.Clone(numbers)
	slices.Sort(sorted)
	out.MinSequence, out.MaxSequence = sorted[0], sorted[len(sorted)-1]

	seen := make(map[int64]int, len(sorted))
	for _, n := range sorted {
		seen[n]++
		if seen[n] == 2 {
			out.Duplicates = append(out.Duplicates, n)
		}
	}
	out.Distinct = len(seen)
	out.Gaps = out.MaxSequence - out.MinSequence + 1 - int64(out.Distinct)
	return out
}

func summarize(ms []float64) latencySummary {
	if len(ms) == 0 {
		return latencySummary{}
	}

	sorted := slices.Clone(ms)
	slices.Sort(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
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

// percentile интерполирует между соседними рангами отсортированной выборки.
func percentile(sorted []float64, p float64) float64 {
	switch len(sorted) {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lo, hi := int(math.Floor(rank)), int(math.Ceil(rank))
	return sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo))
}

func ratio(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) / float64(total)
}

// writeJSONReport пишет отчёт в файл внутри текущего каталога.
func writeJSONReport(path string, r report) error {
	clean := filepath.Clean(path)
	if clean == "." || !filepath.IsLocal(clean) {
		return fmt.Errorf("report path must name a file inside the working directory: %q", path)
	}

	// #nosec G304 -- путь задан явным флагом -output.
	f, err := os.Create(clean)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return errors.Join(enc.Encode(r), f.Close())
}

func printReport(out io.Writer, r report, cfg config) {
	lat := r.ScenarioLatencyMs
	lines := []string{
		"Load test summary",
		fmt.Sprintf("mode=%s account=%s total=%d success=%d failed=%d error_rate=%.4f",
			cfg.mode, r.AccountID, r.TotalScenarios, r.SuccessScenarios, r.FailedScenarios, r.ErrorRate),
		fmt.Sprintf("duration=%.2fs rps=%.2f", r.DurationSeconds, r.RPS),
		fmt.Sprintf("scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f",
			lat.Min, lat.Avg, lat.P50, lat.P95, lat.P99, lat.Max),
		fmt.Sprintf("numbers: issued=%d distinct=%d duplicates=%d range=%d..%d gaps=%d",
			r.Numbers.Issued, r.Numbers.Distinct, len(r.Numbers.Duplicates),
			r.Numbers.MinSequence, r.Numbers.MaxSequence, r.Numbers.Gaps),
	}

	names := make([]string, 0, len(r.Methods))
	for name := range r.Methods {
		if name != scenarioMethod {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		m := r.Methods[name]
		lines = append(lines, fmt.Sprintf("%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms",
			name, m.Calls, m.Success, m.Failed, m.ErrorRate, m.LatencyMs.P95))
	}

	for _, l := range lines {
		_, _ = fmt.Fprintln(out, l)
	}
}
