package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"
	"time"
)

const scenarioMethod = "scenario"

// orderOutcome — чем закончился сценарий с точки зрения остатка.
type orderOutcome int

const (
	outcomeCreated orderOutcome = iota
	outcomeSoldOut
	// outcomeReleased — заказ создан и затем отменён, остаток вернулся.
	outcomeReleased
)

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

// stockReport сверяет проданное количество с начальным остатком.
type stockReport struct {
	InitialStock  int  `json:"initial_stock"`
	OrdersCreated int  `json:"orders_created"`
	OrdersSoldOut int  `json:"orders_sold_out"`
	UnitsSold     int  `json:"units_sold"`
	UnitsReleased int  `json:"units_released"`
	Oversold      bool `json:"oversold"`
}

type report struct {
	StartedAt         time.Time               `json:"started_at"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	TotalScenarios    int64                   `json:"total_scenarios"`
	SuccessScenarios  int64                   `json:"success_scenarios"`
	FailedScenarios   int64                   `json:"failed_scenarios"`
	ErrorRate         float64                 `json:"error_rate"`
	RPS               float64                 `json:"rps"`
	ScenarioLatencyMs latencySummary          `json:"scenario_latency_ms"`
	Methods           map[string]methodReport `json:"methods"`
	Stock             stockReport             `json:"stock"`
}

// samples — задержки в миллисекундах.
type samples []float64

func (s samples) summary() latencySummary {
	if len(s) == 0 {
		return latencySummary{}
	}
	sorted := slices.Sorted(slices.Values(s))
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

// percentile — линейная интерполяция между соседними рангами отсортированной выборки.
func percentile(sorted []float64, p float64) float64 {
	switch len(sorted) {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo, frac := math.Modf(rank)
	i := int(lo)
	if i+1 >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	return sorted[i] + (sorted[i+1]-sorted[i])*frac
}

type methodStats struct {
	report  methodReport
	latency samples
}

type collector struct {
	mu       sync.Mutex
	methods  map[string]*methodStats
	outcomes map[orderOutcome]int
}

func newCollector() *collector {
	return &collector{
		methods:  make(map[string]*methodStats),
		outcomes: make(map[orderOutcome]int),
	}
}

func (c *collector) record(method string, latency time.Duration, code int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.methods[method]
	if stats == nil {
		stats = &methodStats{report: methodReport{Codes: make(map[string]int64)}}
		c.methods[method] = stats
	}
	stats.report.Calls++
	if ok {
		stats.report.Success++
	} else {
		stats.report.Failed++
	}
	stats.report.Codes[strconv.Itoa(code)]++
	stats.latency = append(stats.latency, float64(latency.Microseconds())/1000)
}

func (c *collector) outcome(o orderOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes[o]++
}

func (c *collector) buildReport(cfg config, startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Methods:         make(map[string]methodReport, len(c.methods)),
	}
	for name, stats := range c.methods {
		r := stats.report
		r.Codes = maps.Clone(r.Codes)
		r.ErrorRate = ratio(r.Failed, r.Calls)
		r.LatencyMs = stats.latency.summary()
		result.Methods[name] = r
	}

	if scenario, ok := result.Methods[scenarioMethod]; ok {
		result.TotalScenarios = scenario.Calls
		result.SuccessScenarios = scenario.Success
		result.FailedScenarios = scenario.Failed
		result.ErrorRate = scenario.ErrorRate
		result.ScenarioLatencyMs = scenario.LatencyMs
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}

	created := c.outcomes[outcomeCreated] + c.outcomes[outcomeReleased]
	released := c.outcomes[outcomeReleased]
	result.Stock = stockReport{
		InitialStock:  cfg.stock,
		OrdersCreated: created,
		OrdersSoldOut: c.outcomes[outcomeSoldOut],
		UnitsSold:     created * cfg.qty,
		UnitsReleased: released * cfg.qty,
	}
	// Возвращённые отменой единицы можно продать повторно.
	result.Stock.Oversold = result.Stock.UnitsSold > cfg.stock+result.Stock.UnitsReleased
	return result
}

func ratio(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) / float64(total)
}

// writeReportFile пишет отчёт в файл внутри текущего каталога.
func writeReportFile(path string, result report) error {
	clean := filepath.Clean(path)
	if clean == "." || clean == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if !filepath.IsLocal(clean) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return os.WriteFile(clean, append(data, '\n'), 0o600)
}

func printReport(w io.Writer, result report, cfg config) {
	lat := result.ScenarioLatencyMs
	fmt.Fprintf(w, "checkout load: mode=%s product=%s scenarios=%d ok=%d failed=%d error_rate=%.4f\n",
		cfg.mode, cfg.productID, result.TotalScenarios, result.SuccessScenarios, result.FailedScenarios, result.ErrorRate)
	fmt.Fprintf(w, "elapsed=%.2fs rps=%.2f latency_ms min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.DurationSeconds, result.RPS, lat.Min, lat.Avg, lat.P50, lat.P95, lat.P99, lat.Max)

	s := result.Stock
	fmt.Fprintf(w, "stock: initial=%d created=%d sold_out=%d units_sold=%d units_released=%d oversold=%t\n",
		s.InitialStock, s.OrdersCreated, s.OrdersSoldOut, s.UnitsSold, s.UnitsReleased, s.Oversold)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "METHOD\tCALLS\tOK\tFAILED\tP95_MS\tCODES")
	for _, name := range slices.Sorted(maps.Keys(result.Methods)) {
		if name == scenarioMethod {
			continue
		}
		m := result.Methods[name]
		codes := make([]string, 0, len(m.Codes))
		for _, code := range slices.Sorted(maps.Keys(m.Codes)) {
			codes = append(codes, fmt.Sprintf("%s:%d", code, m.Codes[code]))
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%.2f\t%s\n", name, m.Calls, m.Success, m.Failed, m.LatencyMs.P95, strings.Join(codes, ","))
	}
	_ = tw.Flush()
}
