// Package benchmarks runs synthetic access patterns against cache
// configurations and reports the results.
package benchmarks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/sarchlab/cachemodel/loader"
	"github.com/sarchlab/cachemodel/timing/cache"
)

// Version is reported in JSON output.
const Version = "1.0.0"

// Pattern defines a single synthetic access pattern.
type Pattern struct {
	// Name identifies the pattern
	Name string

	// Description explains what the pattern measures
	Description string

	// Generate produces the accesses. It must be deterministic.
	Generate func() []cache.Access
}

// Result holds the outcome of replaying one pattern on one cache.
type Result struct {
	Pattern string `json:"pattern"`
	Cache   string `json:"cache"`

	Topology      string `json:"topology"`
	Policy        string `json:"policy"`
	Size          int    `json:"size_bytes"`
	BlockSize     int    `json:"block_size"`
	Associativity int    `json:"associativity"`

	Accesses uint64 `json:"accesses"`
	Reads    uint64 `json:"reads"`
	Writes   uint64 `json:"writes"`
	Hits     uint64 `json:"hits"`

	CompulsoryMisses uint64 `json:"compulsory_misses"`
	CapacityMisses   uint64 `json:"capacity_misses"`
	ConflictMisses   uint64 `json:"conflict_misses"`
	Evictions        uint64 `json:"evictions"`
	Writebacks       uint64 `json:"writebacks"`

	HitRatio  float64 `json:"hit_ratio"`
	MissRatio float64 `json:"miss_ratio"`
	AMAT      float64 `json:"amat"`

	// WallTime is the actual time taken to replay the pattern
	WallTime time.Duration `json:"wall_time_ns"`

	// Report is the full cache report, used by the text output.
	Report cache.Report `json:"-"`
}

// NewResult flattens a cache report into a Result row.
func NewResult(pattern string, report cache.Report, wallTime time.Duration) Result {
	s := report.Stats
	return Result{
		Pattern:          pattern,
		Cache:            report.Name,
		Topology:         string(report.Topology),
		Policy:           report.Policy.String(),
		Size:             report.Size,
		BlockSize:        report.BlockSize,
		Associativity:    report.Associativity,
		Accesses:         s.Totals.Sum(),
		Reads:            s.Totals.Reads,
		Writes:           s.Totals.Writes,
		Hits:             s.Hits(),
		CompulsoryMisses: s.Misses.Compulsory,
		CapacityMisses:   s.Misses.Capacity,
		ConflictMisses:   s.Misses.Conflict,
		Evictions:        s.Evictions,
		Writebacks:       s.Writebacks,
		HitRatio:         s.HitRatio(),
		MissRatio:        s.MissRatio(),
		AMAT:             report.AMAT(),
		WallTime:         wallTime,
		Report:           report,
	}
}

// HarnessConfig configures the benchmark harness.
type HarnessConfig struct {
	// Caches are the configurations every pattern runs against. A fresh
	// cache is built for each run.
	Caches []cache.Config

	// Hooks are attached to every cache that is built.
	Hooks []sim.Hook

	// Parallelism bounds the number of concurrent runs. 0 means GOMAXPROCS.
	Parallelism int

	// Logger receives progress messages (default: the standard logger)
	Logger *logrus.Logger

	// Output is where to write results (default: os.Stdout)
	Output io.Writer

	// Verbose logs every finished run
	Verbose bool
}

// DefaultConfig returns a harness configuration comparing the policies on
// a 32 KiB, 8-way cache, next to direct-mapped and fully-associative caches
// of the same size.
func DefaultConfig() HarnessConfig {
	base := cache.Config{
		Size:          cache.KiB(32),
		BlockSize:     64,
		Associativity: 8,
		AddressWidth:  cache.DefaultAddressWidth,
		HitLatency:    1,
		MissPenalty:   10,
	}

	var caches []cache.Config

	dm := base
	dm.Name = "dm_32k"
	dm.Associativity = 1
	dm.Policy = cache.PolicyNone
	caches = append(caches, dm)

	for _, p := range cache.Policies()[1:] {
		c := base
		c.Name = fmt.Sprintf("sa8_32k_%s", p)
		c.Policy = p
		caches = append(caches, c)
	}

	fa := base
	fa.Name = "fa_32k_LRU"
	fa.Associativity = base.NumLines()
	fa.Policy = cache.PolicyLRU
	caches = append(caches, fa)

	return HarnessConfig{
		Caches: caches,
		Output: os.Stdout,
	}
}

// Harness runs patterns against caches and reports results.
type Harness struct {
	config   HarnessConfig
	patterns []Pattern
	log      *logrus.Logger
}

// NewHarness creates a new benchmark harness.
func NewHarness(config HarnessConfig) *Harness {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Parallelism <= 0 {
		config.Parallelism = runtime.GOMAXPROCS(0)
	}

	// Every run builds a fresh cache, so names are fixed up front to keep
	// rows of the same configuration comparable.
	config.Caches = append([]cache.Config(nil), config.Caches...)
	for i := range config.Caches {
		if config.Caches[i].Name == "" {
			config.Caches[i].Name = fmt.Sprintf("%s_cache_%d",
				cache.TopologyOf(config.Caches[i]), i)
		}
	}

	log := config.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Harness{
		config:   config,
		patterns: []Pattern{},
		log:      log,
	}
}

// AddPattern adds a pattern to the harness.
func (h *Harness) AddPattern(p Pattern) {
	h.patterns = append(h.patterns, p)
}

// AddPatterns adds multiple patterns to the harness.
func (h *Harness) AddPatterns(patterns []Pattern) {
	h.patterns = append(h.patterns, patterns...)
}

// RunAll replays every pattern on every cache. Runs execute concurrently;
// results are ordered by pattern, then by cache. The first failing run
// aborts the remaining ones.
func (h *Harness) RunAll() ([]Result, error) {
	numCaches := len(h.config.Caches)
	results := make([]Result, len(h.patterns)*numCaches)

	var g errgroup.Group
	g.SetLimit(h.config.Parallelism)

	for i, p := range h.patterns {
		accesses := p.Generate()
		for j, config := range h.config.Caches {
			slot := i*numCaches + j
			g.Go(func() error {
				r, err := h.run(p.Name, config, accesses)
				if err != nil {
					return fmt.Errorf("pattern %s on cache %s: %w",
						p.Name, config.Name, err)
				}
				results[slot] = r
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func (h *Harness) run(
	pattern string,
	config cache.Config,
	accesses []cache.Access,
) (Result, error) {
	opts := []cache.Option{cache.WithLogger(h.log)}
	for _, hook := range h.config.Hooks {
		opts = append(opts, cache.WithHook(hook))
	}

	c, err := cache.New(config, opts...)
	if err != nil {
		return Result{}, err
	}

	start := time.Now()
	if err := loader.Replay(c, accesses); err != nil {
		return Result{}, err
	}
	wallTime := time.Since(start)

	result := NewResult(pattern, c.Report(), wallTime)

	if h.config.Verbose {
		h.log.WithFields(logrus.Fields{
			"pattern":   pattern,
			"cache":     result.Cache,
			"hit_ratio": fmt.Sprintf("%.4f", result.HitRatio),
			"amat":      fmt.Sprintf("%.3f", result.AMAT),
		}).Info("run finished")
	}

	return result, nil
}

// PrintResults outputs results in a human-readable format.
func (h *Harness) PrintResults(results []Result) {
	out := h.config.Output
	_, _ = fmt.Fprintln(out, "=== Cache Model Benchmark Results ===")
	_, _ = fmt.Fprintln(out, "")

	pattern := ""
	for _, r := range results {
		if r.Pattern != pattern {
			pattern = r.Pattern
			_, _ = fmt.Fprintf(out, "Pattern: %s\n\n", r.Pattern)
		}
		_ = r.Report.Write(out)
		_, _ = fmt.Fprintf(out, " -> Wall Time:\t%v\n", r.WallTime)
		_, _ = fmt.Fprintln(out, "")
	}
}

// PrintCSV outputs results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []Result) {
	_, _ = fmt.Fprintln(h.config.Output,
		"pattern,cache,topology,policy,size,block_size,ways,accesses,reads,writes,hits,compulsory,capacity,conflict,evictions,writebacks,hit_ratio,amat")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output,
			"%s,%s,%s,%s,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%.4f,%.3f\n",
			r.Pattern,
			r.Cache,
			r.Topology,
			r.Policy,
			r.Size,
			r.BlockSize,
			r.Associativity,
			r.Accesses,
			r.Reads,
			r.Writes,
			r.Hits,
			r.CompulsoryMisses,
			r.CapacityMisses,
			r.ConflictMisses,
			r.Evictions,
			r.Writebacks,
			r.HitRatio,
			r.AMAT,
		)
	}
}

// BenchmarkReport is the complete JSON output format.
type BenchmarkReport struct {
	// Metadata about the benchmark run
	Metadata ReportMetadata `json:"metadata"`

	// Results is the list of individual runs
	Results []Result `json:"results"`

	// Summary contains aggregate statistics
	Summary ReportSummary `json:"summary"`
}

// ReportMetadata contains information about the benchmark run.
type ReportMetadata struct {
	Timestamp string   `json:"timestamp"`
	Version   string   `json:"version"`
	Caches    []string `json:"caches"`
}

// ReportSummary contains aggregate statistics across all runs.
type ReportSummary struct {
	TotalRuns     int           `json:"total_runs"`
	TotalAccesses uint64        `json:"total_accesses"`
	MeanHitRatio  float64       `json:"mean_hit_ratio"`
	MeanAMAT      float64       `json:"mean_amat"`
	TotalWallTime time.Duration `json:"total_wall_time_ns"`
}

// Summarize computes aggregate statistics over results.
func Summarize(results []Result) ReportSummary {
	summary := ReportSummary{TotalRuns: len(results)}
	if len(results) == 0 {
		return summary
	}

	hitRatios := make([]float64, len(results))
	amats := make([]float64, len(results))
	for i, r := range results {
		summary.TotalAccesses += r.Accesses
		summary.TotalWallTime += r.WallTime
		hitRatios[i] = r.HitRatio
		amats[i] = r.AMAT
	}
	summary.MeanHitRatio = stat.Mean(hitRatios, nil)
	summary.MeanAMAT = stat.Mean(amats, nil)

	return summary
}

// PrintJSON outputs results in JSON format for automated comparison.
func (h *Harness) PrintJSON(results []Result) error {
	names := make([]string, 0, len(h.config.Caches))
	for _, c := range h.config.Caches {
		names = append(names, c.Name)
	}

	report := BenchmarkReport{
		Metadata: ReportMetadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   Version,
			Caches:    names,
		},
		Results: results,
		Summary: Summarize(results),
	}

	encoder := json.NewEncoder(h.config.Output)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
