package cmd

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/searcher/handler"
)

var benchFlags struct {
	concurrency  int
	duration     time.Duration
	queriesFile  string
	sourceLocale string
	targetLocale string
	max          int
}

var benchCmd = &cobra.Command{
	Use:   "bench [segment...]",
	Short: "Load test the lookup endpoint",
	Long: `Send lookups from concurrent workers for a fixed duration and report
throughput, latency percentiles, degraded answers and cache hits. Segments
come from the arguments, from --queries (one per line), or a built-in set.`,
	RunE: runBench,
}

func init() {
	f := benchCmd.Flags()
	f.IntVarP(&benchFlags.concurrency, "concurrency", "c", 10, "number of concurrent workers")
	f.DurationVarP(&benchFlags.duration, "duration", "d", 30*time.Second, "test duration")
	f.StringVar(&benchFlags.queriesFile, "queries", "", "file with one segment per line")
	f.StringVarP(&benchFlags.sourceLocale, "source", "s", "en", "source locale")
	f.StringVarP(&benchFlags.targetLocale, "target", "t", "fr", "target locale")
	f.IntVarP(&benchFlags.max, "max", "n", 5, "maximum matches per lookup")
}

var defaultSegments = []string{
	"Open file",
	"Save as",
	"Close window",
	"Are you sure you want to delete this item?",
	"Settings",
	"Search results",
	"Translation memory",
	"Unsaved changes will be lost.",
	"Submit",
	"Suggestions from other projects",
}

type benchStats struct {
	total     atomic.Int64
	success   atomic.Int64
	errors    atomic.Int64
	degraded  atomic.Int64
	cacheHits atomic.Int64
	empty     atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int64
}

func (s *benchStats) record(d time.Duration, code int, resp *handler.LookupResponse, err error) {
	s.total.Add(1)
	if err != nil {
		s.errors.Add(1)
		return
	}
	if code >= 200 && code < 300 {
		s.success.Add(1)
	} else {
		s.errors.Add(1)
	}
	if resp != nil {
		if resp.Degraded {
			s.degraded.Add(1)
		}
		if resp.CacheHit {
			s.cacheHits.Add(1)
		}
		if len(resp.Matches) == 0 {
			s.empty.Add(1)
		}
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.codes[code]++
	s.mu.Unlock()
}

func runBench(_ *cobra.Command, args []string) error {
	segments, err := benchSegments(args)
	if err != nil {
		return err
	}

	fmt.Println("=== Translation Memory Load Test ===")
	fmt.Printf("Target:      %s\n", serverURL)
	fmt.Printf("Concurrency: %d\n", benchFlags.concurrency)
	fmt.Printf("Duration:    %s\n", benchFlags.duration)
	fmt.Printf("Segments:    %d unique\n", len(segments))
	fmt.Println()

	stats := &benchStats{latencies: make([]time.Duration, 0, 100000), codes: make(map[int]int64)}
	c := newClient(timeout)
	c.http.SetRetryCount(0)

	ctx, cancel := context.WithTimeout(context.Background(), benchFlags.duration)
	defer cancel()

	var wg sync.WaitGroup
	for w := range benchFlags.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := w; ctx.Err() == nil; i++ {
				seg := segments[i%len(segments)]
				var out handler.LookupResponse
				start := time.Now()
				resp, err := c.http.R().
					SetContext(ctx).
					SetQueryParams(map[string]string{
						"q":             seg,
						"source_locale": benchFlags.sourceLocale,
						"target_locale": benchFlags.targetLocale,
						"max":           fmt.Sprint(benchFlags.max),
					}).
					SetResult(&out).
					Get("/api/v1/tm/lookup")
				elapsed := time.Since(start)
				if ctx.Err() != nil {
					return
				}
				if err != nil {
					stats.record(elapsed, 0, nil, err)
					continue
				}
				stats.record(elapsed, resp.StatusCode(), &out, nil)
			}
		}()
	}
	wg.Wait()

	printBenchReport(stats, benchFlags.duration)
	return nil
}

func benchSegments(args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	if benchFlags.queriesFile == "" {
		return defaultSegments, nil
	}
	f, err := os.Open(benchFlags.queriesFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s contains no segments", benchFlags.queriesFile)
	}
	return out, nil
}

func printBenchReport(s *benchStats, duration time.Duration) {
	total := s.total.Load()
	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", s.success.Load())
	fmt.Printf("Errors:          %d\n", s.errors.Load())
	fmt.Printf("Degraded:        %d\n", s.degraded.Load())
	fmt.Printf("No matches:      %d\n", s.empty.Load())
	fmt.Printf("Cache hits:      %d\n", s.cacheHits.Load())
	if total > 0 {
		fmt.Printf("Error Rate:      %.2f%%\n", float64(s.errors.Load())/float64(total)*100)
		fmt.Printf("Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}

	s.mu.Lock()
	latencies := append([]time.Duration(nil), s.latencies...)
	codes := make([]int, 0, len(s.codes))
	for code := range s.codes {
		codes = append(codes, code)
	}
	counts := s.codes
	s.mu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))
		var sq float64
		for _, l := range latencies {
			diff := float64(l - avg)
			sq += diff * diff
		}

		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P90:    %s\n", percentile(latencies, 90))
		fmt.Printf("P95:    %s\n", percentile(latencies, 95))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])
		fmt.Printf("StdDev: %s\n", time.Duration(math.Sqrt(sq/float64(len(latencies)))))
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, counts[code])
	}
}

func percentile(sorted []time.Duration, pct float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(pct/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
