// Command loadtest drives concurrent searches against a running searcher
// over HTTP or RPC, cycling queries across pages, and prints throughput,
// latency percentiles and result-shape counts.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"maps"
	"math"
	"os"
	"slices"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/proto"
)

type Config struct {
	Mode        string
	Target      string
	Concurrency int
	Duration    time.Duration
	Pages       int
	PageSize    int
	Queries     []string
}

// tally is owned by one worker; tallies are merged after the run.
type tally struct {
	requests    int
	transport   int
	cacheHits   int
	zeroResults int
	corrections int
	statuses    map[int]int
	latencies   []time.Duration
}

func newTally() *tally {
	return &tally{statuses: make(map[int]int)}
}

func (t *tally) record(elapsed time.Duration, status int, resp *proto.SearchResponse, err error) {
	t.requests++
	if err != nil {
		t.transport++
		return
	}
	t.statuses[status]++
	t.latencies = append(t.latencies, elapsed)
	if resp == nil {
		return
	}
	if resp.Cached {
		t.cacheHits++
	}
	if resp.TotalMatches == 0 {
		t.zeroResults++
	}
	if resp.Correction != "" {
		t.corrections++
	}
}

func (t *tally) merge(o *tally) {
	t.requests += o.requests
	t.transport += o.transport
	t.cacheHits += o.cacheHits
	t.zeroResults += o.zeroResults
	t.corrections += o.corrections
	for code, n := range o.statuses {
		t.statuses[code] += n
	}
	t.latencies = append(t.latencies, o.latencies...)
}

func (t *tally) succeeded() int {
	n := 0
	for code, c := range t.statuses {
		if code >= 200 && code < 300 {
			n += c
		}
	}
	return n
}

var defaultQueries = []string{
	"distributed systems",
	"search engine",
	"full text search",
	"inverted index",
	"query processing",
	"cache optimization",
	"ranking algorithm",
	"cosine similarity",
	"term frequency",
	"page rank",
	"circuit breaker",
	"load balancing",
	"serch engin",
	"the and of",
}

func main() {
	mode := flag.String("mode", "http", "transport: http or rpc")
	targetAddr := flag.String("target", "", "base URL (http) or host:port (rpc); defaults per mode")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	pages := flag.Int("pages", 3, "pages cycled per query")
	pageSize := flag.Int("size", 10, "page size")
	queriesFile := flag.String("queries", "", "file with one query per line")
	flag.Parse()

	cfg := Config{
		Mode:        *mode,
		Target:      *targetAddr,
		Concurrency: max(*concurrency, 1),
		Duration:    *duration,
		Pages:       max(*pages, 1),
		PageSize:    *pageSize,
		Queries:     defaultQueries,
	}
	if cfg.Target == "" {
		cfg.Target = map[string]string{"http": "http://localhost:8080", "rpc": "localhost:9000"}[cfg.Mode]
	}
	if *queriesFile != "" {
		loaded, err := loadQueries(*queriesFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "loading queries: %v\n", err)
			os.Exit(1)
		}
		cfg.Queries = loaded
	}

	fmt.Printf("load test: %s %s, %d workers for %s, %d queries x %d pages of %d\n",
		cfg.Mode, cfg.Target, cfg.Concurrency, cfg.Duration, len(cfg.Queries), cfg.Pages, cfg.PageSize)

	result, err := run(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}
	report(os.Stdout, result, cfg.Duration)
	if result.requests == 0 {
		fmt.Fprintln(os.Stderr, "no requests completed; is the searcher running?")
		os.Exit(1)
	}
}

func loadQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if q := strings.TrimSpace(sc.Text()); q != "" && !strings.HasPrefix(q, "#") {
			out = append(out, q)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s has no queries", path)
	}
	return out, nil
}

// workerTargets gives every worker its own RPC connection; HTTP workers
// share one pooled client.
func workerTargets(cfg Config) ([]target, func(), error) {
	var opened []target
	closeAll := func() {
		for _, t := range opened {
			t.close()
		}
	}
	targets := make([]target, cfg.Concurrency)
	for i := range targets {
		switch {
		case cfg.Mode == "http" && i > 0:
			targets[i] = targets[0]
			continue
		case cfg.Mode == "http":
			targets[i] = newHTTPTarget(cfg.Target, cfg.Concurrency)
		case cfg.Mode == "rpc":
			t, err := newRPCTarget(cfg.Target)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			targets[i] = t
		default:
			return nil, nil, fmt.Errorf("unknown mode %q", cfg.Mode)
		}
		opened = append(opened, targets[i])
	}
	return targets, closeAll, nil
}

func run(cfg Config) (*tally, error) {
	targets, closeAll, err := workerTargets(cfg)
	if err != nil {
		return nil, err
	}
	defer closeAll()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	tallies := make([]*tally, cfg.Concurrency)
	var wg sync.WaitGroup
	for w := range cfg.Concurrency {
		tallies[w] = newTally()
		wg.Go(func() {
			t, own := targets[w], tallies[w]
			// Workers start at different queries so the cache sees a mix
			// of first and repeated lookups.
			for i := w; ctx.Err() == nil; i++ {
				query := cfg.Queries[i%len(cfg.Queries)]
				page := (i/len(cfg.Queries))%cfg.Pages + 1
				start := time.Now()
				resp, status, err := t.search(ctx, query, page, cfg.PageSize)
				if ctx.Err() != nil {
					return
				}
				own.record(time.Since(start), status, resp, err)
			}
		})
	}
	wg.Wait()

	total := newTally()
	for _, t := range tallies {
		total.merge(t)
	}
	return total, nil
}

func report(out io.Writer, t *tally, duration time.Duration) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	failed := t.requests - t.succeeded()
	fmt.Fprintf(w, "requests\t%d\n", t.requests)
	fmt.Fprintf(w, "succeeded\t%d\n", t.succeeded())
	fmt.Fprintf(w, "failed\t%d\t(%d transport)\n", failed, t.transport)
	if t.requests > 0 {
		fmt.Fprintf(w, "error rate\t%.2f%%\n", float64(failed)/float64(t.requests)*100)
		fmt.Fprintf(w, "throughput\t%.1f req/s\n", float64(t.requests)/duration.Seconds())
	}
	fmt.Fprintf(w, "cache hits\t%d\n", t.cacheHits)
	fmt.Fprintf(w, "zero results\t%d\n", t.zeroResults)
	fmt.Fprintf(w, "corrections\t%d\n", t.corrections)

	if lat := t.latencies; len(lat) > 0 {
		slices.Sort(lat)
		var sum time.Duration
		for _, l := range lat {
			sum += l
		}
		mean := sum / time.Duration(len(lat))
		var sq float64
		for _, l := range lat {
			d := float64(l - mean)
			sq += d * d
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "latency\tmin %s\tmean %s\tstddev %s\tmax %s\n",
			lat[0], mean, time.Duration(math.Sqrt(sq/float64(len(lat)))), lat[len(lat)-1])
		fmt.Fprintf(w, "\tp50 %s\tp90 %s\tp95 %s\tp99 %s\n",
			analytics.Percentile(lat, 50), analytics.Percentile(lat, 90),
			analytics.Percentile(lat, 95), analytics.Percentile(lat, 99))
	}

	if len(t.statuses) > 0 {
		fmt.Fprintln(w)
		for _, code := range slices.Sorted(maps.Keys(t.statuses)) {
			fmt.Fprintf(w, "status %d\t%d\n", code, t.statuses[code])
		}
	}
}
