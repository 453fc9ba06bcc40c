// Package main benchmarks the prioritized space-time planner on random
// grid instances and reports success rate and latency percentiles.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/2020134026LWJ/TU-Capstone-Design/internal/core"
	"github.com/2020134026LWJ/TU-Capstone-Design/internal/planner"
)

type trial struct {
	agents   int
	duration time.Duration
	ok       bool
}

func main() {
	width := flag.Int("width", 20, "grid width")
	height := flag.Int("height", 20, "grid height")
	agents := flag.Int("agents", 8, "robots per instance")
	trials := flag.Int("trials", 100, "instances to run")
	maxTime := flag.Int("maxtime", planner.DefaultMaxTime, "planning horizon in ticks")
	seed := flag.Int64("seed", 42, "random seed")
	csvPath := flag.String("csv", "", "optional per-trial CSV output")
	flag.Parse()

	g := core.Grid(*width, *height)
	p := planner.New(g, *maxTime, planner.DefaultStayAtGoal)
	rng := rand.New(rand.NewSource(*seed))
	total := *width * *height

	results := make([]trial, 0, *trials)
	for i := 0; i < *trials; i++ {
		reqs := randomRequests(rng, total, *agents)
		start := time.Now()
		_, err := p.PlanPrioritized(reqs)
		results = append(results, trial{
			agents:   *agents,
			duration: time.Since(start),
			ok:       err == nil,
		})
	}

	report(results, *width, *height, *maxTime)
	if *csvPath != "" {
		if err := writeCSV(*csvPath, results); err != nil {
			fmt.Fprintln(os.Stderr, "planbench:", err)
			os.Exit(1)
		}
		fmt.Println("per-trial results:", *csvPath)
	}
}

// randomRequests draws distinct starts and distinct goals so instances
// are well formed; crossings still make some of them infeasible.
func randomRequests(rng *rand.Rand, total, agents int) []planner.Request {
	starts := distinct(rng, total, agents)
	goals := distinct(rng, total, agents)
	reqs := make([]planner.Request, agents)
	for i := range reqs {
		reqs[i] = planner.Request{Start: core.NodeID(starts[i]), Goal: core.NodeID(goals[i])}
	}
	return reqs
}

func distinct(rng *rand.Rand, total, n int) []int {
	seen := make(map[int]bool, n)
	out := make([]int, 0, n)
	for len(out) < n {
		v := rng.Intn(total) + 1
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func report(results []trial, width, height, maxTime int) {
	durations := make([]time.Duration, 0, len(results))
	succeeded := 0
	for _, r := range results {
		durations = append(durations, r.duration)
		if r.ok {
			succeeded++
		}
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	fmt.Printf("grid %dx%d, %d agents, horizon %d, %d trials\n",
		width, height, results[0].agents, maxTime, len(results))
	fmt.Printf("success: %d/%d (%.1f%%)\n",
		succeeded, len(results), 100*float64(succeeded)/float64(len(results)))
	fmt.Printf("latency: p50=%v p95=%v p99=%v max=%v\n",
		percentile(durations, 50), percentile(durations, 95),
		percentile(durations, 99), durations[len(durations)-1])
}

func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := (len(sorted)-1)*p/100
	return sorted[idx]
}

func writeCSV(path string, results []trial) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()
	if err := w.Write([]string{"trial", "agents", "duration_us", "success"}); err != nil {
		return err
	}
	for i, r := range results {
		row := []string{
			strconv.Itoa(i),
			strconv.Itoa(r.agents),
			strconv.FormatInt(r.duration.Microseconds(), 10),
			strconv.FormatBool(r.ok),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}
