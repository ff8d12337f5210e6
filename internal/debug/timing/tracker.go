// Package timing records per-stage durations of a pipeline run.
package timing

import (
	"sort"
	"sync"
	"time"
)

// Sink receives each completed stage. logger.Logger satisfies it through
// an adapter in the pipeline.
type Sink interface {
	StageCompleted(stage string, duration time.Duration)
}

type Tracker struct {
	timings map[string][]time.Duration
	order   []string
	mu      sync.RWMutex
	sink    Sink
	now     func() time.Time
}

func NewTracker(sink Sink) *Tracker {
	return &Tracker{
		timings: make(map[string][]time.Duration),
		sink:    sink,
		now:     time.Now,
	}
}

// Start begins timing stage and returns the function that ends it.
// Safe for concurrent stages.
func (tt *Tracker) Start(stage string) func() time.Duration {
	start := tt.now()
	return func() time.Duration {
		d := tt.now().Sub(start)
		tt.Record(stage, d)
		return d
	}
}

func (tt *Tracker) Record(stage string, d time.Duration) {
	tt.mu.Lock()
	if _, seen := tt.timings[stage]; !seen {
		tt.order = append(tt.order, stage)
	}
	tt.timings[stage] = append(tt.timings[stage], d)
	tt.mu.Unlock()

	if tt.sink != nil {
		tt.sink.StageCompleted(stage, d)
	}
}

func (tt *Tracker) Timings(stage string) []time.Duration {
	tt.mu.RLock()
	defer tt.mu.RUnlock()

	timings := tt.timings[stage]
	if timings == nil {
		return nil
	}

	result := make([]time.Duration, len(timings))
	copy(result, timings)
	return result
}

func (tt *Tracker) Total(stage string) time.Duration {
	var total time.Duration
	for _, d := range tt.Timings(stage) {
		total += d
	}
	return total
}

func (tt *Tracker) Average(stage string) time.Duration {
	timings := tt.Timings(stage)
	if len(timings) == 0 {
		return 0
	}
	return tt.Total(stage) / time.Duration(len(timings))
}

// StageTiming is one row of Summary.
type StageTiming struct {
	Stage string
	Count int
	Total time.Duration
}

// Summary lists stages in first-recorded order.
func (tt *Tracker) Summary() []StageTiming {
	tt.mu.RLock()
	defer tt.mu.RUnlock()

	out := make([]StageTiming, 0, len(tt.order))
	for _, stage := range tt.order {
		var total time.Duration
		for _, d := range tt.timings[stage] {
			total += d
		}
		out = append(out, StageTiming{Stage: stage, Count: len(tt.timings[stage]), Total: total})
	}
	return out
}

// Slowest returns up to n stages by descending total time.
func (tt *Tracker) Slowest(n int) []StageTiming {
	summary := tt.Summary()
	sort.SliceStable(summary, func(i, j int) bool {
		return summary[i].Total > summary[j].Total
	})
	if n < len(summary) {
		summary = summary[:n]
	}
	return summary
}

func (tt *Tracker) Reset(stage string) {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	if stage == "" {
		tt.timings = make(map[string][]time.Duration)
		tt.order = nil
		return
	}

	delete(tt.timings, stage)
	for i, s := range tt.order {
		if s == stage {
			tt.order = append(tt.order[:i], tt.order[i+1:]...)
			break
		}
	}
}
