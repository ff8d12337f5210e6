package timing

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	stages []string
}

func (s *recordingSink) StageCompleted(stage string, _ time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stages = append(s.stages, stage)
}

func fakeClock(step time.Duration) func() time.Time {
	var mu sync.Mutex
	t := time.Unix(0, 0)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(step)
		return t
	}
}

func TestStartRecordsDuration(t *testing.T) {
	sink := &recordingSink{}
	tr := NewTracker(sink)
	tr.now = fakeClock(10 * time.Millisecond)

	stop := tr.Start("load")
	d := stop()

	assert.Equal(t, 10*time.Millisecond, d)
	assert.Equal(t, []time.Duration{10 * time.Millisecond}, tr.Timings("load"))
	assert.Equal(t, []string{"load"}, sink.stages)
}

func TestSummaryKeepsFirstRecordedOrder(t *testing.T) {
	tr := NewTracker(nil)
	tr.Record("posteriors", 3*time.Millisecond)
	tr.Record("load", 1*time.Millisecond)
	tr.Record("posteriors", 5*time.Millisecond)

	summary := tr.Summary()
	require.Len(t, summary, 2)
	assert.Equal(t, StageTiming{Stage: "posteriors", Count: 2, Total: 8 * time.Millisecond}, summary[0])
	assert.Equal(t, "load", summary[1].Stage)
	assert.Equal(t, 4*time.Millisecond, tr.Average("posteriors"))
}

func TestSlowest(t *testing.T) {
	tr := NewTracker(nil)
	tr.Record("a", 1*time.Millisecond)
	tr.Record("b", 9*time.Millisecond)
	tr.Record("c", 4*time.Millisecond)

	slowest := tr.Slowest(2)
	require.Len(t, slowest, 2)
	assert.Equal(t, "b", slowest[0].Stage)
	assert.Equal(t, "c", slowest[1].Stage)
}

func TestReset(t *testing.T) {
	tr := NewTracker(nil)
	tr.Record("a", time.Millisecond)
	tr.Record("b", time.Millisecond)

	tr.Reset("a")
	assert.Nil(t, tr.Timings("a"))
	assert.Len(t, tr.Summary(), 1)

	tr.Reset("")
	assert.Empty(t, tr.Summary())
	assert.Zero(t, tr.Average("b"))
}

func TestConcurrentStages(t *testing.T) {
	tr := NewTracker(&recordingSink{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Start("histogram")()
		}()
	}
	wg.Wait()

	assert.Len(t, tr.Timings("histogram"), 8)
}
