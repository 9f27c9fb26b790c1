package scheduler_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edge-analyzer/internal/scheduler"
)

func TestIsDue(t *testing.T) {
	tests := map[string]struct {
		tick     int64
		interval int
		want     bool
	}{
		"ten on five":          {tick: 10, interval: 5, want: true},
		"seven on five":        {tick: 7, interval: 5, want: false},
		"first tick of one":    {tick: 1, interval: 1, want: true},
		"tick equals interval": {tick: 3, interval: 3, want: true},
		"before interval":      {tick: 2, interval: 3, want: false},
		"zero interval":        {tick: 10, interval: 0, want: false},
		"negative interval":    {tick: 10, interval: -5, want: false},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, scheduler.IsDue(tc.tick, tc.interval))
		})
	}
}

func TestIsDueMatchesModulo(t *testing.T) {
	for interval := 1; interval <= 12; interval++ {
		for tick := int64(1); tick <= 120; tick++ {
			require.Equal(t, tick%int64(interval) == 0, scheduler.IsDue(tick, interval),
				"tick %d interval %d", tick, interval)
		}
	}
}

func TestCounterIsOneIndexed(t *testing.T) {
	c := scheduler.NewCounter(0)
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Advance())
	assert.Equal(t, int64(2), c.Advance())
	assert.Equal(t, int64(2), c.Current())
}

func TestCounterConcurrentAdvance(t *testing.T) {
	c := scheduler.NewCounter(0)

	const workers, perWorker = 8, 250
	seen := make(chan int64, workers*perWorker)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				seen <- c.Advance()
			}
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[int64]struct{})
	for tick := range seen {
		unique[tick] = struct{}{}
	}
	assert.Len(t, unique, workers*perWorker, "every advance must return a distinct tick")
	assert.Equal(t, int64(workers*perWorker), c.Current())
}

func TestCounterStartsFromInjectedValue(t *testing.T) {
	c := scheduler.NewCounter(41)
	assert.Equal(t, int64(42), c.Advance())
}
