package sequence

import (
	"math"
	"sort"
	"sync"
	"testing"
)

func TestNextIsMonotonicFromLast(t *testing.T) {
	var g Generator
	g.SetLast(41)
	if got := g.Next(); got != 42 {
		t.Fatalf("next got=%d want=42", got)
	}
	if got := g.Last(); got != 42 {
		t.Fatalf("last got=%d want=42", got)
	}
}

func TestConcurrentNextYieldsContiguousDistinctRun(t *testing.T) {
	const workers = 32
	const perWorker = 256

	var g Generator
	results := make([]int32, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				results[w*perWorker+i] = g.Next()
			}
		}(w)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
	for i, v := range results {
		if v != int32(i+1) {
			t.Fatalf("ids not a contiguous distinct run: index %d has %d", i, v)
		}
	}
}

func TestWrapsSilentlyOnOverflow(t *testing.T) {
	var g Generator
	g.SetLast(math.MaxInt32)
	if got := g.Next(); got != math.MinInt32 {
		t.Fatalf("overflow got=%d want=%d", got, math.MinInt32)
	}
}
