package leibnizpi

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Estimator approximates π with the Leibniz series, partitioning the term
// range into one contiguous block per worker. Unlike the sales queue, this is
// a pure reduction: every worker owns its block, partial sums are merged once
// at the end, and there is no blocking and no termination protocol.
type Estimator struct {
	numWorkers int
	terms      int64
}

// WorkerResult reports one worker's block and timing.
type WorkerResult struct {
	WorkerID   int
	FirstTerm  int64
	TermCount  int64
	PartialSum float64
	Duration   time.Duration
}

// Result contains the combined estimation.
type Result struct {
	EstimatedPi   float64
	Terms         int64
	Duration      time.Duration
	WorkerResults []WorkerResult
}

// NewEstimator creates an estimator. Worker count defaults to the number of
// CPUs; the term count must be positive and at least the worker count so
// every worker gets a non-empty block.
func NewEstimator(numWorkers int, terms int64) (*Estimator, error) {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if terms <= 0 {
		return nil, fmt.Errorf("leibnizpi: term count must be positive, got %d", terms)
	}
	if terms < int64(numWorkers) {
		return nil, fmt.Errorf("leibnizpi: %d terms cannot be split across %d workers", terms, numWorkers)
	}
	return &Estimator{numWorkers: numWorkers, terms: terms}, nil
}

// partialSum evaluates the series over [first, first+count).
func partialSum(first, count int64) float64 {
	sum := 0.0
	sign := 1.0
	if first%2 == 1 {
		sign = -1.0
	}
	for k := first; k < first+count; k++ {
		sum += sign / float64(2*k+1)
		sign = -sign
	}
	return sum
}

// Estimate runs the partitioned reduction. Each worker takes a contiguous
// block of terms; the last worker also takes the remainder.
func (e *Estimator) Estimate() *Result {
	start := time.Now()
	blockSize := e.terms / int64(e.numWorkers)

	workerResults := make([]WorkerResult, e.numWorkers)
	var mu sync.Mutex
	total := 0.0

	var g errgroup.Group
	for i := 0; i < e.numWorkers; i++ {
		workerID := i
		g.Go(func() error {
			first := int64(workerID) * blockSize
			count := blockSize
			if workerID == e.numWorkers-1 {
				count += e.terms % int64(e.numWorkers)
			}

			workerStart := time.Now()
			sum := partialSum(first, count)

			mu.Lock()
			total += sum
			mu.Unlock()

			workerResults[workerID] = WorkerResult{
				WorkerID:   workerID,
				FirstTerm:  first,
				TermCount:  count,
				PartialSum: sum,
				Duration:   time.Since(workerStart),
			}
			return nil
		})
	}
	g.Wait()

	return &Result{
		EstimatedPi:   4 * total,
		Terms:         e.terms,
		Duration:      time.Since(start),
		WorkerResults: workerResults,
	}
}

// EstimateSequential evaluates the whole series on the calling goroutine,
// as a baseline for the parallel version.
func EstimateSequential(terms int64) *Result {
	start := time.Now()
	sum := partialSum(0, terms)
	return &Result{
		EstimatedPi: 4 * sum,
		Terms:       terms,
		Duration:    time.Since(start),
	}
}
