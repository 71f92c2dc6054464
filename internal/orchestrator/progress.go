package orchestrator

import (
	"sync"
	"time"
)

// defaultCharsPerSecond seeds the rate estimator before any chunk has
// completed, so the first progress estimate is not zero or infinite.
const defaultCharsPerSecond = 500.0

// rateEstimator tracks an exponentially smoothed characters-per-second
// throughput, used to project remaining time for a file or job in progress.
type rateEstimator struct {
	mu    sync.Mutex
	rate  float64
	alpha float64
}

func newRateEstimator() *rateEstimator {
	return &rateEstimator{rate: defaultCharsPerSecond, alpha: 0.3}
}

// Observe folds one more (chars, elapsed) sample into the running estimate.
func (r *rateEstimator) Observe(chars int, elapsed time.Duration) {
	if elapsed <= 0 || chars <= 0 {
		return
	}
	sample := float64(chars) / elapsed.Seconds()
	r.mu.Lock()
	r.rate = r.alpha*sample + (1-r.alpha)*r.rate
	r.mu.Unlock()
}

// EstimateRemaining projects the time to process charsRemaining more
// characters at the current smoothed rate.
func (r *rateEstimator) EstimateRemaining(charsRemaining int) time.Duration {
	r.mu.Lock()
	rate := r.rate
	r.mu.Unlock()
	if rate <= 0 {
		return 0
	}
	return time.Duration(float64(charsRemaining) / rate * float64(time.Second))
}
