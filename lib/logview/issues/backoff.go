package issues

import (
	"math/rand"
	"time"
)

const (
	// SlowPollInterval is the ceiling of the growing part of the retry delay
	SlowPollInterval = 10 * time.Second
	// maxSlowPollJitter is the upper bound (exclusive) of the jitter added once the ceiling is reached
	maxSlowPollJitter = 200 * time.Millisecond
	// growth jitter bounds [min, max)
	minGrowthJitter = 5 * time.Millisecond
	maxGrowthJitter = 15 * time.Millisecond
)

// ComputeRetryDelay returns the delay before the next retry given the number of consecutive
// failures (including the current one) and the previous delay.
//
//   - first failure: retry immediately
//   - previous delay below SlowPollInterval: previous * 1.5 + U[5ms,15ms)
//   - otherwise (or if the growth exceeds the ceiling): SlowPollInterval + U[1ms,200ms)
func ComputeRetryDelay(failures int, previous time.Duration) time.Duration {
	if failures <= 1 {
		return 0
	}
	if previous < SlowPollInterval {
		jitter := minGrowthJitter + time.Duration(rand.Int63n(int64(maxGrowthJitter-minGrowthJitter)))
		next := previous*3/2 + jitter
		if next <= SlowPollInterval {
			return next
		}
	}
	return SlowPollInterval + time.Millisecond + time.Duration(rand.Int63n(int64(maxSlowPollJitter-time.Millisecond)))
}
