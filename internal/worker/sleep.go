package worker

import "time"

// nextSleep adapts the poll interval to throughput. A fully productive batch
// drives the interval toward the minimum; an unproductive one stretches it by
// the batch size, clamped to [min, max].
func nextSleep(current time.Duration, executed, batchSize int, min, max time.Duration) time.Duration {
	if batchSize <= 0 {
		return clampSleep(current, min, max)
	}
	ratio := float64(executed) / float64(batchSize)
	next := time.Duration(float64(current) * (1 - ratio) * float64(batchSize))
	return clampSleep(next, min, max)
}

func clampSleep(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}
