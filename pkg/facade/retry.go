package facade

import (
	"time"

	"github.com/polarismesh/polaris-go-sub002/pkg/api"
)

// withRetry runs op up to maxTimes+1 total attempts, sleeping
// intervalMs between attempts, and stops early on a non-retryable
// error: only network/server errors retry, bounded by a configured
// retry budget. A zero maxTimes means "try once, no retry".
func withRetry(maxTimes int, intervalMs int64, op func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxTimes; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !api.CodeOf(lastErr).Retryable() {
			return lastErr
		}
		if attempt == maxTimes {
			break
		}
		if intervalMs > 0 {
			time.Sleep(time.Duration(intervalMs) * time.Millisecond)
		}
	}
	return lastErr
}
