package realtime

import "time"

// maxReconnectDelay caps exponential backoff growth.
const maxReconnectDelay = 30 * time.Second

// backoffDelay returns the delay before reconnect attempt n (1-based):
// base * 2^(n-1), capped at maxReconnectDelay. Monotonically non-decreasing
// per attempt.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxReconnectDelay {
			return maxReconnectDelay
		}
	}
	if delay > maxReconnectDelay {
		return maxReconnectDelay
	}
	return delay
}
