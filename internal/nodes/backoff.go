package nodes

import "time"

// MaxRetries is how many automatic respawns a failed node gets before it
// requires an operator restart.
const MaxRetries = 3

// NextRetryDelay returns the delay before the retryCount-th automatic
// respawn (1-based): 1s, 2s, 4s. ok is false once the retry budget is
// exhausted.
func NextRetryDelay(retryCount int) (delay time.Duration, ok bool) {
	if retryCount < 1 || retryCount > MaxRetries {
		return 0, false
	}
	return time.Duration(1<<(retryCount-1)) * time.Second, true
}
