package cache

import (
	"fmt"
	"time"
)

// RateLimitKey is the counter key for a credential prefix within the
// fixed window containing at.
func RateLimitKey(keyPrefix string, at time.Time, window time.Duration) string {
	return fmt.Sprintf("ratelimit:%s:%d", keyPrefix, at.Truncate(window).Unix())
}
