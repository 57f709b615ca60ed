package circuitbreaker

import "time"

// NowFn is the function used to determine the current time.
type NowFn func() time.Time
