package policy

import "time"

// DefaultCacheTTL bounds how long a cached policy may be served without a
// fresh read. Disclosure policies change rarely but must converge quickly
// when they do; keep this short.
var DefaultCacheTTL = 5 * time.Minute
