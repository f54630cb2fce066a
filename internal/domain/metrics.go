package domain

import "time"

// Metrics receives dispatch and cache observations. Implementations must be
// safe for concurrent use.
type Metrics interface {
	ObserveCall(tool string, status CallStatus, duration time.Duration)
	ObserveCacheLookup(cache string, hit bool)
	SetCatalogSize(n int)
	ObserveTaskStart(tool string)
}
