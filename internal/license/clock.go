package license

import "time"

// Clock abstracts time for the retry/backoff loop and grace arithmetic
// so tests run without real timers.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock is the production clock.
var SystemClock Clock = systemClock{}
