package flashbench

import "time"

// timeSource abstracts sleeping and reading the clock so busy-wait and retry
// loops can run under a simulated clock in tests.
type timeSource interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realTime struct{}

func (realTime) Now() time.Time        { return time.Now() }
func (realTime) Sleep(d time.Duration) { time.Sleep(d) }
