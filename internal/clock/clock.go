package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// TimeSource is the clock the engine and session controllers read.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type TimeSource interface {
	Now() time.Time
	NewTicker(d time.Duration) clockwork.Ticker
}

var _ TimeSource = clockwork.NewRealClock()
