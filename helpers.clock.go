package main

import (
	"time"

	"go.uber.org/zap/zapcore"
)

var (
	_ Clocker       = (*Clock)(nil)
	_ zapcore.Clock = (*Clock)(nil)
)

// Clocker is the time source of the service. It timestamps the log
// entries and the creation or modification of the books records.
type Clocker interface {
	zapcore.Clock
	UTCNow() time.Time
}

// Clock reads the system time. Logs and uptime use the configured
// timezone while books records are always stored in UTC.
type Clock struct {
	tz *time.Location
}

// NewClock returns a Clock using UTC in production and Local otherwise.
func NewClock(isProd bool) *Clock {
	if isProd {
		return &Clock{time.UTC}
	}
	return &Clock{time.Local}
}

// Now provides current time in the clock timezone.
func (ck *Clock) Now() time.Time {
	return time.Now().In(ck.tz)
}

// UTCNow provides the current time of books records.
func (ck *Clock) UTCNow() time.Time {
	return time.Now().UTC()
}

// NewTicker is used by the logger sampling and buffered outputs.
func (ck *Clock) NewTicker(d time.Duration) *time.Ticker {
	return time.NewTicker(d)
}
