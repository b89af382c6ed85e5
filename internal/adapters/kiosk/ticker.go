package kiosk

import "time"

// Ticker is the subset of time.Ticker the runtime needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory starts a ticker firing every d.
type TickerFactory func(d time.Duration) Ticker

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewRealTicker wraps time.NewTicker.
func NewRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}
