package polling

import "time"

// Clock abstracts time-related operations.
type Clock interface {
	Now() time.Time
	Ticker(d time.Duration) Ticker
}

// Ticker abstracts the ticker behavior.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

// realClock implements Clock using the real time package.
type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) Ticker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r *realTicker) Chan() <-chan time.Time {
	return r.t.C
}

func (r *realTicker) Stop() {
	r.t.Stop()
}

// schedule is the repeating timer owned by one run of the engine. It is
// created on start, replaced on interval change and disposed on stop.
type schedule struct {
	interval time.Duration
	ticker   Ticker
}

func newSchedule(clock Clock, interval time.Duration) *schedule {
	return &schedule{interval: interval, ticker: clock.Ticker(interval)}
}

func (s *schedule) dispose() {
	if s != nil && s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
}
