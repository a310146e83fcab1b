package game

import "time"

type tickerCreator struct{}

func (tickerCreator) Create(duration time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(duration)
	return t.C, t.Stop
}

func NewTickerCreator() PeriodicTickerCreator {
	return tickerCreator{}
}
