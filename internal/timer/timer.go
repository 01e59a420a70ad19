// Package timer provides the elapsed-time tick source for a live recording.
package timer

import (
	"fmt"
	"sync"
	"time"
)

// Ticker is the subset of time.Ticker the elapsed timer needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory builds a ticker firing every interval.
type TickerFactory func(interval time.Duration) Ticker

type stdTicker struct{ t *time.Ticker }

func (s stdTicker) C() <-chan time.Time { return s.t.C }
func (s stdTicker) Stop()               { s.t.Stop() }

// NewStdTicker wraps time.NewTicker.
func NewStdTicker(interval time.Duration) Ticker {
	return stdTicker{t: time.NewTicker(interval)}
}

// Elapsed calls onTick once per interval between Start and Stop.
// Ticks already in flight when Stop returns may still be delivered;
// callers discard them by checking their own state.
type Elapsed struct {
	interval  time.Duration
	newTicker TickerFactory

	mu   sync.Mutex
	stop chan struct{}
}

// New returns a timer ticking at interval, defaulting to one second.
func New(interval time.Duration) *Elapsed {
	return NewWithTicker(interval, NewStdTicker)
}

// NewWithTicker returns a timer using a custom ticker source.
func NewWithTicker(interval time.Duration, factory TickerFactory) *Elapsed {
	if interval <= 0 {
		interval = time.Second
	}
	if factory == nil {
		factory = NewStdTicker
	}
	return &Elapsed{interval: interval, newTicker: factory}
}

// Start begins a fresh tick sequence, replacing any running one.
func (e *Elapsed) Start(onTick func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopLocked()
	stop := make(chan struct{})
	e.stop = stop
	ticker := e.newTicker(e.interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C():
				select {
				case <-stop:
					return
				default:
				}
				if onTick != nil {
					onTick()
				}
			}
		}
	}()
}

// Stop halts the running tick sequence. It is safe to call repeatedly.
func (e *Elapsed) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

// Running reports whether a tick sequence is active.
func (e *Elapsed) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stop != nil
}

func (e *Elapsed) stopLocked() {
	if e.stop == nil {
		return
	}
	close(e.stop)
	e.stop = nil
}

// Format renders seconds as MM:SS. Minutes keep counting past 99.
func Format(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
