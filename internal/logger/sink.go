package logger

import (
	"sync"
	"time"
)

type sink struct {
	component string
}

// NewSink returns a Sink writing through the package logger, tagged with component.
func NewSink(component string) Sink {
	return &sink{component: component}
}

func (s *sink) Log(level LogLevel, msg string, ts time.Time) {
	atLevel(level).
		Str("component", s.component).
		Time("event_time", ts).
		Msg(msg)
}

// RateLimited forwards at most one event per key within window.
type RateLimited struct {
	sink   Sink
	window time.Duration
	last   map[string]time.Time
	mu     sync.Mutex
}

func NewRateLimited(sink Sink, window time.Duration) *RateLimited {
	return &RateLimited{
		sink:   sink,
		window: window,
		last:   make(map[string]time.Time),
	}
}

// Allow reports whether an event for key at ts falls outside the current
// window, and starts a new window if it does.
func (r *RateLimited) Allow(key string, ts time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if last, ok := r.last[key]; ok && ts.Sub(last) < r.window {
		return false
	}
	r.last[key] = ts

	return true
}

// Log writes msg unless an event with the same key was written within the window.
func (r *RateLimited) Log(key string, level LogLevel, msg string, ts time.Time) bool {
	if !r.Allow(key, ts) {
		return false
	}
	r.sink.Log(level, msg, ts)

	return true
}

// Reset forgets the window for key so the next event is written.
func (r *RateLimited) Reset(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.last, key)
}
