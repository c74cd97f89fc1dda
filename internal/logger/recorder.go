package logger

import (
	"sync"
	"time"
)

// Entry is a single event captured by a Recorder.
type Entry struct {
	Level LogLevel
	Msg   string
	Time  time.Time
}

// Recorder is a Sink that keeps every event in memory.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

func (r *Recorder) Log(level LogLevel, msg string, ts time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Level: level, Msg: msg, Time: ts})
}

// Entries returns a copy of the recorded events.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)

	return out
}
