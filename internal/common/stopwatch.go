// Package common provides the stage stopwatch shared by the pipeline and CLI.
package common

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Stopwatch records the duration of consecutive named stages.
type Stopwatch struct {
	start time.Time
	last  time.Time
	laps  map[string]time.Duration
	order []string
	now   func() time.Time
}

// NewStopwatch starts a stopwatch.
func NewStopwatch() *Stopwatch {
	return newStopwatch(time.Now)
}

func newStopwatch(now func() time.Time) *Stopwatch {
	t := now()
	return &Stopwatch{start: t, last: t, laps: make(map[string]time.Duration), now: now}
}

// Lap closes the current stage under name and starts the next one.
// Repeated names accumulate.
func (s *Stopwatch) Lap(name string) time.Duration {
	t := s.now()
	d := t.Sub(s.last)
	s.last = t
	if _, ok := s.laps[name]; !ok {
		s.order = append(s.order, name)
	}
	s.laps[name] += d
	return d
}

// Total returns the time since the stopwatch started.
func (s *Stopwatch) Total() time.Duration {
	return s.now().Sub(s.start)
}

// Laps returns a copy of the recorded stage durations.
func (s *Stopwatch) Laps() map[string]time.Duration {
	out := make(map[string]time.Duration, len(s.laps))
	for k, v := range s.laps {
		out[k] = v
	}
	return out
}

// String lists stages in the order they were first recorded.
func (s *Stopwatch) String() string {
	parts := make([]string, 0, len(s.order))
	for _, name := range s.order {
		parts = append(parts, fmt.Sprintf("%s=%v", name, s.laps[name]))
	}
	return strings.Join(parts, " ")
}

// FormatDurations renders a stage map sorted by name, for log lines.
func FormatDurations(laps map[string]time.Duration) string {
	names := make([]string, 0, len(laps))
	for k := range laps {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, fmt.Sprintf("%s=%dms", n, laps[n].Milliseconds()))
	}
	return strings.Join(parts, " ")
}
