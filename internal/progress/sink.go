// Package progress provides sinks for fractional load progress.
package progress

import (
	"sync"

	"github.com/rs/zerolog"
)

// Sink receives fractional completion updates in [0,1] for a model load.
// Implementations must be safe for concurrent use and must not block.
type Sink interface {
	Report(modelID string, fraction float64)
}

// Func adapts a function to a Sink.
type Func func(modelID string, fraction float64)

func (f Func) Report(modelID string, fraction float64) { f(modelID, fraction) }

// Nop drops every update.
type Nop struct{}

func (Nop) Report(string, float64) {}

// Clamp bounds f to [0,1].
func Clamp(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// Log writes progress at debug level, skipping repeats of the same fraction.
type Log struct {
	log  zerolog.Logger
	mu   sync.Mutex
	last map[string]float64
}

func NewLog(l zerolog.Logger) *Log { return &Log{log: l, last: map[string]float64{}} }

func (s *Log) Report(modelID string, fraction float64) {
	fraction = Clamp(fraction)
	s.mu.Lock()
	prev, seen := s.last[modelID]
	if seen && prev == fraction {
		s.mu.Unlock()
		return
	}
	if fraction >= 1 {
		delete(s.last, modelID)
	} else {
		s.last[modelID] = fraction
	}
	s.mu.Unlock()
	s.log.Debug().Str("model", modelID).Float64("fraction", fraction).Msg("load progress")
}

// Multi fans out to several sinks.
type Multi []Sink

func (m Multi) Report(modelID string, fraction float64) {
	for _, s := range m {
		if s != nil {
			s.Report(modelID, fraction)
		}
	}
}
