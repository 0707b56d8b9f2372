// Package logging sets up structured logging and synthesis metrics.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// New creates a timestamped logger writing to w.
func New(w io.Writer, debug bool) *log.Logger {
	level := log.InfoLevel
	if debug {
		level = log.DebugLevel
	}
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           level,
	})
}

// OrDefault returns l, or the package default logger when l is nil, with the
// given prefix applied.
func OrDefault(l *log.Logger, prefix string) *log.Logger {
	if l == nil {
		l = log.Default()
	}
	return l.WithPrefix(prefix)
}

// OpenFile opens (creating parents) a log file for appending.
func OpenFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("unable to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("unable to open log file: %w", err)
	}
	return f, nil
}

// Synthesis holds the metrics of one synthesis run.
type Synthesis struct {
	Backend    string
	TextLength int
	Start      time.Time
	End        time.Time
	Duration   time.Duration
	Stages     []Stage
	Samples    int
	CacheHit   bool
	Err        string
}

// Stage is the time spent in one named pipeline stage.
type Stage struct {
	Name     string
	Duration time.Duration
}

// Recorder tracks synthesis metrics and logs them at debug level.
type Recorder struct {
	mu      sync.Mutex
	logger  *log.Logger
	enabled bool
	history []Synthesis
	limit   int
}

// NewRecorder creates a recorder keeping the last 256 runs.
func NewRecorder(logger *log.Logger, enabled bool) *Recorder {
	return &Recorder{
		logger:  OrDefault(logger, "metrics"),
		enabled: enabled,
		limit:   256,
	}
}

// SetEnabled toggles metric logging at runtime.
func (r *Recorder) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
}

// Span measures one synthesis run.
type Span struct {
	r    *Recorder
	m    Synthesis
	last time.Time
}

// Start begins measuring a synthesis run. A nil recorder yields a span that
// records nothing.
func (r *Recorder) Start(backend, text string) *Span {
	now := time.Now()
	s := &Span{r: r, last: now}
	s.m = Synthesis{Backend: backend, TextLength: len(text), Start: now}
	if r != nil && r.isEnabled() {
		r.logger.Debug("Synthesis started", "backend", backend, "textLength", len(text))
	}
	return s
}

// Mark closes the current stage under name and starts the next one.
func (s *Span) Mark(name string) {
	if s == nil {
		return
	}
	now := time.Now()
	s.m.Stages = append(s.m.Stages, Stage{Name: name, Duration: now.Sub(s.last)})
	s.last = now
}

// End completes the run and stores it.
func (s *Span) End(samples int, cacheHit bool, err error) Synthesis {
	if s == nil {
		return Synthesis{}
	}
	s.m.End = time.Now()
	s.m.Duration = s.m.End.Sub(s.m.Start)
	s.m.Samples = samples
	s.m.CacheHit = cacheHit
	if err != nil {
		s.m.Err = err.Error()
	}
	if s.r != nil {
		s.r.store(s.m)
	}
	return s.m
}

func (r *Recorder) isEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

func (r *Recorder) store(m Synthesis) {
	r.mu.Lock()
	r.history = append(r.history, m)
	if len(r.history) > r.limit {
		r.history = r.history[len(r.history)-r.limit:]
	}
	enabled := r.enabled
	r.mu.Unlock()

	if !enabled {
		return
	}
	if m.Err != "" {
		r.logger.Error("Synthesis failed",
			"backend", m.Backend,
			"duration", m.Duration,
			"error", m.Err)
		return
	}

	kv := []interface{}{
		"backend", m.Backend,
		"textLength", m.TextLength,
		"samples", m.Samples,
		"duration", m.Duration,
		"cacheHit", m.CacheHit,
	}
	for _, st := range m.Stages {
		kv = append(kv, st.Name, st.Duration)
	}
	r.logger.Debug("Synthesis completed", kv...)
}

// Summary aggregates the recorded runs.
type Summary struct {
	Count        int
	Errors       int
	CacheHits    int
	AvgDuration  time.Duration
	TotalSamples int
}

// Summary returns aggregate statistics for the recorded runs.
func (r *Recorder) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	var s Summary
	var total time.Duration
	for _, m := range r.history {
		s.Count++
		total += m.Duration
		s.TotalSamples += m.Samples
		if m.CacheHit {
			s.CacheHits++
		}
		if m.Err != "" {
			s.Errors++
		}
	}
	if s.Count > 0 {
		s.AvgDuration = total / time.Duration(s.Count)
	}
	return s
}

// String formats the summary for display.
func (s Summary) String() string {
	if s.Count == 0 {
		return "No synthesis metrics available"
	}
	return fmt.Sprintf(
		"Synthesis Stats:\n"+
			"  Total: %d\n"+
			"  Avg Duration: %v\n"+
			"  Total Samples: %d\n"+
			"  Cache Hit Rate: %.1f%%\n"+
			"  Errors: %d",
		s.Count,
		s.AvgDuration,
		s.TotalSamples,
		float64(s.CacheHits)/float64(s.Count)*100,
		s.Errors,
	)
}
