package logging

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestRecorderLogsCompletedRuns(t *testing.T) {
	var buf bytes.Buffer
	r := NewRecorder(New(&buf, true), true)

	span := r.Start("neural", "hello")
	span.Mark("duration")
	span.Mark("denoise")
	m := span.End(4410, false, nil)

	if len(m.Stages) != 2 || m.Stages[1].Name != "denoise" {
		t.Errorf("unexpected stages: %+v", m.Stages)
	}
	if m.TextLength != 5 || m.Samples != 4410 {
		t.Errorf("unexpected metrics: %+v", m)
	}

	out := buf.String()
	if !strings.Contains(out, "Synthesis completed") || !strings.Contains(out, "denoise") {
		t.Errorf("log output missing completion line: %q", out)
	}
}

func TestRecorderDisabledIsQuiet(t *testing.T) {
	var buf bytes.Buffer
	r := NewRecorder(New(&buf, true), false)

	r.Start("native", "x").End(0, false, errors.New("boom"))

	if buf.Len() != 0 {
		t.Errorf("disabled recorder wrote %q", buf.String())
	}
	if s := r.Summary(); s.Count != 1 || s.Errors != 1 {
		t.Errorf("summary = %+v, want one failed run", s)
	}
}

func TestSummary(t *testing.T) {
	r := NewRecorder(nil, false)
	if !strings.Contains(r.Summary().String(), "No synthesis metrics") {
		t.Error("empty summary should say so")
	}

	r.Start("neural", "a").End(100, true, nil)
	r.Start("neural", "b").End(300, false, nil)

	s := r.Summary()
	if s.Count != 2 || s.CacheHits != 1 || s.TotalSamples != 400 {
		t.Errorf("summary = %+v", s)
	}
	if !strings.Contains(s.String(), "50.0%") {
		t.Errorf("summary string missing hit rate: %q", s.String())
	}
}

func TestNilSpanIsSafe(t *testing.T) {
	var s *Span
	s.Mark("x")
	if m := s.End(1, false, nil); m.Samples != 0 {
		t.Error("nil span should record nothing")
	}

	var r *Recorder
	r.Start("x", "y").End(1, false, nil)
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "voxkit.log")
	f, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer f.Close() //nolint:errcheck

	l := New(f, false)
	l.Info("hello")
}
