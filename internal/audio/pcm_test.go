package audio

import (
	"encoding/binary"
	"testing"
	"time"
)

func TestPCM16(t *testing.T) {
	tests := []struct {
		in   float32
		want int16
	}{
		{0, 0},
		{1, 32767},
		{-1, -32767},
		{2, 32767},
		{-3, -32767},
		{0.5, 16384},
	}

	in := make([]float32, len(tests))
	for i, tt := range tests {
		in[i] = tt.in
	}
	out := PCM16(in)
	if len(out) != len(in)*2 {
		t.Fatalf("len = %d, want %d", len(out), len(in)*2)
	}
	for i, tt := range tests {
		got := int16(binary.LittleEndian.Uint16(out[i*2:]))
		if got != tt.want {
			t.Errorf("PCM16(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestScale(t *testing.T) {
	s := []float32{1, -0.5}
	Scale(s, 0.5)
	if s[0] != 0.5 || s[1] != -0.25 {
		t.Errorf("Scale = %v", s)
	}
}

func TestDuration(t *testing.T) {
	if d := Duration(44100, 44100); d != time.Second {
		t.Errorf("Duration = %v, want 1s", d)
	}
	if d := Duration(10, 0); d != 0 {
		t.Errorf("Duration with zero rate = %v", d)
	}
}
