package tts

import (
	"errors"
	"math"
	"testing"
)

func TestNewRequestRejectsBlankText(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := NewRequest(text)
		if err == nil {
			t.Fatalf("NewRequest(%q) should fail", text)
		}
		if !errors.Is(err, ErrInvalidText) {
			t.Errorf("NewRequest(%q) error kind = %v, want INVALID_TEXT", text, KindOf(err))
		}
	}
}

func TestNewRequestValidatesOverrides(t *testing.T) {
	tests := []struct {
		name    string
		opts    []RequestOption
		wantErr bool
	}{
		{"defaults", nil, false},
		{"rate low edge", []RequestOption{WithRate(0.5)}, false},
		{"rate high edge", []RequestOption{WithRate(2.0)}, false},
		{"rate too low", []RequestOption{WithRate(0.49)}, true},
		{"pitch too high", []RequestOption{WithPitch(2.01)}, true},
		{"volume zero", []RequestOption{WithVolume(0)}, false},
		{"volume negative", []RequestOption{WithVolume(-0.1)}, true},
		{"volume too high", []RequestOption{WithVolume(1.1)}, true},
		{"bad priority", []RequestOption{WithPriority(Priority(9))}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRequest("hello", tt.opts...)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRequestAccessors(t *testing.T) {
	req, err := NewRequest("hello",
		WithPriority(PriorityHigh),
		WithRate(1.25),
		WithVoice("en-us"),
		WithTag("greeting"),
		WithMarkup("**hello**"),
	)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}

	if req.Priority() != PriorityHigh {
		t.Errorf("Priority = %v, want high", req.Priority())
	}
	if r, ok := req.Rate(); !ok || r != 1.25 {
		t.Errorf("Rate = %v, %v", r, ok)
	}
	if _, ok := req.Pitch(); ok {
		t.Error("Pitch should not be set")
	}
	if req.PitchOr(1.3) != 1.3 {
		t.Error("PitchOr should return the fallback")
	}
	if req.VoiceID() != "en-us" || req.Tag() != "greeting" || req.Markup() != "**hello**" {
		t.Errorf("unexpected accessors: %+v", req)
	}
}

func TestParsePriority(t *testing.T) {
	for _, p := range []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent} {
		got, err := ParsePriority(p.String())
		if err != nil || got != p {
			t.Errorf("ParsePriority(%q) = %v, %v", p.String(), got, err)
		}
	}
	if _, err := ParsePriority("critical"); err == nil {
		t.Error("ParsePriority should reject unknown names")
	}
}

func TestClamp(t *testing.T) {
	if ClampRate(3) != MaxRate || ClampRate(0.1) != MinRate || ClampRate(1.2) != 1.2 {
		t.Error("ClampRate out of range handling")
	}
	if ClampVolume(-1) != 0 || ClampVolume(2) != 1 {
		t.Error("ClampVolume out of range handling")
	}
	if ClampPitch(0) != MinPitch {
		t.Error("ClampPitch out of range handling")
	}

	nan := math.NaN()
	if ClampRate(nan) != DefaultRate || ClampPitch(nan) != DefaultPitch || ClampVolume(nan) != DefaultVolume {
		t.Error("NaN should clamp to the default value")
	}
	if Clamp(nan, 1, 2) != 1 {
		t.Errorf("Clamp(NaN) = %v, want 1", Clamp(nan, 1, 2))
	}
	if _, err := NewRequest("hi", WithRate(nan)); err == nil {
		t.Error("NewRequest should reject a NaN rate")
	}
}

func TestVoiceStyle(t *testing.T) {
	v := Voice{ID: "x", Metadata: map[string]string{MetadataStyle: "F1"}}
	if v.Style() != "F1" {
		t.Errorf("Style = %q", v.Style())
	}
	if (Voice{}).Style() != "" {
		t.Error("empty voice should have no style")
	}

	voices := []Voice{{ID: "a"}, v}
	if found, ok := FindVoice(voices, "x"); !ok || found.ID != "x" {
		t.Error("FindVoice should locate x")
	}
	if _, ok := FindVoice(voices, "missing"); ok {
		t.Error("FindVoice should not locate missing")
	}
}
