package tts

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Priority orders utterances in the queue. Higher values are spoken first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

// String returns the string representation of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "unknown"
	}
}

// ParsePriority parses a priority name as produced by String.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow, nil
	case "", "normal":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	case "urgent":
		return PriorityUrgent, nil
	default:
		return PriorityNormal, fmt.Errorf("unknown priority %q", s)
	}
}

// Valid ranges for speech parameters.
const (
	MinRate   = 0.5
	MaxRate   = 2.0
	MinPitch  = 0.5
	MaxPitch  = 2.0
	MinVolume = 0.0
	MaxVolume = 1.0

	DefaultRate   = 1.0
	DefaultPitch  = 1.0
	DefaultVolume = 1.0
)

// Request is a single utterance submitted for speech. It is validated when
// constructed and never modified afterwards.
type Request struct {
	text     string
	markup   string
	priority Priority
	rate     *float64
	pitch    *float64
	volume   *float64
	voiceID  string
	tag      string
	created  time.Time
}

// RequestOption configures a Request.
type RequestOption func(*Request)

// WithPriority sets the request priority. The default is PriorityNormal.
func WithPriority(p Priority) RequestOption {
	return func(r *Request) { r.priority = p }
}

// WithRate overrides the engine speech rate for this request.
func WithRate(rate float64) RequestOption {
	return func(r *Request) { r.rate = &rate }
}

// WithPitch overrides the engine pitch for this request.
func WithPitch(pitch float64) RequestOption {
	return func(r *Request) { r.pitch = &pitch }
}

// WithVolume overrides the engine volume for this request.
func WithVolume(volume float64) RequestOption {
	return func(r *Request) { r.volume = &volume }
}

// WithVoice overrides the active voice for this request.
func WithVoice(id string) RequestOption {
	return func(r *Request) { r.voiceID = id }
}

// WithTag attaches a caller correlation tag.
func WithTag(tag string) RequestOption {
	return func(r *Request) { r.tag = tag }
}

// WithMarkup attaches markup-annotated text. When present, the speakable
// text is derived from it.
func WithMarkup(markup string) RequestOption {
	return func(r *Request) { r.markup = markup }
}

// NewRequest creates a validated request. Blank text and out of range
// overrides fail with KindInvalidText.
func NewRequest(text string, opts ...RequestOption) (Request, error) {
	r := Request{
		text:     text,
		priority: PriorityNormal,
		created:  time.Now(),
	}
	for _, opt := range opts {
		opt(&r)
	}
	if err := r.validate(); err != nil {
		return Request{}, err
	}
	return r, nil
}

func (r Request) validate() error {
	if strings.TrimSpace(r.text) == "" {
		return Errorf(KindInvalidText, "text must not be blank")
	}
	if r.priority < PriorityLow || r.priority > PriorityUrgent {
		return Errorf(KindInvalidText, "priority %d out of range", r.priority)
	}
	if r.rate != nil && !inRange(*r.rate, MinRate, MaxRate) {
		return Errorf(KindInvalidText, "rate %.2f out of range [%.1f, %.1f]", *r.rate, MinRate, MaxRate)
	}
	if r.pitch != nil && !inRange(*r.pitch, MinPitch, MaxPitch) {
		return Errorf(KindInvalidText, "pitch %.2f out of range [%.1f, %.1f]", *r.pitch, MinPitch, MaxPitch)
	}
	if r.volume != nil && !inRange(*r.volume, MinVolume, MaxVolume) {
		return Errorf(KindInvalidText, "volume %.2f out of range [%.1f, %.1f]", *r.volume, MinVolume, MaxVolume)
	}
	return nil
}

// Text returns the plain request text.
func (r Request) Text() string { return r.text }

// Markup returns the markup-annotated text, if any.
func (r Request) Markup() string { return r.markup }

// Priority returns the request priority.
func (r Request) Priority() Priority { return r.priority }

// VoiceID returns the voice override, or "".
func (r Request) VoiceID() string { return r.voiceID }

// Tag returns the correlation tag, or "".
func (r Request) Tag() string { return r.tag }

// CreatedAt returns when the request was constructed.
func (r Request) CreatedAt() time.Time { return r.created }

// Rate returns the rate override and whether one was set.
func (r Request) Rate() (float64, bool) { return deref(r.rate) }

// Pitch returns the pitch override and whether one was set.
func (r Request) Pitch() (float64, bool) { return deref(r.pitch) }

// Volume returns the volume override and whether one was set.
func (r Request) Volume() (float64, bool) { return deref(r.volume) }

// RateOr returns the rate override or def.
func (r Request) RateOr(def float64) float64 { return valueOr(r.rate, def) }

// PitchOr returns the pitch override or def.
func (r Request) PitchOr(def float64) float64 { return valueOr(r.pitch, def) }

// VolumeOr returns the volume override or def.
func (r Request) VolumeOr(def float64) float64 { return valueOr(r.volume, def) }

func deref(v *float64) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return *v, true
}

func valueOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func inRange(v, lo, hi float64) bool {
	return v >= lo && v <= hi
}

// Clamp limits v to [lo, hi]. NaN becomes lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampRate limits a speech rate to its valid range. NaN becomes the
// default rate.
func ClampRate(v float64) float64 { return clampOr(v, MinRate, MaxRate, DefaultRate) }

// ClampPitch limits a pitch to its valid range. NaN becomes the default.
func ClampPitch(v float64) float64 { return clampOr(v, MinPitch, MaxPitch, DefaultPitch) }

// ClampVolume limits a volume to its valid range. NaN becomes the default.
func ClampVolume(v float64) float64 { return clampOr(v, MinVolume, MaxVolume, DefaultVolume) }

func clampOr(v, lo, hi, def float64) float64 {
	if math.IsNaN(v) {
		return def
	}
	return Clamp(v, lo, hi)
}

// BackendType identifies a synthesis backend variant.
type BackendType int

const (
	BackendNative BackendType = iota
	BackendNeural
)

func (b BackendType) String() string {
	if b == BackendNeural {
		return "neural"
	}
	return "native"
}

// Gender of a voice, when known.
type Gender int

const (
	GenderUnknown Gender = iota
	GenderFemale
	GenderMale
	GenderNeutral
)

func (g Gender) String() string {
	switch g {
	case GenderFemale:
		return "female"
	case GenderMale:
		return "male"
	case GenderNeutral:
		return "neutral"
	default:
		return "unknown"
	}
}

// ParseGender maps common gender labels to a Gender.
func ParseGender(s string) Gender {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "f", "female", "woman":
		return GenderFemale
	case "m", "male", "man":
		return GenderMale
	case "n", "neutral":
		return GenderNeutral
	default:
		return GenderUnknown
	}
}

// Quality tier of a voice.
type Quality int

const (
	QualityLow Quality = iota
	QualityNormal
	QualityHigh
	QualityPremium
)

func (q Quality) String() string {
	switch q {
	case QualityLow:
		return "low"
	case QualityHigh:
		return "high"
	case QualityPremium:
		return "premium"
	default:
		return "normal"
	}
}

// MetadataStyle is the Voice metadata key carrying a neural style name.
const MetadataStyle = "style"

// Voice describes a voice offered by a backend.
type Voice struct {
	ID               string
	Name             string
	Language         string
	Gender           Gender
	Backend          BackendType
	Quality          Quality
	Metadata         map[string]string
	ModelID          string
	RequiresDownload bool
}

// Style returns the neural style name carried in the metadata, or "".
func (v Voice) Style() string {
	if v.Metadata == nil {
		return ""
	}
	return v.Metadata[MetadataStyle]
}

// FindVoice returns the voice with the given id.
func FindVoice(voices []Voice, id string) (Voice, bool) {
	for _, v := range voices {
		if v.ID == id {
			return v, true
		}
	}
	return Voice{}, false
}
