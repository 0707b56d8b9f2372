// Package audio plays synthesized float32 sample buffers through the system
// audio device using oto/v3. Playback blocks until the buffer drains or is
// stopped, so callers can map completion to utterance events directly.
package audio
