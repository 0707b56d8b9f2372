package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// PCM16 converts float samples in [-1, 1] to signed 16-bit little-endian
// PCM. Out-of-range samples are clipped.
func PCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(math.Round(float64(s) * math.MaxInt16))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// Scale multiplies samples by gain in place.
func Scale(samples []float32, gain float64) {
	if gain == 1 {
		return
	}
	g := float32(gain)
	for i := range samples {
		samples[i] *= g
	}
}

// Duration returns how long n mono samples last at sampleRate.
func Duration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(sampleRate)
}
