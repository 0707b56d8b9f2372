package platform

import (
	"bufio"
	"bytes"
	"math"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/voxkit/tts"
)

// espeak speaks at 175 words per minute by default.
const espeakBaseWPM = 175

// NewESpeak returns a driver for espeak-ng, falling back to espeak.
// Pause and resume suspend the process.
func NewESpeak(logger *log.Logger) *Process {
	p := newProcess("espeak", logger, "espeak-ng", "espeak")
	p.args = espeakArgs
	p.voiceArgs = []string{"--voices"}
	p.voices = parseESpeakVoices
	p.canPause = canSignal
	return p
}

func espeakArgs(u Utterance) []string {
	wpm := clampInt(int(math.Round(espeakBaseWPM*orDefault(u.Rate, tts.DefaultRate))), 80, 450)
	pitch := clampInt(int(math.Round(50*orDefault(u.Pitch, tts.DefaultPitch))), 0, 99)
	amp := clampInt(int(math.Round(100*u.Volume)), 0, 200)

	args := []string{
		"-s", strconv.Itoa(wpm),
		"-p", strconv.Itoa(pitch),
		"-a", strconv.Itoa(amp),
	}
	if u.Voice != "" {
		args = append(args, "-v", u.Voice)
	}
	return append(args, "--stdin")
}

// parseESpeakVoices reads the table printed by `espeak --voices`:
//
//	Pty Language       Age/Gender VoiceName          File          Other Languages
//	 5  en-gb           --/M      English_(Great_Britain) gmw/en   (en 2)
func parseESpeakVoices(out []byte) []tts.Voice {
	var voices []tts.Voice
	seen := make(map[string]bool)

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 || fields[0] == "Pty" {
			continue
		}
		lang := fields[1]
		if seen[lang] {
			continue
		}
		seen[lang] = true

		gender := tts.GenderUnknown
		if i := strings.IndexByte(fields[2], '/'); i >= 0 {
			gender = tts.ParseGender(fields[2][i+1:])
		}
		voices = append(voices, tts.Voice{
			ID:       lang,
			Name:     strings.ReplaceAll(fields[3], "_", " "),
			Language: lang,
			Gender:   gender,
			Backend:  tts.BackendNative,
			Quality:  tts.QualityLow,
		})
	}
	return voices
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
