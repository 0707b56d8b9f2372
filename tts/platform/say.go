package platform

import (
	"bufio"
	"bytes"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/voxkit/tts"
)

const sayBaseWPM = 185

// NewSay returns a driver for the macOS say command. say cannot be paused.
func NewSay(logger *log.Logger) *Process {
	p := newProcess("say", logger, "say")
	p.args = sayArgs
	p.input = sayInput
	p.voiceArgs = []string{"-v", "?"}
	p.voices = parseSayVoices
	return p
}

func sayArgs(u Utterance) []string {
	wpm := int(math.Round(sayBaseWPM * orDefault(u.Rate, tts.DefaultRate)))
	args := []string{"-r", strconv.Itoa(wpm)}
	if u.Voice != "" {
		args = append(args, "-v", u.Voice)
	}
	return append(args, "-f", "-")
}

// sayInput applies volume and pitch with embedded speech commands.
func sayInput(u Utterance) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[[volm %.2f]] ", u.Volume)
	if pitch := orDefault(u.Pitch, tts.DefaultPitch); pitch != tts.DefaultPitch {
		fmt.Fprintf(&b, "[[pbas %+.0f]] ", (pitch-1)*20)
	}
	b.WriteString(u.Text)
	return b.String()
}

var sayVoiceLine = regexp.MustCompile(`^(.+?)\s+([a-z]{2,3}[_-][A-Za-z0-9]+)\s+#`)

// parseSayVoices reads `say -v ?` output:
//
//	Alex                en_US    # Most people recognize me by my voice.
func parseSayVoices(out []byte) []tts.Voice {
	var voices []tts.Voice
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		m := sayVoiceLine.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		voices = append(voices, tts.Voice{
			ID:       name,
			Name:     name,
			Language: strings.ReplaceAll(m[2], "_", "-"),
			Backend:  tts.BackendNative,
			Quality:  tts.QualityNormal,
		})
	}
	return voices
}
