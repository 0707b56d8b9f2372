package platform

import (
	"bufio"
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/voxkit/tts"
)

const sapiPrelude = "Add-Type -AssemblyName System.Speech; " +
	"$s = New-Object System.Speech.Synthesis.SpeechSynthesizer; "

// NewSAPI returns a driver for Windows System.Speech through PowerShell.
// The text is read from stdin. Pause is not supported.
func NewSAPI(logger *log.Logger) *Process {
	p := newProcess("sapi", logger, "powershell.exe", "powershell", "pwsh")
	p.args = sapiArgs
	p.voiceArgs = []string{"-NoProfile", "-NonInteractive", "-Command", sapiPrelude +
		`$s.GetInstalledVoices() | ForEach-Object { $v = $_.VoiceInfo; "{0}|{1}|{2}" -f $v.Name, $v.Culture, $v.Gender }`}
	p.voices = parseSAPIVoices
	return p
}

func sapiArgs(u Utterance) []string {
	rate := clampInt(int(math.Round((orDefault(u.Rate, tts.DefaultRate)-1)*10)), -10, 10)
	vol := clampInt(int(math.Round(u.Volume*100)), 0, 100)

	var script strings.Builder
	script.WriteString(sapiPrelude)
	fmt.Fprintf(&script, "$s.Rate = %d; $s.Volume = %d; ", rate, vol)
	if u.Voice != "" {
		fmt.Fprintf(&script, "$s.SelectVoice('%s'); ", strings.ReplaceAll(u.Voice, "'", "''"))
	}
	script.WriteString("$s.Speak([Console]::In.ReadToEnd())")

	return []string{"-NoProfile", "-NonInteractive", "-Command", script.String()}
}

// parseSAPIVoices reads name|culture|gender lines.
func parseSAPIVoices(out []byte) []tts.Voice {
	var voices []tts.Voice
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		parts := strings.Split(strings.TrimSpace(sc.Text()), "|")
		if len(parts) != 3 || parts[0] == "" {
			continue
		}
		voices = append(voices, tts.Voice{
			ID:       parts[0],
			Name:     parts[0],
			Language: parts[1],
			Gender:   tts.ParseGender(parts[2]),
			Backend:  tts.BackendNative,
			Quality:  tts.QualityNormal,
		})
	}
	return voices
}
