package platform

import (
	"reflect"
	"strings"
	"testing"

	"github.com/dgnsrekt/voxkit/tts"
)

func TestESpeakArgs(t *testing.T) {
	tests := []struct {
		name string
		u    Utterance
		want []string
	}{
		{
			name: "defaults",
			u:    Utterance{Rate: 1, Pitch: 1, Volume: 1},
			want: []string{"-s", "175", "-p", "50", "-a", "100", "--stdin"},
		},
		{
			name: "fast and quiet with voice",
			u:    Utterance{Rate: 2, Pitch: 0.5, Volume: 0.25, Voice: "en-gb"},
			want: []string{"-s", "350", "-p", "25", "-a", "25", "-v", "en-gb", "--stdin"},
		},
		{
			name: "clamped",
			u:    Utterance{Rate: 0.1, Pitch: 3, Volume: 5},
			want: []string{"-s", "80", "-p", "99", "-a", "200", "--stdin"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := espeakArgs(tt.u); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("espeakArgs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseESpeakVoices(t *testing.T) {
	out := []byte(`Pty Language       Age/Gender VoiceName          File                 Other Languages
 5  af              --/M      Afrikaans          gmw/af
 2  en-gb           --/M      English_(Great_Britain) gmw/en      (en 2)
 5  en-us           --/F      English_(America)  gmw/en-US            (en 3)
 5  en-us           --/M      English_(America)  gmw/en-US-nyc
`)
	voices := parseESpeakVoices(out)
	if len(voices) != 3 {
		t.Fatalf("got %d voices: %+v", len(voices), voices)
	}
	if voices[1].ID != "en-gb" || voices[1].Name != "English (Great Britain)" || voices[1].Gender != tts.GenderMale {
		t.Errorf("voice[1] = %+v", voices[1])
	}
	if voices[2].Gender != tts.GenderFemale || voices[2].Backend != tts.BackendNative {
		t.Errorf("voice[2] = %+v", voices[2])
	}
}

func TestSayArgsAndInput(t *testing.T) {
	u := Utterance{Text: "hello", Rate: 2, Pitch: 1, Volume: 0.5, Voice: "Alex"}
	want := []string{"-r", "370", "-v", "Alex", "-f", "-"}
	if got := sayArgs(u); !reflect.DeepEqual(got, want) {
		t.Errorf("sayArgs() = %v, want %v", got, want)
	}
	if got := sayInput(u); got != "[[volm 0.50]] hello" {
		t.Errorf("sayInput() = %q", got)
	}
	u.Pitch = 1.5
	if got := sayInput(u); !strings.Contains(got, "[[pbas +10]]") {
		t.Errorf("sayInput() with pitch = %q", got)
	}
}

func TestParseSayVoices(t *testing.T) {
	out := []byte(`Alex                en_US    # Most people recognize me by my voice.
Eddy (English (UK)) en_GB    # Hello! My name is Eddy.
garbage line
`)
	voices := parseSayVoices(out)
	if len(voices) != 2 {
		t.Fatalf("got %d voices: %+v", len(voices), voices)
	}
	if voices[0].ID != "Alex" || voices[0].Language != "en-US" {
		t.Errorf("voice[0] = %+v", voices[0])
	}
	if voices[1].Name != "Eddy (English (UK))" {
		t.Errorf("voice[1] = %+v", voices[1])
	}
}

func TestSAPIArgs(t *testing.T) {
	args := sapiArgs(Utterance{Rate: 1.5, Volume: 0.8, Voice: "Microsoft O'Brien"})
	script := args[len(args)-1]
	for _, want := range []string{"$s.Rate = 5", "$s.Volume = 80", "SelectVoice('Microsoft O''Brien')", "ReadToEnd()"} {
		if !strings.Contains(script, want) {
			t.Errorf("script missing %q: %s", want, script)
		}
	}
}

func TestParseSAPIVoices(t *testing.T) {
	voices := parseSAPIVoices([]byte("Microsoft David Desktop|en-US|Male\r\nMicrosoft Zira Desktop|en-US|Female\r\nbad\r\n"))
	if len(voices) != 2 {
		t.Fatalf("got %d voices", len(voices))
	}
	if voices[1].Gender != tts.GenderFemale || voices[1].Language != "en-US" {
		t.Errorf("voice[1] = %+v", voices[1])
	}
}

func TestNewDriver(t *testing.T) {
	for _, name := range []string{"", "auto", "espeak", "say", "sapi", "fake"} {
		if _, err := New(name, nil); err != nil {
			t.Errorf("New(%q) failed: %v", name, err)
		}
	}
	if _, err := New("festival", nil); tts.KindOf(err) != tts.KindNotSupported {
		t.Errorf("New(unknown) = %v, want NOT_SUPPORTED", err)
	}
}
