package markup

import (
	"strings"
	"testing"

	"github.com/dgnsrekt/voxkit/tts"
)

func TestToSpeech(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain paragraph",
			input:    "Hello world",
			expected: "Hello world.",
		},
		{
			name:     "heading and paragraph",
			input:    "# Title\n\nSome text here!",
			expected: "Title. Some text here!",
		},
		{
			name:     "emphasis and links",
			input:    "This is **bold** and a [link](https://example.com).",
			expected: "This is bold and a link.",
		},
		{
			name:     "code block skipped",
			input:    "Before.\n\n```go\nfmt.Println(1)\n```\n\nAfter.",
			expected: "Before. After.",
		},
		{
			name:     "inline code kept",
			input:    "Run `make test` now",
			expected: "Run make test now.",
		},
		{
			name:     "list items become sentences",
			input:    "- one\n- two\n- three",
			expected: "one. two. three.",
		},
		{
			name:     "soft line breaks",
			input:    "first line\nsecond line",
			expected: "first line second line.",
		},
		{
			name:     "image skipped by default",
			input:    "![a cat](cat.png) Nice.",
			expected: "Nice.",
		},
	}

	c := NewConverter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.ToSpeech(tt.input); got != tt.expected {
				t.Errorf("ToSpeech(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestConverterOptions(t *testing.T) {
	c := NewConverter(WithCodeBlocks(), WithImageDescriptions())

	got := c.ToSpeech("```\nls -la\n```\n\n![a cat](cat.png)")
	if !strings.Contains(got, "ls -la") {
		t.Errorf("code block should be read, got %q", got)
	}
	if !strings.Contains(got, "Image: a cat") {
		t.Errorf("image should be described, got %q", got)
	}
}

func TestSpeakable(t *testing.T) {
	plain, _ := tts.NewRequest("plain text")
	if got := Speakable(plain); got != "plain text" {
		t.Errorf("Speakable(plain) = %q", got)
	}

	marked, _ := tts.NewRequest("fallback", tts.WithMarkup("## Hi *there*"))
	if got := Speakable(marked); got != "Hi there." {
		t.Errorf("Speakable(marked) = %q", got)
	}

	codeOnly, _ := tts.NewRequest("fallback", tts.WithMarkup("```\ncode\n```"))
	if got := Speakable(codeOnly); got != "fallback" {
		t.Errorf("Speakable(code only) = %q, want fallback", got)
	}
}

func TestSplitSentences(t *testing.T) {
	if got := SplitSentences("   ", 10); got != nil {
		t.Errorf("blank input = %v, want nil", got)
	}

	short := SplitSentences("One. Two.", 100)
	if len(short) != 1 || short[0] != "One. Two." {
		t.Errorf("short input = %v", short)
	}

	chunks := SplitSentences("First sentence here. Second one! Third?", 22)
	want := []string{"First sentence here.", "Second one! Third?"}
	if len(chunks) != len(want) {
		t.Fatalf("chunks = %q, want %q", chunks, want)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, chunks[i], want[i])
		}
	}

	long := SplitSentences(strings.Repeat("word ", 30), 20)
	for _, c := range long {
		if len(c) > 20 {
			t.Errorf("chunk %q exceeds limit", c)
		}
	}
}
