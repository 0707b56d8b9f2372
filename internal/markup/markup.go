// Package markup turns markup-annotated text into plain speakable text.
package markup

import (
	"strings"
	"unicode"

	"github.com/dgnsrekt/voxkit/tts"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Converter extracts speakable text from Markdown-style markup.
type Converter struct {
	md             goldmark.Markdown
	skipCodeBlocks bool
	describeImages bool
}

// Option configures a Converter.
type Option func(*Converter)

// WithCodeBlocks reads code blocks aloud instead of skipping them.
func WithCodeBlocks() Option {
	return func(c *Converter) { c.skipCodeBlocks = false }
}

// WithImageDescriptions reads image alt text.
func WithImageDescriptions() Option {
	return func(c *Converter) { c.describeImages = true }
}

// NewConverter creates a converter that skips code blocks and images.
func NewConverter(opts ...Option) *Converter {
	c := &Converter{
		md:             goldmark.New(),
		skipCodeBlocks: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var defaultConverter = NewConverter()

// Speakable returns the text a backend should speak for req: the plain
// rendering of its markup when present, otherwise its text.
func Speakable(req tts.Request) string {
	if m := req.Markup(); strings.TrimSpace(m) != "" {
		if s := defaultConverter.ToSpeech(m); s != "" {
			return s
		}
	}
	return req.Text()
}

// ToSpeech converts markup to plain text with sentence breaks after block
// elements.
func (c *Converter) ToSpeech(markup string) string {
	reader := text.NewReader([]byte(markup))
	doc := c.md.Parser().Parse(reader)

	var buf strings.Builder
	c.walk(doc, reader.Source(), &buf)

	return collapseSpaces(buf.String())
}

func (c *Converter) walk(node ast.Node, source []byte, buf *strings.Builder) {
	switch n := node.(type) {
	case *ast.CodeBlock, *ast.FencedCodeBlock:
		if c.skipCodeBlocks {
			return
		}
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(source))
		}
		endSentence(buf)
		return

	case *ast.HTMLBlock, *ast.RawHTML:
		return

	case *ast.Text:
		buf.Write(n.Segment.Value(source))
		if n.SoftLineBreak() || n.HardLineBreak() {
			buf.WriteString(" ")
		}
		return

	case *ast.String:
		buf.Write(n.Value)
		return

	case *ast.CodeSpan:
		for ch := n.FirstChild(); ch != nil; ch = ch.NextSibling() {
			if t, ok := ch.(*ast.Text); ok {
				buf.Write(t.Segment.Value(source))
			}
		}
		return

	case *ast.Heading, *ast.Paragraph, *ast.ListItem:
		c.walkChildren(n, source, buf)
		endSentence(buf)
		return

	case *ast.Image:
		if c.describeImages {
			buf.WriteString("Image: ")
			c.walkChildren(n, source, buf)
			endSentence(buf)
		}
		return

	case *ast.AutoLink:
		buf.Write(n.Label(source))
		return

	case *ast.ThematicBreak:
		endSentence(buf)
		return
	}

	c.walkChildren(node, source, buf)
}

func (c *Converter) walkChildren(node ast.Node, source []byte, buf *strings.Builder) {
	for ch := node.FirstChild(); ch != nil; ch = ch.NextSibling() {
		c.walk(ch, source, buf)
	}
}

// endSentence terminates the text written so far with a period unless it
// already ends in sentence punctuation.
func endSentence(buf *strings.Builder) {
	s := strings.TrimRightFunc(buf.String(), unicode.IsSpace)
	if s == "" {
		return
	}
	if !strings.ContainsRune(".!?:;", rune(s[len(s)-1])) {
		buf.WriteString(".")
	}
	buf.WriteString(" ")
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// SplitSentences breaks text into chunks of at most maxLen bytes, cutting at
// sentence boundaries where possible and at spaces otherwise.
func SplitSentences(s string, maxLen int) []string {
	s = collapseSpaces(s)
	if s == "" {
		return nil
	}
	if maxLen <= 0 || len(s) <= maxLen {
		return []string{s}
	}

	var chunks []string
	var cur strings.Builder
	flush := func() {
		if t := strings.TrimSpace(cur.String()); t != "" {
			chunks = append(chunks, t)
		}
		cur.Reset()
	}

	for _, sentence := range sentences(s) {
		if cur.Len() > 0 && cur.Len()+1+len(sentence) > maxLen {
			flush()
		}
		for len(sentence) > maxLen {
			cut := strings.LastIndexByte(sentence[:maxLen], ' ')
			if cut <= 0 {
				cut = maxLen
			}
			chunks = append(chunks, strings.TrimSpace(sentence[:cut]))
			sentence = strings.TrimSpace(sentence[cut:])
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(sentence)
	}
	flush()

	return chunks
}

func sentences(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '.', '!', '?':
			if i+1 == len(s) || s[i+1] == ' ' {
				out = append(out, strings.TrimSpace(s[start:i+1]))
				start = i + 1
			}
		}
	}
	if rest := strings.TrimSpace(s[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}
