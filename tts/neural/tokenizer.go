package neural

import (
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/text/unicode/norm"
)

// Tokenizer maps codepoints to model token ids.
type Tokenizer struct {
	table   []int64
	spaceID int64
}

// NewTokenizer builds a tokenizer from a table indexed by codepoint where
// negative entries mark unmapped codepoints.
func NewTokenizer(table []int64) *Tokenizer {
	t := &Tokenizer{table: table}
	if ' ' < len(table) && table[' '] >= 0 {
		t.spaceID = table[' ']
	}
	return t
}

// LoadTokenizer reads a unicode_indexer.json table.
func LoadTokenizer(path string) (*Tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tokenizer table: %w", err)
	}
	var table []int64
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse tokenizer table: %w", err)
	}
	return NewTokenizer(table), nil
}

// Encode NFKD-normalises text and returns one id per resulting codepoint.
func (t *Tokenizer) Encode(text string) []int64 {
	text = norm.NFKD.String(text)

	ids := make([]int64, 0, len(text))
	for _, r := range text {
		ids = append(ids, t.id(r))
	}
	return ids
}

func (t *Tokenizer) id(r rune) int64 {
	if r >= 0 && int(r) < len(t.table) {
		if id := t.table[r]; id >= 0 {
			return id
		}
	}
	return t.spaceID
}
