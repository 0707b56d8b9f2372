package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dgnsrekt/voxkit/tts"
	"github.com/mattn/go-runewidth"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"
)

var (
	voicesNeural string
	voicesFilter string

	voicesCmd = &cobra.Command{
		Use:     "voices",
		Short:   "List available voices",
		Long:    paragraph(fmt.Sprintf("\n%s the voices of the platform driver, or of a neural model.", keyword("List"))),
		Example: paragraph("voxkit voices\nvoxkit voices --filter english\nvoxkit voices --neural supertonic-en"),
		Args:    cobra.NoArgs,
		RunE:    runVoices,
	}
)

func init() {
	voicesCmd.Flags().StringVarP(&voicesNeural, "neural", "n", "", "list the styles of this neural model")
	voicesCmd.Flags().StringVarP(&voicesFilter, "filter", "f", "", "fuzzy filter on id, name and language")
}

func runVoices(cmd *cobra.Command, _ []string) error {
	s, err := newSDK(cmd.Context(), voicesNeural != "", nil)
	if err != nil {
		return err
	}
	defer s.close()

	if voicesNeural != "" {
		if err := s.useNeural(cmd.Context(), voicesNeural, ""); err != nil {
			return err
		}
	}

	voices := filterVoices(s.coord.Voices(), voicesFilter)
	if len(voices) == 0 {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), faintStyle.Render("No voices found."))
		return nil
	}
	writeVoiceTable(cmd.OutOrStdout(), voices, s.coord.CurrentVoice().ID)
	return nil
}

// voiceSource adapts voices for fuzzy matching.
type voiceSource []tts.Voice

func (v voiceSource) String(i int) string {
	return strings.Join([]string{v[i].ID, v[i].Name, v[i].Language}, " ")
}

func (v voiceSource) Len() int { return len(v) }

// filterVoices returns the voices matching query, best match first. An
// empty query returns voices unchanged.
func filterVoices(voices []tts.Voice, query string) []tts.Voice {
	if strings.TrimSpace(query) == "" {
		return voices
	}
	matches := fuzzy.FindFrom(query, voiceSource(voices))
	out := make([]tts.Voice, 0, len(matches))
	for _, m := range matches {
		out = append(out, voices[m.Index])
	}
	return out
}

// writeVoiceTable prints voices in aligned columns, marking current.
func writeVoiceTable(w io.Writer, voices []tts.Voice, current string) {
	headers := []string{"ID", "NAME", "LANGUAGE", "GENDER", "BACKEND"}
	rows := make([][]string, 0, len(voices))
	for _, v := range voices {
		rows = append(rows, []string{v.ID, v.Name, v.Language, v.Gender.String(), v.Backend.String()})
	}

	widths := columnWidths(headers, rows)
	_, _ = fmt.Fprintln(w, "  "+headerStyle.Render(formatRow(headers, widths)))
	for i, row := range rows {
		marker := "  "
		if voices[i].ID == current {
			marker = keyword("*") + " "
		}
		_, _ = fmt.Fprintln(w, marker+formatRow(row, widths))
	}
}

func columnWidths(headers []string, rows [][]string) []int {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if n := runewidth.StringWidth(cell); n > widths[i] {
				widths[i] = n
			}
		}
	}
	return widths
}

func formatRow(cells []string, widths []int) string {
	var b strings.Builder
	for i, cell := range cells {
		if i == len(cells)-1 {
			b.WriteString(cell)
			break
		}
		b.WriteString(runewidth.FillRight(cell, widths[i]))
		b.WriteString("  ")
	}
	return b.String()
}
