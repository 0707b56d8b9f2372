package main

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/termenv"
)

const wrapWidth = 78

var (
	keywordStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("204")).Bold(true)
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Underline(true)
	faintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

func init() {
	lipgloss.SetColorProfile(termenv.NewOutput(os.Stdout).EnvColorProfile())
}

func keyword(s string) string {
	return keywordStyle.Render(s)
}

func paragraph(s string) string {
	return indent.String(wordwrap.String(s, wrapWidth-2), 2)
}
