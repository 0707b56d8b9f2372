package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dgnsrekt/voxkit/tts"
	"github.com/dgnsrekt/voxkit/tts/models"
	"github.com/dustin/go-humanize"
)

const maxBarWidth = 60

type (
	progressMsg models.Progress
	closedMsg   struct{}
)

// downloadModel is the bubbletea model showing one download.
type downloadModel struct {
	desc    tts.ModelDescriptor
	updates <-chan models.Progress
	cancel  func()
	bar     progress.Model

	last       models.Progress
	cancelling bool
}

func newDownloadModel(desc tts.ModelDescriptor, updates <-chan models.Progress, cancel func()) downloadModel {
	return downloadModel{
		desc:    desc,
		updates: updates,
		cancel:  cancel,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(maxBarWidth)),
		last:    models.Progress{ModelID: desc.ID, Total: desc.SizeBytes},
	}
}

func waitForProgress(ch <-chan models.Progress) tea.Cmd {
	return func() tea.Msg {
		p, ok := <-ch
		if !ok {
			return closedMsg{}
		}
		return progressMsg(p)
	}
}

func (m downloadModel) Init() tea.Cmd {
	return waitForProgress(m.updates)
}

func (m downloadModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if !m.cancelling {
				m.cancelling = true
				m.cancel()
			}
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.bar.Width = min(msg.Width-4, maxBarWidth)
		return m, nil

	case progressMsg:
		m.last = models.Progress(msg)
		if m.last.State.Terminal() {
			return m, tea.Quit
		}
		return m, waitForProgress(m.updates)

	case closedMsg:
		return m, tea.Quit
	}
	return m, nil
}

func (m downloadModel) View() string {
	var b strings.Builder
	status := m.last.State.String()
	if m.cancelling && !m.last.State.Terminal() {
		status = "cancelling"
	}
	fmt.Fprintf(&b, "\n  %s %s\n\n", keyword(m.desc.Name), faintStyle.Render(status))
	fmt.Fprintf(&b, "  %s\n", m.bar.ViewAs(m.last.Fraction()))

	size := humanize.Bytes(uint64(m.last.Downloaded)) //nolint:gosec
	if m.last.Total > 0 {
		size += " / " + humanize.Bytes(uint64(m.last.Total)) //nolint:gosec
	}
	fmt.Fprintf(&b, "  %s\n", faintStyle.Render(size))
	if !m.last.State.Terminal() {
		b.WriteString(faintStyle.Render("\n  q: cancel") + "\n")
	}
	return b.String()
}

// runDownloadUI shows the download until it reaches a terminal state and
// returns the final update.
func runDownloadUI(desc tts.ModelDescriptor, updates <-chan models.Progress, cancel func()) (models.Progress, error) {
	final, err := tea.NewProgram(newDownloadModel(desc, updates, cancel)).Run()
	if err != nil {
		cancel()
		return models.Progress{}, fmt.Errorf("unable to run download ui: %w", err)
	}
	return final.(downloadModel).last, nil
}
