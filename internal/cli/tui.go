package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// List styles
var (
	listSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	listNormalStyle   = lipgloss.NewStyle().Foreground(colorWhite)
	listDimStyle      = lipgloss.NewStyle().Foreground(colorDim)
)

// =============================================================================
// TraceModel - Interactive pass-schedule stepper
// =============================================================================

// TraceModel is the bubbletea model for stepping through a frame's pass
// schedule. The left column lists passes in execution order; the detail
// pane shows the selected pass's barrier and accesses. 'j' toggles the
// raw device journal.
type TraceModel struct {
	Fingerprint string
	Steps       []traceStep
	Journal     []string

	Cursor      int
	ShowJournal bool
	Height      int
}

// newTraceModel creates a trace model over a compiled and executed frame.
func newTraceModel(fingerprint string, steps []traceStep, journal []string) TraceModel {
	return TraceModel{
		Fingerprint: fingerprint,
		Steps:       steps,
		Journal:     journal,
		Height:      20,
	}
}

func (m TraceModel) Init() tea.Cmd {
	return nil
}

func (m TraceModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
			}
		case "down":
			if m.Cursor < len(m.Steps)-1 {
				m.Cursor++
			}
		case "j":
			m.ShowJournal = !m.ShowJournal
		case "home", "g":
			m.Cursor = 0
		case "end", "G":
			m.Cursor = len(m.Steps) - 1
		}
	case tea.WindowSizeMsg:
		m.Height = msg.Height - 8
		if m.Height < 5 {
			m.Height = 5
		}
	}
	return m, nil
}

func (m TraceModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Frame Trace"))
	b.WriteString(" ")
	b.WriteString(listDimStyle.Render(m.Fingerprint[:12]))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  j journal  q quit"))
	b.WriteString("\n\n")

	if len(m.Steps) == 0 {
		b.WriteString(listDimStyle.Render("  empty frame"))
		b.WriteString("\n")
		return b.String()
	}

	for i, step := range m.Steps {
		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}

		marker := listDimStyle.Render("·")
		if len(step.Barrier) > 0 {
			marker = styleBarrier.Render("‖")
		}

		line := fmt.Sprintf("%s%s [%d] %s", cursor, marker, i, step.Name)
		if i == m.Cursor {
			b.WriteString(listSelectedStyle.Render(line))
		} else {
			b.WriteString(listNormalStyle.Render(line))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	sel := m.Steps[m.Cursor]
	b.WriteString(StyleTitle.Render(fmt.Sprintf("pass %s", sel.Name)))
	b.WriteString(listDimStyle.Render(fmt.Sprintf(" (%s queue)", sel.Queue)))
	b.WriteString("\n")

	if len(sel.Barrier) == 0 {
		b.WriteString(listDimStyle.Render("  no barrier"))
		b.WriteString("\n")
	}
	for _, line := range sel.Barrier {
		b.WriteString("  " + styleBarrier.Render(line))
		b.WriteString("\n")
	}
	for _, line := range sel.Access {
		b.WriteString("  " + StyleValue.Render(line))
		b.WriteString("\n")
	}

	if m.ShowJournal {
		b.WriteString("\n")
		b.WriteString(StyleTitle.Render("device journal"))
		b.WriteString("\n")
		lines := m.Journal
		if len(lines) > m.Height {
			lines = lines[len(lines)-m.Height:]
		}
		for _, line := range lines {
			b.WriteString("  " + listDimStyle.Render(line))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]", m.Cursor+1, len(m.Steps))))

	return b.String()
}
