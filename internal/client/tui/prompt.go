package tui

import (
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// ErrCancelled is returned when the user aborts a prompt.
var ErrCancelled = errors.New("cancelled")

type promptModel struct {
	label     string
	input     textinput.Model
	done      bool
	cancelled bool
}

func newPrompt(label string, secret bool) promptModel {
	input := textinput.New()
	input.Prompt = ""
	input.Width = 40
	if secret {
		input.EchoMode = textinput.EchoPassword
	}
	input.Focus()
	return promptModel{label: label, input: input}
}

func (m promptModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.Type {
		case tea.KeyEnter:
			m.done = true
			return m, tea.Quit
		case tea.KeyCtrlC, tea.KeyEsc:
			m.cancelled = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m promptModel) View() string {
	if m.done || m.cancelled {
		return ""
	}
	return labelStyle.Render(m.label) + m.input.View() + "\n"
}

// Prompt reads one line from the terminal. With secret set the input is
// masked.
func Prompt(label string, secret bool) (string, error) {
	final, err := tea.NewProgram(newPrompt(label, secret)).Run()
	if err != nil {
		return "", err
	}
	m := final.(promptModel)
	if m.cancelled {
		return "", ErrCancelled
	}
	return strings.TrimSpace(m.input.Value()), nil
}
